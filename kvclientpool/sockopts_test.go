package kvclientpool

import (
	"net"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("tuneSocket", func() {
	It("does not panic on a real TCP connection", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		accepted := make(chan net.Conn, 1)
		go func() {
			c, _ := ln.Accept()
			accepted <- c
		}()

		conn, err := net.Dial("tcp", ln.Addr().String())
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		server := <-accepted
		defer server.Close()

		Expect(func() { tuneSocket(conn) }).NotTo(Panic())
	})

	It("no-ops on a non-TCP connection", func() {
		c1, c2 := net.Pipe()
		defer c1.Close()
		defer c2.Close()

		Expect(func() { tuneSocket(c1) }).NotTo(Panic())
	})
})
