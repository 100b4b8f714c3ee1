//go:build unix

package kvclientpool

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// tuneSocket disables Nagle and shortens the keepalive interval on a freshly
// dialed KV connection: small request/response frames sit behind Nagle's
// default coalescing window otherwise, and the default OS keepalive (hours)
// is too slow to notice a half-dead node before a request times out against
// it.
func tuneSocket(conn net.Conn) {
	tcpConn, ok := underlyingTCPConn(conn)
	if !ok {
		return
	}
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	})
	tcpConn.SetKeepAlivePeriod(keepAlivePeriod)
}

const keepAlivePeriod = 30 * time.Second
