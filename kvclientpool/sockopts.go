package kvclientpool

import (
	"crypto/tls"
	"net"
)

// underlyingTCPConn unwraps a TLS connection to the raw *net.TCPConn tuneSocket
// needs to reach socket-level options; plaintext connections are already one.
func underlyingTCPConn(conn net.Conn) (*net.TCPConn, bool) {
	if tlsConn, ok := conn.(*tls.Conn); ok {
		conn = tlsConn.NetConn()
	}
	tcpConn, ok := conn.(*net.TCPConn)
	return tcpConn, ok
}
