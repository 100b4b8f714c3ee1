//go:build !unix

package kvclientpool

import "net"

// tuneSocket is a no-op on platforms without the unix socket option syscalls.
func tuneSocket(conn net.Conn) {}
