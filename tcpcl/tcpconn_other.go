// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !linux
// +build !linux

package tcpcl

import (
	"net"
	"time"
)

// dialTCP opens a plain TCP connection; the Linux-specific keepalive tuning
// in tcpconn_linux.go has no portable equivalent used here.
func dialTCP(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", address, timeout)
}
