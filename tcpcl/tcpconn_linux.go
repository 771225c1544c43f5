// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux
// +build linux

package tcpcl

import (
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Linux-specific socket options tuned for mobile DTN scenarios, where a node
// may move out of range at any time and a stalled TCP connection should be
// torn down quickly rather than leaving the session hung.
//
// See the Linux tcp(7) manual page.

// dialControl is the net.Dialer's Control function to set the socket
// options.
func dialControl(_, _ string, rawConn syscall.RawConn) (err error) {
	const (
		// tcpKeepCnt sets TCP_KEEPCNT, the max keepalive probes before the
		// connection is dropped.
		tcpKeepCnt int = 1

		// tcpKeepIdle sets TCP_KEEPIDLE, seconds of idleness before probing
		// starts.
		tcpKeepIdle int = 5

		// tcpKeepIntvl sets TCP_KEEPINTVL, seconds between probes.
		tcpKeepIntvl int = 3

		// tcpUserTimeout sets TCP_USER_TIMEOUT in milliseconds: the longest
		// transmitted data may go unacknowledged before the connection is
		// forcibly closed.
		tcpUserTimeout int = 2000
	)

	opts := map[int]int{
		unix.TCP_KEEPCNT:      tcpKeepCnt,
		unix.TCP_KEEPIDLE:     tcpKeepIdle,
		unix.TCP_KEEPINTVL:    tcpKeepIntvl,
		unix.TCP_USER_TIMEOUT: tcpUserTimeout,
	}

	ctrlErr := rawConn.Control(func(fd uintptr) {
		for opt, value := range opts {
			if err = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, opt, value); err != nil {
				return
			}
		}
	})
	if ctrlErr != nil {
		return ctrlErr
	}

	return err
}

// dialTCP opens a TCP connection with the above socket options applied.
func dialTCP(address string, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout: timeout,
		Control: dialControl,
	}
	return dialer.Dial("tcp", address)
}
