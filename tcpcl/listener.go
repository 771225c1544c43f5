// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtnd7/bpv7"
)

// Listener accepts inbound TCPCLv4 connections on a bound TCP port and hands
// each one off as a passive Session via its Sessions channel.
type Listener struct {
	address   string
	nodeID    bpv7.EndpointID
	tlsConfig *tls.Config

	sessions chan *Session
	stopSyn  chan struct{}
	stopAck  chan struct{}
}

// NewListener creates a Listener bound to address once Start is called.
// tlsConfig may be nil to disable the in-band TLS upgrade.
func NewListener(address string, nodeID bpv7.EndpointID, tlsConfig *tls.Config) *Listener {
	return &Listener{
		address:   address,
		nodeID:    nodeID,
		tlsConfig: tlsConfig,

		sessions: make(chan *Session, 8),
		stopSyn:  make(chan struct{}),
		stopAck:  make(chan struct{}),
	}
}

// Sessions returns newly accepted, successfully started Sessions.
func (l *Listener) Sessions() <-chan *Session {
	return l.sessions
}

// Start binds the listening socket and begins accepting connections in the
// background.
func (l *Listener) Start() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", l.address)
	if err != nil {
		return err
	}

	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return err
	}

	go l.accept(ln)

	return nil
}

func (l *Listener) accept(ln *net.TCPListener) {
	for {
		select {
		case <-l.stopSyn:
			_ = ln.Close()
			close(l.stopAck)
			return

		default:
			if err := ln.SetDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
				log.WithError(err).WithField("cla", l.String()).Error("failed to set accept deadline")
				_ = l.Close()
				return
			}

			conn, err := ln.Accept()
			if err != nil {
				continue
			}

			sess := newSession(conn, l.nodeID, false, l.tlsConfig)
			if startErr := sess.Start(); startErr != nil {
				log.WithError(startErr).WithField("cla", l.String()).Debug("inbound session failed to start")
				_ = conn.Close()
				continue
			}

			l.sessions <- sess
		}
	}
}

func (l *Listener) String() string {
	return fmt.Sprintf("tcpcl://%s", l.address)
}

// Close stops accepting new connections. Already-started Sessions are
// unaffected.
func (l *Listener) Close() error {
	close(l.stopSyn)
	<-l.stopAck
	return nil
}

// Dial establishes an outbound TCPCLv4 session to address. tlsConfig may be
// nil to disable the in-band TLS upgrade.
func Dial(address string, nodeID bpv7.EndpointID, tlsConfig *tls.Config) (*Session, error) {
	conn, err := dialTCP(address, 10*time.Second)
	if err != nil {
		return nil, err
	}

	sess := newSession(conn, nodeID, true, tlsConfig)
	if err := sess.Start(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return sess, nil
}
