// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtnd7/bpv7"
)

// Session is one TCPCLv4 connection to a peer, driving the contact/TLS/
// sess-init/established/term state machine and the bulk-transfer manager
// built on top of it.
type Session struct {
	conn       net.Conn
	activePeer bool

	nodeID     bpv7.EndpointID
	peerNodeID bpv7.EndpointID

	tlsConfig *tls.Config

	ms              *messageSwitch
	stageHandler    *StageHandler
	transferManager *transferManager

	bundlesIn chan bpv7.Bundle
	errChan   chan error

	closeSyn chan struct{}
	closeAck chan struct{}
}

// sessionDefaults are this node's proposed session parameters; a real
// deployment would source these from configuration.
const (
	defaultKeepalive   uint16 = 30
	defaultSegmentMru  uint64 = 1 << 20
	defaultTransferMru uint64 = 1 << 30
)

// newSession wraps an established net.Conn. activePeer is true for the
// dialing side.
func newSession(conn net.Conn, nodeID bpv7.EndpointID, activePeer bool, tlsConfig *tls.Config) *Session {
	return &Session{
		conn:       conn,
		activePeer: activePeer,
		nodeID:     nodeID,
		tlsConfig:  tlsConfig,

		bundlesIn: make(chan bpv7.Bundle, 8),
		errChan:   make(chan error),

		closeSyn: make(chan struct{}),
		closeAck: make(chan struct{}),
	}
}

func (s *Session) log() *log.Entry {
	return log.WithFields(log.Fields{
		"cla":  "tcpcl",
		"peer": s.conn.RemoteAddr(),
	})
}

// Start runs the session's state machine and begins forwarding bundles. It
// returns once the session is established or fails to establish within a
// bounded time.
func (s *Session) Start() error {
	s.ms = newMessageSwitch(s.conn, s.conn)
	msIn, msOut, _ := s.ms.exchange()

	conf := Configuration{
		ActivePeer:   s.activePeer,
		ContactFlags: s.contactFlags(),
		TLSConfig:    s.tlsConfig,
		UpgradeTLS:   s.upgradeTLS,
		Keepalive:    defaultKeepalive,
		SegmentMru:   defaultSegmentMru,
		TransferMru:  defaultTransferMru,
		NodeId:       s.nodeID,
	}

	establishedChan := make(chan uint64, 1)
	stages := []StageSetup{
		{
			Stage: &ContactStage{},
			PostHook: func(sh *StageHandler, state *State) error {
				return maybeUpgradeTLS(sh, state)
			},
		},
		{
			Stage: &SessInitStage{},
			PostHook: func(sh *StageHandler, state *State) error {
				s.peerNodeID = state.PeerNodeId
				return verifyTLSIdentity(sh, state)
			},
		},
		{
			Stage: &SessEstablishedStage{},
			PreHook: func(sh *StageHandler, state *State) error {
				establishedChan <- state.PeerSegmentMru
				return nil
			},
		},
		{Stage: &TermStage{}},
	}
	s.stageHandler = NewStageHandler(stages, msIn, msOut, conf)

	select {
	case <-time.After(15 * time.Second):
		return fmt.Errorf("establishing a TCPCLv4 session timed out")

	case peerSegmentMru := <-establishedChan:
		exIn, exOut := s.stageHandler.Exchanges()
		s.transferManager = newTransferManager(exIn, exOut, peerSegmentMru)
	}

	go s.run()

	return nil
}

func (s *Session) contactFlags() ContactFlags {
	if s.tlsConfig != nil {
		return ContactCanTls
	}
	return 0
}

// upgradeTLS performs the in-band TLS handshake and restarts the message
// switch on top of the resulting tls.Conn.
func (s *Session) upgradeTLS(activePeer bool, conf *tls.Config) (tls.ConnectionState, <-chan Message, chan<- Message, error) {
	var tlsConn *tls.Conn
	if activePeer {
		tlsConn = tls.Client(s.conn, conf)
	} else {
		tlsConn = tls.Server(s.conn, conf)
	}

	if err := tlsConn.Handshake(); err != nil {
		return tls.ConnectionState{}, nil, nil, fmt.Errorf("TLS handshake failed: %w", err)
	}

	if err := s.ms.close(); err != nil {
		s.log().WithError(err).Debug("closing pre-TLS message switch")
	}

	s.conn = tlsConn
	s.ms = newMessageSwitch(tlsConn, tlsConn)
	msIn, msOut, _ := s.ms.exchange()

	return tlsConn.ConnectionState(), msIn, msOut, nil
}

func (s *Session) run() {
	bundlesIn, transferErr := s.transferManager.Exchange()
	stageErr := s.stageHandler.Error()
	_, _, msErr := s.ms.exchange()

	defer func() {
		_ = s.transferManager.Close()
		_ = s.stageHandler.Close()
		_ = s.ms.close()
		_ = s.conn.Close()
		close(s.closeAck)
	}()

	for {
		select {
		case b := <-bundlesIn:
			s.bundlesIn <- b

		case <-s.closeSyn:
			// Ask the state machine to run SendSessTerm/WaitSessTerm before
			// the connection is torn down by the deferred Close calls above.
			_ = s.stageHandler.Close()
			select {
			case <-stageErr:
			case <-time.After(sessTermTimeout + time.Second):
			}
			return

		case err := <-msErr:
			s.reportFatal(err)
			return

		case err := <-stageErr:
			s.reportFatal(err)
			return

		case err := <-transferErr:
			s.reportFatal(err)
			return
		}
	}
}

func (s *Session) reportFatal(err error) {
	if err == nil {
		return
	}
	if err == io.EOF {
		s.log().Info("peer closed connection")
		return
	}
	select {
	case s.errChan <- err:
	default:
	}
}

// Send queues a bundle for transmission over this session's single outbound
// transfer slot and returns a channel reporting that transfer's outcome, per
// transferManager.Send.
func (s *Session) Send(b bpv7.Bundle) <-chan error {
	return s.transferManager.Send(b)
}

// Bundles returns the channel of bundles received over this session.
func (s *Session) Bundles() <-chan bpv7.Bundle {
	return s.bundlesIn
}

// Errors returns the channel a fatal session error is reported on.
func (s *Session) Errors() <-chan error {
	return s.errChan
}

// PeerNodeID returns the peer's declared node ID, valid once Start returns
// successfully.
func (s *Session) PeerNodeID() bpv7.EndpointID {
	return s.peerNodeID
}

// Close shuts the session down, running the SendSessTerm/WaitSessTerm
// exchange before the connection is closed.
func (s *Session) Close() error {
	close(s.closeSyn)
	<-s.closeAck
	return nil
}
