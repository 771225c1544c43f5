// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"crypto/tls"
	"errors"
	"sync"

	"github.com/dtn7/dtnd7/bpv7"
)

// Configuration parametrizes the stages of a session.
type Configuration struct {
	// ActivePeer is true for the entity that dialed the connection.
	ActivePeer bool

	// ContactFlags are advertised in this node's ContactHeader.
	ContactFlags ContactFlags

	// TLSConfig enables the TLS upgrade stage when CAN_TLS was negotiated by
	// both peers. A nil value disables TLS even if both sides advertise
	// CAN_TLS.
	TLSConfig *tls.Config

	// UpgradeTLS performs the actual in-band TLS handshake over the
	// session's raw connection and rewires the message channels onto the
	// resulting tls.Conn. Only consulted when TLSConfig is non-nil and both
	// peers advertised ContactCanTls.
	UpgradeTLS func(activePeer bool, conf *tls.Config) (tls.ConnectionState, <-chan Message, chan<- Message, error)

	// Keepalive interval in seconds this node proposes. Zero disables
	// keepalives.
	Keepalive uint16

	// SegmentMru is the largest single XFER_SEGMENT payload this node
	// accepts.
	SegmentMru uint64

	// TransferMru is the largest total bundle payload this node accepts.
	TransferMru uint64

	// NodeId is this node's endpoint ID, sent in SESS_INIT.
	NodeId bpv7.EndpointID
}

// StageClose signals that a Stage ended because the session was closed from
// outside, not because of a protocol error.
var StageClose = errors.New("stage closed down")

// State threads data between Stages and exposes the raw message channels.
type State struct {
	Configuration Configuration

	MsgIn  <-chan Message
	MsgOut chan<- Message

	ExchangeMsgIn  chan Message
	ExchangeMsgOut chan Message

	StageError error

	// Results of the contact stage.
	PeerContactFlags ContactFlags
	TLSUpgraded      bool
	TLSConnState     tls.ConnectionState

	// Results of the session-init stage.
	Keepalive      uint16
	PeerSegmentMru  uint64
	PeerTransferMru uint64
	PeerNodeId      bpv7.EndpointID

	// TermReasonOut carries the reason code for an outbound SESS_TERM,
	// populated by whichever code path decided to end the session.
	TermReasonOut SessionTerminationCode

	// TerminationInitiated is true when this side must send the first
	// SESS_TERM (local close request or a stalled keepalive); false when the
	// peer already sent one and this side only owes a REPLY.
	TerminationInitiated bool
}

// Stage is one step of the TCPCLv4 session state machine.
type Stage interface {
	Handle(state *State, closeChan <-chan struct{})
}

// StageSetup wraps a Stage with optional hooks run immediately before and
// after it, e.g. to swap the underlying connection for a TLS one.
type StageSetup struct {
	Stage Stage

	PreHook  func(*StageHandler, *State) error
	PostHook func(*StageHandler, *State) error
}

// StageHandler drives a fixed sequence of Stages, passing State between
// them, and reports the first error back through Error.
type StageHandler struct {
	stages []StageSetup
	state  *State

	currentStage      StageSetup
	currentStageMutex sync.RWMutex

	errChan   chan error
	closeChan chan struct{}
	closeOnce sync.Once
}

// NewStageHandler starts a StageHandler running stages in a goroutine.
func NewStageHandler(stages []StageSetup, msgIn <-chan Message, msgOut chan<- Message, config Configuration) *StageHandler {
	sh := &StageHandler{
		stages: stages,
		state: &State{
			Configuration:  config,
			MsgIn:          msgIn,
			MsgOut:         msgOut,
			ExchangeMsgIn:  make(chan Message, 32),
			ExchangeMsgOut: make(chan Message, 32),
		},

		errChan:   make(chan error),
		closeChan: make(chan struct{}),
	}

	go sh.handle()

	return sh
}

func (sh *StageHandler) handle() {
	defer close(sh.errChan)

	defer func() {
		sh.currentStageMutex.Lock()
		sh.currentStage = StageSetup{}
		sh.currentStageMutex.Unlock()
	}()

	for i := 0; i < len(sh.stages); i++ {
		sh.currentStageMutex.Lock()
		sh.currentStage = sh.stages[i]
		sh.currentStageMutex.Unlock()

		if sh.currentStage.PreHook != nil {
			if err := sh.currentStage.PreHook(sh, sh.state); err != nil {
				sh.errChan <- err
				return
			}
		}

		sh.currentStage.Stage.Handle(sh.state, sh.closeChan)
		if err := sh.state.StageError; err != nil {
			sh.errChan <- err
			return
		}

		if sh.stages[i].PostHook != nil {
			if err := sh.stages[i].PostHook(sh, sh.state); err != nil {
				sh.errChan <- err
				return
			}
		}
	}
}

// Error reports the first error raised by a Stage, or the channel closes
// with no value once all stages finish cleanly.
func (sh *StageHandler) Error() <-chan error {
	return sh.errChan
}

// Exchanges returns the channels used to pass Messages to and from a higher
// level, e.g. a transfer manager, once the session is established.
func (sh *StageHandler) Exchanges() (incoming <-chan Message, outgoing chan<- Message) {
	return sh.state.ExchangeMsgIn, sh.state.ExchangeMsgOut
}

// Close stops the currently running Stage and unwinds the handler. Safe to
// call more than once.
func (sh *StageHandler) Close() error {
	sh.closeOnce.Do(func() { close(sh.closeChan) })
	return nil
}
