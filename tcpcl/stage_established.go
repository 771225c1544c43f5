// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"fmt"
	"time"
)

// SessEstablishedStage runs the bulk-transfer phase of a session: it
// forwards XFER_* messages to a higher level over the State's exchange
// channels, answers KEEPALIVE, and watches for an idle session or a
// SESS_TERM from either side. It ends without error once a termination
// condition is met, leaving State.TerminationInitiated/TermReasonOut set
// for the following SendSessTerm/WaitSessTerm stages to act on.
type SessEstablishedStage struct {
	state     *State
	closeChan <-chan struct{}

	lastReceive time.Time
	lastSend    time.Time

	keepalive *keepaliveTicker
}

func (se *SessEstablishedStage) Handle(state *State, closeChan <-chan struct{}) {
	se.state = state
	se.closeChan = closeChan

	se.lastReceive = time.Now()
	se.lastSend = time.Now()

	se.keepalive = newKeepaliveTicker()
	if state.Keepalive != 0 {
		se.keepalive.Reschedule(time.Duration(state.Keepalive) * time.Second / 2)
	}
	defer se.keepalive.Stop()

	for {
		select {
		case <-se.closeChan:
			state.TermReasonOut = TerminationUnknown
			state.TerminationInitiated = true
			return

		case <-se.keepalive.C:
			if err := se.handleKeepaliveTick(); err != nil {
				state.TermReasonOut = TerminationIdleTimeout
				state.TerminationInitiated = true
				return
			}

		case msg := <-state.MsgIn:
			se.lastReceive = time.Now()

			switch m := msg.(type) {
			case *SessionInitMessage:
				state.StageError = fmt.Errorf("%w: unexpected SESS_INIT in established session", ErrMalformedMessage)
				return

			case *SessionTerminationMessage:
				state.TermReasonOut = m.ReasonCode
				state.TerminationInitiated = false
				return

			case *KeepaliveMessage:
				// nothing to do; lastReceive already updated

			default:
				state.ExchangeMsgIn <- msg
			}

		case msg := <-state.ExchangeMsgOut:
			state.MsgOut <- msg
			se.lastSend = time.Now()
		}
	}
}

// handleKeepaliveTick checks the peer's silence against the negotiated
// keepalive and sends our own KEEPALIVE if we are close to going silent
// ourselves.
func (se *SessEstablishedStage) handleKeepaliveTick() error {
	keepalive := time.Duration(se.state.Keepalive) * time.Second

	receiveDelta := time.Until(se.lastReceive.Add(keepalive))
	sendDelta := time.Until(se.lastSend.Add(keepalive))

	if receiveDelta < 0 {
		return fmt.Errorf("stalled session; last message at %v, keepalive of %v", se.lastReceive, keepalive)
	}

	if sendDelta <= keepalive/8 {
		se.state.MsgOut <- &KeepaliveMessage{}
		se.lastSend = time.Now()
		se.keepalive.Reschedule(keepalive / 2)
	} else {
		se.keepalive.Reschedule(sendDelta / 2)
	}

	return nil
}
