// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import "time"

// sessTermTimeout bounds how long SendSessTerm waits for the peer's REPLY
// before giving up and closing the connection anyway.
const sessTermTimeout = 5 * time.Second

// TermStage drives the SendSessTerm/WaitSessTerm half of the state machine.
// When State.TerminationInitiated is true this side sends SESS_TERM first
// and waits for a REPLY; otherwise the peer already sent one and this side
// only owes a REPLY.
type TermStage struct {
	state     *State
	closeChan <-chan struct{}
}

func (ts *TermStage) Handle(state *State, closeChan <-chan struct{}) {
	ts.state = state
	ts.closeChan = closeChan

	if state.TerminationInitiated {
		state.MsgOut <- &SessionTerminationMessage{ReasonCode: state.TermReasonOut}
		ts.waitReply()
	} else {
		state.MsgOut <- &SessionTerminationMessage{Flags: TerminationReply, ReasonCode: state.TermReasonOut}
	}

	state.StageError = ErrSessionTerminated
}

// waitReply is the WaitSessTerm state: block for the peer's REPLY, but not
// forever.
func (ts *TermStage) waitReply() {
	timeout := time.NewTimer(sessTermTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-timeout.C:
			return

		case msg := <-ts.state.MsgIn:
			if stm, ok := msg.(*SessionTerminationMessage); ok && stm.Flags&TerminationReply != 0 {
				return
			}
			// Anything else arriving here is ignored; the peer is
			// expected to stop sending data once it has our SESS_TERM.
		}
	}
}
