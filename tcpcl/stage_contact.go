// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import "fmt"

// ContactStage exchanges the six-octet ContactHeader that precedes every
// other TCPCLv4 message.
type ContactStage struct {
	state     *State
	closeChan <-chan struct{}
}

func (cs *ContactStage) Handle(state *State, closeChan <-chan struct{}) {
	cs.state = state
	cs.closeChan = closeChan

	if cs.state.Configuration.ActivePeer {
		cs.handleActive()
	} else {
		cs.handlePassive()
	}
}

func (cs *ContactStage) handleActive() {
	cs.state.MsgOut <- &ContactHeader{Flags: cs.state.Configuration.ContactFlags}

	if ch, err := cs.receiveMsgOrClose(); err != nil {
		cs.state.StageError = err
	} else {
		cs.state.PeerContactFlags = ch.Flags
	}
}

func (cs *ContactStage) handlePassive() {
	ch, err := cs.receiveMsgOrClose()
	if err != nil {
		cs.state.StageError = err
		return
	}
	cs.state.PeerContactFlags = ch.Flags

	cs.state.MsgOut <- &ContactHeader{Flags: cs.state.Configuration.ContactFlags}
}

func (cs *ContactStage) receiveMsgOrClose() (*ContactHeader, error) {
	select {
	case <-cs.closeChan:
		return nil, StageClose

	case msg := <-cs.state.MsgIn:
		ch, ok := msg.(*ContactHeader)
		if !ok {
			return nil, fmt.Errorf("%w: expected ContactHeader, got %T", ErrMalformedMessage, msg)
		}
		return ch, nil
	}
}
