// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"fmt"
	"math"

	"github.com/dtn7/dtnd7/bpv7"
)

// SessInitStage exchanges SESS_INIT and negotiates the session's effective
// keepalive interval (the minimum of both sides' proposals).
type SessInitStage struct {
	state     *State
	closeChan <-chan struct{}
}

func (si *SessInitStage) Handle(state *State, closeChan <-chan struct{}) {
	si.state = state
	si.closeChan = closeChan

	out := SessionInitMessage{
		KeepaliveInterval: state.Configuration.Keepalive,
		SegmentMru:        state.Configuration.SegmentMru,
		TransferMru:       state.Configuration.TransferMru,
		Eid:               state.Configuration.NodeId.String(),
	}

	var (
		in  *SessionInitMessage
		err error
	)

	if state.Configuration.ActivePeer {
		state.MsgOut <- &out
		in, err = si.receiveMsgOrClose()
	} else {
		in, err = si.receiveMsgOrClose()
		if err == nil {
			state.MsgOut <- &out
		}
	}

	if err == nil {
		state.Keepalive = uint16(math.Min(float64(state.Configuration.Keepalive), float64(in.KeepaliveInterval)))
		state.PeerSegmentMru = in.SegmentMru
		state.PeerTransferMru = in.TransferMru
		state.PeerNodeId, err = bpv7.NewEndpointID(in.Eid)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrNodeIDParse, err)
		}
	}

	state.StageError = err
}

func (si *SessInitStage) receiveMsgOrClose() (*SessionInitMessage, error) {
	select {
	case <-si.closeChan:
		return nil, StageClose

	case msg := <-si.state.MsgIn:
		in, ok := msg.(*SessionInitMessage)
		if !ok {
			return nil, fmt.Errorf("%w: expected SESS_INIT, got %T", ErrMalformedMessage, msg)
		}
		return in, nil
	}
}

// verifyTLSIdentity checks, once both TLS and SESS_INIT have completed, that
// the peer's certificate vouches for its declared node ID. It is a no-op
// when TLS was not negotiated. Intended as the SessInitStage's PostHook.
func verifyTLSIdentity(_ *StageHandler, state *State) error {
	if !state.TLSUpgraded {
		return nil
	}
	if len(state.TLSConnState.PeerCertificates) == 0 {
		return fmt.Errorf("%w: no peer certificate presented", ErrTlsNameMismatch)
	}

	return verifyBundleEID(state.TLSConnState.PeerCertificates[0], state.PeerNodeId.String())
}
