// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"errors"
	"testing"
	"time"

	"github.com/dtn7/dtnd7/bpv7"
)

func TestSessInitStageNegotiatesMinimumKeepalive(t *testing.T) {
	msgIn := make(chan Message)
	msgOut := make(chan Message)

	activeSi := &SessInitStage{}
	activeState := &State{
		Configuration: Configuration{
			ActivePeer:  true,
			Keepalive:   30,
			SegmentMru:  1 << 10,
			TransferMru: 1 << 20,
			NodeId:      bpv7.MustNewEndpointID("dtn://active/"),
		},
		MsgIn:  msgIn,
		MsgOut: msgOut,
	}
	activeClose := make(chan struct{})

	passiveSi := &SessInitStage{}
	passiveState := &State{
		Configuration: Configuration{
			ActivePeer:  false,
			Keepalive:   10,
			SegmentMru:  1 << 11,
			TransferMru: 1 << 21,
			NodeId:      bpv7.MustNewEndpointID("dtn://passive/"),
		},
		MsgIn:  msgOut,
		MsgOut: msgIn,
	}
	passiveClose := make(chan struct{})

	finChan := make(chan struct{})
	go func() { activeSi.Handle(activeState, activeClose); finChan <- struct{}{} }()
	go func() { passiveSi.Handle(passiveState, passiveClose); finChan <- struct{}{} }()

	for fins := 0; fins < 2; {
		select {
		case <-finChan:
			fins++
		case <-time.After(250 * time.Millisecond):
			t.Fatal("timeout")
		}
	}

	if err := activeState.StageError; err != nil {
		t.Fatal(err)
	}
	if err := passiveState.StageError; err != nil {
		t.Fatal(err)
	}

	if activeState.Keepalive != 10 {
		t.Fatalf("active negotiated keepalive = %d, want 10", activeState.Keepalive)
	}
	if passiveState.Keepalive != 10 {
		t.Fatalf("passive negotiated keepalive = %d, want 10", passiveState.Keepalive)
	}

	if activeState.PeerNodeId != passiveState.Configuration.NodeId {
		t.Fatalf("active learned peer node id %v, want %v", activeState.PeerNodeId, passiveState.Configuration.NodeId)
	}
	if passiveState.PeerNodeId != activeState.Configuration.NodeId {
		t.Fatalf("passive learned peer node id %v, want %v", passiveState.PeerNodeId, activeState.Configuration.NodeId)
	}
}

func TestSessInitStageRejectsUnparsableEid(t *testing.T) {
	msgIn := make(chan Message, 1)
	msgOut := make(chan Message, 1)

	si := &SessInitStage{}
	state := &State{
		Configuration: Configuration{ActivePeer: false},
		MsgIn:         msgIn,
		MsgOut:        msgOut,
	}
	closer := make(chan struct{})

	msgIn <- &SessionInitMessage{Eid: "not an endpoint id"}

	finChan := make(chan struct{})
	go func() { si.Handle(state, closer); close(finChan) }()

	select {
	case <-finChan:
	case <-time.After(250 * time.Millisecond):
		t.Fatal("timeout")
	}

	if !errors.Is(state.StageError, ErrNodeIDParse) {
		t.Fatalf("expected ErrNodeIDParse, got %v", state.StageError)
	}
}
