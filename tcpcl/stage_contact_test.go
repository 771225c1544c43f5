// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"testing"
	"time"
)

func TestContactStage(t *testing.T) {
	msgIn := make(chan Message)
	msgOut := make(chan Message)

	activeContact := &ContactStage{}
	activeState := &State{
		Configuration: Configuration{
			ActivePeer:   true,
			ContactFlags: ContactCanTls,
		},
		MsgIn:  msgIn,
		MsgOut: msgOut,
	}
	activeClose := make(chan struct{})

	passiveContact := &ContactStage{}
	passiveState := &State{
		Configuration: Configuration{
			ActivePeer:   false,
			ContactFlags: 0,
		},
		MsgIn:  msgOut,
		MsgOut: msgIn,
	}
	passiveClose := make(chan struct{})

	finChan := make(chan struct{})
	go func() { activeContact.Handle(activeState, activeClose); finChan <- struct{}{} }()
	go func() { passiveContact.Handle(passiveState, passiveClose); finChan <- struct{}{} }()

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

	if cf := activeState.PeerContactFlags; cf != 0 {
		t.Fatalf("active state's peer contact flags are %v", cf)
	}
	if cf := passiveState.PeerContactFlags; cf != ContactCanTls {
		t.Fatalf("passive state's peer contact flags are %v", cf)
	}
}

func TestContactStageClose(t *testing.T) {
	msgIn := make(chan Message)
	msgOut := make(chan Message)

	cs := &ContactStage{}
	state := &State{
		Configuration: Configuration{ActivePeer: false},
		MsgIn:         msgIn,
		MsgOut:        msgOut,
	}
	closer := make(chan struct{})

	finChan := make(chan struct{})
	go func() { cs.Handle(state, closer); close(finChan) }()

	close(closer)

	select {
	case <-finChan:
	case <-time.After(250 * time.Millisecond):
		t.Fatal("timeout")
	}

	if err := state.StageError; err != StageClose {
		t.Fatalf("expected StageClose, got %v", err)
	}
}
