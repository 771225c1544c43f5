// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"testing"
	"time"

	"github.com/dtn7/dtnd7/bpa"
	"github.com/dtn7/dtnd7/bpv7"
)

var (
	testOwn  = bpv7.MustNewEndpointID("dtn://own/")
	testDest = bpv7.MustNewEndpointID("dtn://own/mail")
	testPeer = bpv7.MustNewEndpointID("dtn://peer/")
)

// deferredObserver forwards Store notifications to an Agent constructed
// after the Store itself, breaking the construction cycle between the two.
type deferredObserver struct {
	agent *bpa.Agent
}

func (d *deferredObserver) OnBundleStored(sb bpa.StoredBundle) {
	d.agent.OnBundleStored(sb)
}

func newTestAgent(t *testing.T) (*bpa.Agent, *bpa.MemoryStore) {
	t.Helper()

	obs := &deferredObserver{}
	store := bpa.NewMemoryStore(obs)
	a := bpa.NewAgent(testOwn, store)
	obs.agent = a

	t.Cleanup(func() { _ = a.Close() })
	return a, store
}

func newTestFrontend(t *testing.T) *ClientFrontend {
	t.Helper()

	a, _ := newTestAgent(t)
	return NewClientFrontend(a)
}

func recvOrTimeout(t *testing.T, ch <-chan bpa.StoredBundle) bpa.StoredBundle {
	t.Helper()
	select {
	case sb := <-ch:
		return sb
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a delivered bundle")
		return bpa.StoredBundle{}
	}
}

func assertNoDelivery(t *testing.T, ch <-chan bpa.StoredBundle) {
	t.Helper()
	select {
	case sb := <-ch:
		t.Fatalf("unexpected delivery: %v", sb.Bundle.ID())
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClientFrontendSubmitThenListenDelivers(t *testing.T) {
	f := newTestFrontend(t)

	delivery := f.Listen(testDest)
	defer delivery.Cancel()

	if got := f.Submit(testDest, []byte("hello"), time.Hour, 0); got != SubmitAccepted {
		t.Fatalf("expected SubmitAccepted, got %v", got)
	}

	sb := recvOrTimeout(t, delivery.Payloads())
	if sb.Bundle.PrimaryBlock.Destination != testDest {
		t.Errorf("delivered bundle destination = %v, want %v", sb.Bundle.PrimaryBlock.Destination, testDest)
	}

	delivery.Ack(sb)
}

func TestClientFrontendQueuesUntilListen(t *testing.T) {
	f := newTestFrontend(t)

	if got := f.Submit(testDest, []byte("queued"), time.Hour, 0); got != SubmitAccepted {
		t.Fatalf("expected SubmitAccepted, got %v", got)
	}

	delivery := f.Listen(testDest)
	defer delivery.Cancel()

	recvOrTimeout(t, delivery.Payloads())
}

func TestClientFrontendNackRequeuesForNextListen(t *testing.T) {
	f := newTestFrontend(t)

	delivery := f.Listen(testDest)
	if got := f.Submit(testDest, []byte("retry-me"), time.Hour, 0); got != SubmitAccepted {
		t.Fatalf("expected SubmitAccepted, got %v", got)
	}
	sb := recvOrTimeout(t, delivery.Payloads())

	delivery.Nack(sb)
	delivery.Cancel()

	delivery2 := f.Listen(testDest)
	defer delivery2.Cancel()
	recvOrTimeout(t, delivery2.Payloads())
}

func TestDeliveryCancelStopsFurtherDelivery(t *testing.T) {
	f := newTestFrontend(t)

	delivery := f.Listen(testDest)
	delivery.Cancel()

	if got := f.Submit(testDest, []byte("y"), time.Minute, 0); got != SubmitAccepted {
		t.Fatalf("expected SubmitAccepted, got %v", got)
	}

	assertNoDelivery(t, delivery.Payloads())
}
