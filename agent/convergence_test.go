// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"bytes"
	"testing"
	"time"

	"github.com/dtn7/dtnd7/bpa"
	"github.com/dtn7/dtnd7/bpv7"
)

func mkBundle(t *testing.T, src, dst bpv7.EndpointID, payload []byte) bpv7.Bundle {
	t.Helper()

	primary := bpv7.NewPrimaryBlock(0, dst, src, bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 0), 3600000)
	b, err := bpv7.NewBundle(primary, []bpv7.CanonicalBlock{
		bpv7.NewCanonicalBlock(1, 0, bpv7.NewPayloadBlock(payload)),
	})
	if err != nil {
		t.Fatalf("failed to build test bundle: %v", err)
	}
	return b
}

func TestConvergenceAgentInboundBundleDeliversLocally(t *testing.T) {
	a, store := newTestAgent(t)
	f := NewClientFrontend(a)
	conv := NewConvergenceAgent(a, store, testOwn)

	delivery := f.Listen(testDest)
	defer delivery.Cancel()

	b := mkBundle(t, testPeer, testDest, []byte("incoming"))
	var buf bytes.Buffer
	if err := b.WriteBundle(&buf); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	if got := conv.InboundBundle(buf.Bytes()); got != InboundAccepted {
		t.Fatalf("expected InboundAccepted, got %v", got)
	}

	recvOrTimeout(t, delivery.Payloads())
}

func TestConvergenceAgentInboundBundleRejectsMalformed(t *testing.T) {
	a, store := newTestAgent(t)
	conv := NewConvergenceAgent(a, store, testOwn)

	if got := conv.InboundBundle([]byte("not a bundle")); got != InboundMalformed {
		t.Fatalf("expected InboundMalformed, got %v", got)
	}
}

func TestConvergenceAgentInboundBundleRejectsOwnSource(t *testing.T) {
	a, store := newTestAgent(t)
	conv := NewConvergenceAgent(a, store, testOwn)

	b := mkBundle(t, testOwn, testDest, []byte("loopback"))
	if got := conv.InboundParsedBundle(b); got != InboundRejected {
		t.Fatalf("expected InboundRejected, got %v", got)
	}
}

func TestConvergenceAgentRegisterPeerRejectsNonNodeEndpoint(t *testing.T) {
	a, store := newTestAgent(t)
	conv := NewConvergenceAgent(a, store, testOwn)

	service := bpv7.MustNewEndpointID("dtn://peer/mail")
	if err := conv.RegisterPeer(service, bpa.NewChannelOutbox()); err == nil {
		t.Fatal("expected RegisterPeer to reject a service endpoint")
	}
}

func TestConvergenceAgentUnregisterPeerRequeuesPending(t *testing.T) {
	a, store := newTestAgent(t)
	f := NewClientFrontend(a)
	routing := NewRoutingAgent(a)
	conv := NewConvergenceAgent(a, store, testOwn)

	routing.UpdateRoutes(map[bpv7.EndpointID]bpa.Route{testPeer: {NextHop: testPeer}})

	outbox := bpa.NewChannelOutbox()
	if err := conv.RegisterPeer(testPeer, outbox); err != nil {
		t.Fatalf("RegisterPeer: %v", err)
	}

	if got := f.Submit(testPeer, []byte("in-flight"), time.Hour, 0); got != SubmitAccepted {
		t.Fatalf("expected SubmitAccepted, got %v", got)
	}
	recvOrTimeout(t, outbox.Channel())

	conv.UnregisterPeer(testPeer)

	outbox2 := bpa.NewChannelOutbox()
	if err := conv.RegisterPeer(testPeer, outbox2); err != nil {
		t.Fatalf("RegisterPeer: %v", err)
	}
	recvOrTimeout(t, outbox2.Channel())
}
