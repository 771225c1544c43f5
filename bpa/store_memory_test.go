// SPDX-License-Identifier: GPL-3.0-or-later

package bpa

import (
	"bytes"
	"testing"

	"github.com/dtn7/dtnd7/bpv7"
)

var (
	testOwn  = bpv7.MustNewEndpointID("dtn://own/")
	testPeer = bpv7.MustNewEndpointID("dtn://peer/")
)

type recordingObserver struct {
	stored []StoredBundle
}

func (o *recordingObserver) OnBundleStored(sb StoredBundle) {
	o.stored = append(o.stored, sb)
}

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

func TestMemoryStoreStoreNewAssignsSequence(t *testing.T) {
	obs := &recordingObserver{}
	store := NewMemoryStore(obs)

	b := mkBundle(t, testOwn, testPeer, []byte("a"))
	b.PrimaryBlock.CreationTimestamp = bpv7.NewCreationTimestamp(0, 0)

	sb1, err := store.StoreNew(b, testOwn)
	if err != nil {
		t.Fatalf("StoreNew: %v", err)
	}
	sb2, err := store.StoreNew(b, testOwn)
	if err != nil {
		t.Fatalf("StoreNew: %v", err)
	}

	if sb1.Bundle.PrimaryBlock.CreationTimestamp[1] == sb2.Bundle.PrimaryBlock.CreationTimestamp[1] {
		t.Error("expected distinct sequence numbers for bundles from the same source")
	}
	if len(obs.stored) != 2 {
		t.Fatalf("expected two observer notifications, got %d", len(obs.stored))
	}
}

func TestMemoryStoreStoreNewRejectsForeignSource(t *testing.T) {
	store := NewMemoryStore(&recordingObserver{})
	b := mkBundle(t, testPeer, testOwn, []byte("a"))

	if _, err := store.StoreNew(b, testOwn); err == nil {
		t.Error("expected an error storing a bundle not sourced from ownNode")
	}
}

func TestMemoryStoreStoreRejectsOwnSource(t *testing.T) {
	store := NewMemoryStore(&recordingObserver{})
	b := mkBundle(t, testOwn, testPeer, []byte("a"))

	if _, err := store.Store(b, testOwn); err == nil {
		t.Error("expected an error storing a bundle sourced from ownNode")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	obs := &recordingObserver{}
	store := NewMemoryStore(obs)

	b := mkBundle(t, testOwn, testPeer, []byte("a"))
	sb, err := store.StoreNew(b, testOwn)
	if err != nil {
		t.Fatalf("StoreNew: %v", err)
	}

	if err := store.Delete(sb); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := store.GetForDestination(testPeer); len(got) != 0 {
		t.Errorf("expected no bundles after delete, got %d", len(got))
	}
}

func TestMemoryStoreFragmentNotifiesPerFragment(t *testing.T) {
	obs := &recordingObserver{}
	store := NewMemoryStore(obs)

	b := mkBundle(t, testOwn, testPeer, bytes.Repeat([]byte{0x42}, 2000))
	sb, err := store.StoreNew(b, testOwn)
	if err != nil {
		t.Fatalf("StoreNew: %v", err)
	}
	obs.stored = nil

	frags, err := store.Fragment(sb, 512)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if len(frags) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(frags))
	}
	if len(obs.stored) != len(frags) {
		t.Errorf("expected one notification per fragment, got %d for %d fragments", len(obs.stored), len(frags))
	}
	if got := store.GetForDestination(testPeer); len(got) != len(frags) {
		t.Errorf("expected the original bundle replaced by its fragments, got %d entries", len(got))
	}
}

func TestMemoryStoreReassemblesOnStore(t *testing.T) {
	obs := &recordingObserver{}
	store := NewMemoryStore(obs)

	payload := bytes.Repeat([]byte{0xAB}, 2000)
	b := mkBundle(t, testPeer, testOwn, payload)

	frags, err := b.Fragment(512)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if len(frags) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(frags))
	}

	var last StoredBundle
	for i, frag := range frags {
		last, err = store.Store(frag, testOwn)
		if err != nil {
			t.Fatalf("Store fragment %d: %v", i, err)
		}
	}

	if last.Bundle.PrimaryBlock.BundleControlFlags.Has(bpv7.IsFragment) {
		t.Fatal("expected the final stored entry to be the reassembled, non-fragment bundle")
	}

	pb, err := last.Bundle.PayloadBlock()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pb.Value.(*bpv7.PayloadBlock).Data, payload) {
		t.Error("reassembled payload does not match original")
	}

	if got := store.GetForDestination(testOwn); len(got) != 1 {
		t.Errorf("expected fragments replaced by a single reassembled entry, got %d", len(got))
	}
}

func TestMemoryStoreGetForNodeMatchesServiceSuffix(t *testing.T) {
	store := NewMemoryStore(&recordingObserver{})

	dst := bpv7.MustNewEndpointID("dtn://peer/mail")
	b := mkBundle(t, testOwn, dst, []byte("a"))
	if _, err := store.StoreNew(b, testOwn); err != nil {
		t.Fatalf("StoreNew: %v", err)
	}

	if got := store.GetForNode(testPeer); len(got) != 1 {
		t.Errorf("expected GetForNode to match by node id regardless of service suffix, got %d", len(got))
	}
}
