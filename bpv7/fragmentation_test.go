// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"testing"
)

func mkTestBundle(t *testing.T, payload []byte) Bundle {
	t.Helper()

	primary := NewPrimaryBlock(
		0,
		MustNewEndpointID("dtn://dst/"),
		MustNewEndpointID("dtn://src/"),
		NewCreationTimestamp(DtnTimeNow(), 0),
		3600000)

	b, err := NewBundle(primary, []CanonicalBlock{
		NewCanonicalBlock(1, 0, NewPayloadBlock(payload)),
	})
	if err != nil {
		t.Fatalf("failed to build test bundle: %v", err)
	}
	return b
}

func TestFragmentMustNotFragment(t *testing.T) {
	b := mkTestBundle(t, bytes.Repeat([]byte{0x42}, 1000))
	b.PrimaryBlock.BundleControlFlags |= MustNotFragmented

	if _, err := b.Fragment(200); err == nil {
		t.Error("expected an error fragmenting a MUST_NOT_FRAGMENT bundle")
	}
}

func TestFragmentTooSmallMTU(t *testing.T) {
	b := mkTestBundle(t, bytes.Repeat([]byte{0x42}, 1000))

	if _, err := b.Fragment(1); err == nil {
		t.Error("expected an error fragmenting with an impossibly small MTU")
	}
}

func TestFragmentReassemble(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 2000)
	b := mkTestBundle(t, payload)

	frags, err := b.Fragment(512)
	if err != nil {
		t.Fatalf("fragment failed: %v", err)
	}
	if len(frags) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(frags))
	}

	if !IsBundleReassemblable(frags) {
		t.Fatal("expected fragments to be reassemblable")
	}

	reassembled, err := ReassembleFragments(frags)
	if err != nil {
		t.Fatalf("reassemble failed: %v", err)
	}

	pb, err := reassembled.PayloadBlock()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pb.Value.(*PayloadBlock).Data, payload) {
		t.Error("reassembled payload does not match original")
	}
}

func TestFragmentSingleWhenUnnecessary(t *testing.T) {
	b := mkTestBundle(t, []byte("small"))

	frags, err := b.Fragment(4096)
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) != 1 {
		t.Fatalf("expected a single fragment for a bundle that already fits, got %d", len(frags))
	}
}
