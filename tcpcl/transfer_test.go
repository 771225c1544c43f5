// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"bytes"
	"testing"

	"github.com/dtn7/dtnd7/bpv7"
)

func mkTransferTestBundle(t *testing.T, payload []byte) bpv7.Bundle {
	t.Helper()

	primary := bpv7.NewPrimaryBlock(
		0,
		bpv7.MustNewEndpointID("dtn://dst/"),
		bpv7.MustNewEndpointID("dtn://src/"),
		bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 0),
		3600000)

	b, err := bpv7.NewBundle(primary, []bpv7.CanonicalBlock{
		bpv7.NewCanonicalBlock(1, 0, bpv7.NewPayloadBlock(payload)),
	})
	if err != nil {
		t.Fatalf("failed to build test bundle: %v", err)
	}
	return b
}

func TestOutgoingTransferSegmentsUnderMRU(t *testing.T) {
	b := mkTransferTestBundle(t, bytes.Repeat([]byte{0x42}, 5000))
	ot := newOutgoingTransfer(1, b)

	var segments []DataTransmissionMessage
	for {
		seg, err := ot.nextSegment(1024)
		if err != nil {
			t.Fatalf("nextSegment: %v", err)
		}
		segments = append(segments, seg)
		if seg.Flags&SegmentEnd != 0 {
			break
		}
		if len(segments) > 100 {
			t.Fatal("transfer did not terminate")
		}
	}

	if segments[0].Flags&SegmentStart == 0 {
		t.Error("expected the first segment to carry SegmentStart")
	}
	if len(segments) < 2 {
		t.Fatalf("expected multiple segments for a bundle larger than the MRU, got %d", len(segments))
	}
	for _, seg := range segments[1:] {
		if seg.Flags&SegmentStart != 0 {
			t.Error("expected only the first segment to carry SegmentStart")
		}
	}
}

func TestIncomingTransferAccumulatesAndDecodes(t *testing.T) {
	b := mkTransferTestBundle(t, []byte("hello world"))
	ot := newOutgoingTransfer(1, b)

	it := newIncomingTransfer(1)
	for !it.isFinished() {
		seg, err := ot.nextSegment(4)
		if err != nil {
			t.Fatalf("nextSegment: %v", err)
		}
		if _, err := it.acceptSegment(seg); err != nil {
			t.Fatalf("acceptSegment: %v", err)
		}
	}

	got, err := it.toBundle()
	if err != nil {
		t.Fatalf("toBundle: %v", err)
	}

	pb, err := got.PayloadBlock()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pb.Value.(*bpv7.PayloadBlock).Data, []byte("hello world")) {
		t.Error("decoded payload does not match original")
	}
}

func TestIncomingTransferRejectsMismatchedID(t *testing.T) {
	it := newIncomingTransfer(1)
	seg := NewDataTransmissionMessage(SegmentStart|SegmentEnd, 2, []byte("x"))

	if _, err := it.acceptSegment(seg); err == nil {
		t.Error("expected a transfer ID mismatch to be rejected")
	}
}

func TestIncomingTransferRejectsSegmentAfterEnd(t *testing.T) {
	it := newIncomingTransfer(1)
	end := NewDataTransmissionMessage(SegmentStart|SegmentEnd, 1, []byte("x"))
	if _, err := it.acceptSegment(end); err != nil {
		t.Fatalf("acceptSegment: %v", err)
	}

	again := NewDataTransmissionMessage(0, 1, []byte("y"))
	if _, err := it.acceptSegment(again); err == nil {
		t.Error("expected a segment after the transfer's end to be rejected")
	}
}
