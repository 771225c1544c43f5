// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"testing"
)

func mkPrimaryBlock(crcType CRCType, fragment bool) PrimaryBlock {
	bcf := BundleControlFlags(0)
	if fragment {
		bcf |= IsFragment
	}

	pb := NewPrimaryBlock(
		bcf,
		MustNewEndpointID("dtn://dst/"),
		MustNewEndpointID("dtn://src/"),
		NewCreationTimestamp(DtnTimeNow(), 0),
		60000)
	pb.SetCRCType(crcType)

	if fragment {
		pb.FragmentOffset = 10
		pb.TotalDataLength = 100
	}

	return pb
}

func TestPrimaryBlockArrayLengthVariants(t *testing.T) {
	cases := []struct {
		crcType  CRCType
		fragment bool
		want     uint64
	}{
		{CRCNo, false, 8},
		{CRC32, false, 9},
		{CRCNo, true, 10},
		{CRC16, true, 11},
	}

	for _, c := range cases {
		pb := mkPrimaryBlock(c.crcType, c.fragment)
		if got := pb.arrayLength(); got != c.want {
			t.Errorf("crcType=%v fragment=%v: expected array length %d, got %d", c.crcType, c.fragment, c.want, got)
		}
	}
}

func TestPrimaryBlockCborRoundtrip(t *testing.T) {
	for _, c := range []struct {
		crcType  CRCType
		fragment bool
	}{
		{CRCNo, false},
		{CRC32, false},
		{CRCNo, true},
		{CRC16, true},
		{CRC32, true},
	} {
		pb := mkPrimaryBlock(c.crcType, c.fragment)

		buff := new(bytes.Buffer)
		if err := pb.MarshalCbor(buff); err != nil {
			t.Fatalf("crcType=%v fragment=%v: marshal failed: %v", c.crcType, c.fragment, err)
		}

		var pb2 PrimaryBlock
		if err := pb2.UnmarshalCbor(buff); err != nil {
			t.Fatalf("crcType=%v fragment=%v: unmarshal failed: %v", c.crcType, c.fragment, err)
		}

		if !pb.EqualsIgnoringFragmentInfo(pb2) {
			t.Errorf("crcType=%v fragment=%v: roundtrip mismatch: %v != %v", c.crcType, c.fragment, pb, pb2)
		}
		if pb2.FragmentOffset != pb.FragmentOffset || pb2.TotalDataLength != pb.TotalDataLength {
			t.Errorf("crcType=%v fragment=%v: fragment fields mismatch", c.crcType, c.fragment)
		}
	}
}

func TestPrimaryBlockCheckValidAllowsCRCNo(t *testing.T) {
	pb := mkPrimaryBlock(CRCNo, false)
	if err := pb.CheckValid(); err != nil {
		t.Errorf("expected CRCNo primary block to be valid, got %v", err)
	}
}

func TestPrimaryBlockCorruptedCRCRejected(t *testing.T) {
	pb := mkPrimaryBlock(CRC32, false)

	buff := new(bytes.Buffer)
	if err := pb.MarshalCbor(buff); err != nil {
		t.Fatal(err)
	}

	data := buff.Bytes()
	data[len(data)-1] ^= 0xFF

	var pb2 PrimaryBlock
	if err := pb2.UnmarshalCbor(bytes.NewReader(data)); err == nil {
		t.Error("expected an error decoding a primary block with a corrupted CRC")
	}
}
