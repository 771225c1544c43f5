// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"io"
	"strings"

	"github.com/dtn7/cboring"
)

// BundleID identifies a bundle's content by its source node, creation
// timestamp and, if it is a fragment, its offset and the original's total
// data length.
type BundleID struct {
	SourceNode EndpointID
	Timestamp  CreationTimestamp

	IsFragment      bool
	FragmentOffset  uint64
	TotalDataLength uint64
}

func (bid BundleID) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%v-%d-%d", bid.SourceNode, bid.Timestamp[0], bid.Timestamp[1])
	if bid.IsFragment {
		fmt.Fprintf(&b, "-%d-%d", bid.FragmentOffset, bid.TotalDataLength)
	}

	return b.String()
}

// Len returns the amount of CBOR fields this BundleID serializes to,
// dependent on fragmentation: 2 for a whole bundle, 4 for a fragment.
func (bid BundleID) Len() uint64 {
	if bid.IsFragment {
		return 4
	}
	return 2
}

// MarshalCbor writes this BundleID's fields in series: source node,
// creation timestamp and, if IsFragment, fragment offset and total data
// length. It does not write an enclosing array header; callers embed it
// within a larger array, e.g. the bundle status report.
func (bid *BundleID) MarshalCbor(w io.Writer) error {
	if err := cboring.Marshal(&bid.SourceNode, w); err != nil {
		return fmt.Errorf("marshalling source node failed: %v", err)
	}
	if err := cboring.Marshal(&bid.Timestamp, w); err != nil {
		return fmt.Errorf("marshalling timestamp failed: %v", err)
	}

	if bid.IsFragment {
		for _, fld := range []uint64{bid.FragmentOffset, bid.TotalDataLength} {
			if err := cboring.WriteUInt(fld, w); err != nil {
				return err
			}
		}
	}

	return nil
}

// UnmarshalCbor reads this BundleID's fields. IsFragment MUST be set
// beforehand by the caller, since it determines whether two or four values
// are read.
func (bid *BundleID) UnmarshalCbor(r io.Reader) error {
	if err := cboring.Unmarshal(&bid.SourceNode, r); err != nil {
		return fmt.Errorf("unmarshalling source node failed: %v", err)
	}
	if err := cboring.Unmarshal(&bid.Timestamp, r); err != nil {
		return fmt.Errorf("unmarshalling timestamp failed: %v", err)
	}

	if bid.IsFragment {
		for _, fld := range []*uint64{&bid.FragmentOffset, &bid.TotalDataLength} {
			n, err := cboring.ReadUInt(r)
			if err != nil {
				return err
			}
			*fld = n
		}
	}

	return nil
}

// EqualsIgnoringFragmentInfo reports whether two PrimaryBlocks describe the
// same logical bundle, ignoring FragmentOffset and TotalDataLength (and the
// FRAGMENT bit, which those two fields gate). This is the exact predicate
// spec.md's reassembly algorithm requires: do not widen or narrow it to
// compare any other field differently.
func (pb PrimaryBlock) EqualsIgnoringFragmentInfo(other PrimaryBlock) bool {
	const fragmentMask = ^BundleControlFlags(0) ^ IsFragment

	return pb.Version == other.Version &&
		(pb.BundleControlFlags&fragmentMask) == (other.BundleControlFlags&fragmentMask) &&
		pb.CRCType == other.CRCType &&
		pb.Destination == other.Destination &&
		pb.SourceNode == other.SourceNode &&
		pb.ReportTo == other.ReportTo &&
		pb.CreationTimestamp == other.CreationTimestamp &&
		pb.Lifetime == other.Lifetime
}
