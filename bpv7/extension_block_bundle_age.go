// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"io"

	"github.com/dtn7/cboring"
)

// BundleAgeBlock tracks the number of milliseconds since the bundle's
// creation, for nodes without an accurate clock to timestamp with. Block
// type code 7. Required whenever the primary block's creation time is zero.
type BundleAgeBlock uint64

// NewBundleAgeBlock creates a BundleAgeBlock starting at age milliseconds.
func NewBundleAgeBlock(age uint64) *BundleAgeBlock {
	bab := BundleAgeBlock(age)
	return &bab
}

// Age returns the current age value in milliseconds.
func (bab BundleAgeBlock) Age() uint64 {
	return uint64(bab)
}

func (bab *BundleAgeBlock) BlockTypeCode() uint64 {
	return ExtBlockTypeBundleAgeBlock
}

func (bab *BundleAgeBlock) CheckValid() error {
	return nil
}

func (bab *BundleAgeBlock) MarshalCbor(w io.Writer) error {
	return cboring.WriteUInt(uint64(*bab), w)
}

func (bab *BundleAgeBlock) UnmarshalCbor(r io.Reader) error {
	v, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	*bab = BundleAgeBlock(v)
	return nil
}
