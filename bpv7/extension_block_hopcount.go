// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// HopCountBlock limits the number of forwarding hops a bundle may take,
// block type code 10: a (limit, count) pair.
type HopCountBlock struct {
	Limit uint64
	Count uint64
}

// NewHopCountBlock creates a HopCountBlock with the given limit and a zero count.
func NewHopCountBlock(limit uint64) *HopCountBlock {
	return &HopCountBlock{Limit: limit}
}

// IsExceeded reports whether Count has reached or passed Limit.
func (hc HopCountBlock) IsExceeded() bool {
	return hc.Count >= hc.Limit
}

// Increment returns a copy of hc with Count incremented by one.
func (hc HopCountBlock) Increment() HopCountBlock {
	hc.Count++
	return hc
}

func (hc *HopCountBlock) BlockTypeCode() uint64 {
	return ExtBlockTypeHopCountBlock
}

func (hc *HopCountBlock) CheckValid() error {
	return nil
}

func (hc *HopCountBlock) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(hc.Limit, w); err != nil {
		return err
	}
	return cboring.WriteUInt(hc.Count, w)
}

func (hc *HopCountBlock) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("%w: hop count block expects a 2-array, got %d elements", ErrMalformedInput, n)
	}

	if hc.Limit, err = cboring.ReadUInt(r); err != nil {
		return err
	}
	if hc.Count, err = cboring.ReadUInt(r); err != nil {
		return err
	}
	return nil
}
