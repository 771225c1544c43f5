// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import "io"

// PreviousNodeBlock records the endpoint of the node that most recently
// forwarded this bundle, block type code 6.
type PreviousNodeBlock EndpointID

// NewPreviousNodeBlock wraps an EndpointID as a PreviousNodeBlock.
func NewPreviousNodeBlock(eid EndpointID) *PreviousNodeBlock {
	pnb := PreviousNodeBlock(eid)
	return &pnb
}

// Endpoint returns this block's wrapped EndpointID.
func (pnb PreviousNodeBlock) Endpoint() EndpointID {
	return EndpointID(pnb)
}

func (pnb *PreviousNodeBlock) BlockTypeCode() uint64 {
	return ExtBlockTypePreviousNodeBlock
}

func (pnb *PreviousNodeBlock) CheckValid() error {
	return EndpointID(*pnb).CheckValid()
}

func (pnb *PreviousNodeBlock) MarshalCbor(w io.Writer) error {
	eid := EndpointID(*pnb)
	return eid.MarshalCbor(w)
}

func (pnb *PreviousNodeBlock) UnmarshalCbor(r io.Reader) error {
	var eid EndpointID
	if err := eid.UnmarshalCbor(r); err != nil {
		return err
	}
	*pnb = PreviousNodeBlock(eid)
	return nil
}
