// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import "io"

// PayloadBlock carries the application data unit, block type code 1. Every
// Bundle must contain exactly one.
type PayloadBlock struct {
	Data []byte
}

// NewPayloadBlock creates a PayloadBlock wrapping data.
func NewPayloadBlock(data []byte) *PayloadBlock {
	return &PayloadBlock{Data: data}
}

func (pb *PayloadBlock) BlockTypeCode() uint64 {
	return ExtBlockTypePayloadBlock
}

func (pb *PayloadBlock) CheckValid() error {
	return nil
}

// MarshalCbor writes the payload's raw bytes directly; the byte-string
// framing around the whole block value is applied by CanonicalBlock.
func (pb *PayloadBlock) MarshalCbor(w io.Writer) error {
	_, err := w.Write(pb.Data)
	return err
}

// UnmarshalCbor reads the remaining bytes of r as the payload. The caller
// passes in exactly the block's byte-string contents, so reading to EOF is
// correct here.
func (pb *PayloadBlock) UnmarshalCbor(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	pb.Data = data
	return nil
}
