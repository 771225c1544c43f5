// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import "io"

// GenericExtensionBlock is the passthrough ExtensionBlock for type codes
// this build does not know about: it carries the type code and the raw,
// still-CBOR-encoded payload bytes verbatim, so an intermediate node can
// forward a bundle without understanding every block it carries.
type GenericExtensionBlock struct {
	typeCode uint64
	data     []byte
}

// NewGenericExtensionBlock wraps raw bytes as an unknown block of typeCode.
func NewGenericExtensionBlock(data []byte, typeCode uint64) *GenericExtensionBlock {
	return &GenericExtensionBlock{typeCode: typeCode, data: data}
}

func (g *GenericExtensionBlock) BlockTypeCode() uint64 {
	return g.typeCode
}

func (g *GenericExtensionBlock) CheckValid() error {
	return nil
}

// MarshalCbor is unused for GenericExtensionBlock; extensionBlockToBytes
// returns the stored raw bytes directly instead of re-encoding.
func (g *GenericExtensionBlock) MarshalCbor(_ io.Writer) error {
	return nil
}

// UnmarshalCbor is unused for GenericExtensionBlock; extensionBlockFromBytes
// stores the raw bytes directly instead of decoding them.
func (g *GenericExtensionBlock) UnmarshalCbor(_ io.Reader) error {
	return nil
}
