// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
	"github.com/hashicorp/go-multierror"
)

// CanonicalBlock is a non-primary bundle block, BP7 section 4.2.3: a block
// type code, a block number, block processing flags, an optional CRC, and a
// type-specific value. The value is carried as an opaque CBOR byte-string
// so that a node without a matching ExtensionBlock implementation can still
// forward it unmodified.
type CanonicalBlock struct {
	BlockNumber       uint64
	BlockControlFlags BlockControlFlags
	CRCType           CRCType
	Value             ExtensionBlock
	CRC               []byte
}

// NewCanonicalBlock wraps an ExtensionBlock value with a block number and
// processing flags. CRCType defaults to CRC32.
func NewCanonicalBlock(blockNumber uint64, blockControlFlags BlockControlFlags, value ExtensionBlock) CanonicalBlock {
	return CanonicalBlock{
		BlockNumber:       blockNumber,
		BlockControlFlags: blockControlFlags,
		CRCType:           CRC32,
		Value:             value,
	}
}

// TypeCode returns the wrapped ExtensionBlock's block type code.
func (cb CanonicalBlock) TypeCode() uint64 {
	return cb.Value.BlockTypeCode()
}

func (cb CanonicalBlock) HasCRC() bool {
	return cb.GetCRCType() != CRCNo
}

func (cb CanonicalBlock) GetCRCType() CRCType {
	return cb.CRCType
}

func (cb *CanonicalBlock) SetCRCType(crcType CRCType) {
	cb.CRCType = crcType
}

func (cb CanonicalBlock) CheckValid() (errs error) {
	if bcfErr := cb.BlockControlFlags.CheckValid(); bcfErr != nil {
		errs = multierror.Append(errs, bcfErr)
	}
	if valErr := cb.Value.CheckValid(); valErr != nil {
		errs = multierror.Append(errs, valErr)
	}
	return
}

// MarshalCbor writes this CanonicalBlock's CBOR representation: a 5-array
// (no CRC) or 6-array (with CRC), spec.md section 4.A.
func (cb *CanonicalBlock) MarshalCbor(w io.Writer) error {
	valueBytes, err := extensionBlockToBytes(cb.Value)
	if err != nil {
		return err
	}

	blockLen := uint64(5)
	if cb.HasCRC() {
		blockLen = 6
	}

	crcBuff := new(bytes.Buffer)
	w = io.MultiWriter(w, crcBuff)

	if err := cboring.WriteArrayLength(blockLen, w); err != nil {
		return err
	}

	fields := []uint64{cb.TypeCode(), cb.BlockNumber, uint64(cb.BlockControlFlags), uint64(cb.CRCType)}
	for _, f := range fields {
		if err := cboring.WriteUInt(f, w); err != nil {
			return err
		}
	}

	if err := cboring.WriteByteString(valueBytes, w); err != nil {
		return err
	}

	if !cb.HasCRC() {
		return nil
	}

	crcVal, err := calculateCRCBuff(crcBuff, cb.CRCType)
	if err != nil {
		return err
	}
	cb.CRC = crcVal

	return cboring.WriteByteString(crcVal, w)
}

// UnmarshalCbor reads a CanonicalBlock's CBOR representation.
func (cb *CanonicalBlock) UnmarshalCbor(r io.Reader) error {
	crcBuff := new(bytes.Buffer)
	r = io.TeeReader(r, crcBuff)

	blockLen, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	} else if blockLen != 5 && blockLen != 6 {
		return fmt.Errorf("%w: CanonicalBlock expects a 5- or 6-array, got %d elements", ErrMalformedInput, blockLen)
	}

	typeCode, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}

	if cb.BlockNumber, err = cboring.ReadUInt(r); err != nil {
		return err
	}

	bcf, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	cb.BlockControlFlags = BlockControlFlags(bcf)

	crcT, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	cb.CRCType = CRCType(crcT)

	valueBytes, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}

	if blockLen == 6 {
		wantLen := crcExpectedLen(cb.CRCType)
		crcCalc, err := calculateCRCBuff(crcBuff, cb.CRCType)
		if err != nil {
			return err
		}
		crcVal, err := cboring.ReadByteString(r)
		if err != nil {
			return err
		}
		if wantLen >= 0 && len(crcVal) != wantLen {
			return fmt.Errorf("%w: CRC value length %d does not match CRC type %v", ErrMalformedInput, len(crcVal), cb.CRCType)
		}
		if !bytes.Equal(crcCalc, crcVal) {
			return fmt.Errorf("%w: CRC mismatch: got %x, expected %x", ErrMalformedInput, crcVal, crcCalc)
		}
		cb.CRC = crcVal
	}

	value, err := extensionBlockFromBytes(typeCode, valueBytes)
	if err != nil {
		return err
	}
	cb.Value = value

	return nil
}

// MarshalJSON renders a CanonicalBlock for operator-facing output.
func (cb CanonicalBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		BlockNumber       uint64            `json:"blockNumber"`
		BlockTypeCode     uint64            `json:"blockTypeCode"`
		BlockControlFlags BlockControlFlags `json:"blockControlFlags"`
	}{
		BlockNumber:       cb.BlockNumber,
		BlockTypeCode:     cb.TypeCode(),
		BlockControlFlags: cb.BlockControlFlags,
	})
}
