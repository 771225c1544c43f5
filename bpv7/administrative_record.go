// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"fmt"

	"github.com/dtn7/cboring"
)

// AdminRecordTypeStatusReport is the Bundle Status Report's type code within
// its enclosing AdministrativeRecord, BP7 section 6.1.
const AdminRecordTypeStatusReport uint64 = 1

// AdministrativeRecord describes a payload carried by a bundle whose
// ADMINISTRATIVE_RECORD control flag is set. A StatusReport is the only
// kind defined here.
type AdministrativeRecord interface {
	cboring.CborMarshaler

	// RecordTypeCode returns this AdministrativeRecord's type code.
	RecordTypeCode() uint64
}

// NewAdministrativeRecordFromCbor decodes an AdministrativeRecord from a
// byte slice, typically a payload block's raw data.
func NewAdministrativeRecordFromCbor(data []byte) (ar AdministrativeRecord, err error) {
	r := bytes.NewReader(data)

	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return nil, err
	} else if n != 2 {
		return nil, fmt.Errorf("%w: administrative record expects a 2-array, got %d elements", ErrMalformedInput, n)
	}

	typeCode, err := cboring.ReadUInt(r)
	if err != nil {
		return nil, err
	}

	switch typeCode {
	case AdminRecordTypeStatusReport:
		ar = &StatusReport{}
	default:
		return nil, fmt.Errorf("%w: unsupported administrative record type code %d", ErrMalformedInput, typeCode)
	}

	if err := cboring.Unmarshal(ar, r); err != nil {
		return nil, fmt.Errorf("unmarshalling administrative record content failed: %v", err)
	}

	return ar, nil
}

// AdministrativeRecordToCbor wraps an AdministrativeRecord in its CBOR
// 2-array [type code, content] form, ready to be carried as a PayloadBlock's
// data. The enclosing bundle must have its ADMINISTRATIVE_RECORD bundle
// processing control flag set.
func AdministrativeRecordToCbor(ar AdministrativeRecord) ([]byte, error) {
	buff := new(bytes.Buffer)

	if err := cboring.WriteArrayLength(2, buff); err != nil {
		return nil, err
	}
	if err := cboring.WriteUInt(ar.RecordTypeCode(), buff); err != nil {
		return nil, err
	}
	if err := cboring.Marshal(ar, buff); err != nil {
		return nil, fmt.Errorf("marshalling administrative record content failed: %v", err)
	}

	return buff.Bytes(), nil
}
