// SPDX-FileCopyrightText: 2018, 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dtn7/cboring"
	"github.com/hashicorp/go-multierror"
)

const dtnVersion uint64 = 7

// PrimaryBlock is a representation of the primary bundle block as defined in
// section 4.2.2.
type PrimaryBlock struct {
	Version            uint64
	BundleControlFlags BundleControlFlags
	CRCType            CRCType
	Destination        EndpointID
	SourceNode         EndpointID
	ReportTo           EndpointID
	CreationTimestamp  CreationTimestamp
	Lifetime           uint64
	FragmentOffset     uint64
	TotalDataLength    uint64
	CRC                []byte
}

// NewPrimaryBlock creates a new primary block with the given parameters. All
// other fields are set to default values. The lifetime is passed in milliseconds.
func NewPrimaryBlock(bundleControlFlags BundleControlFlags, destination EndpointID, sourceNode EndpointID, creationTimestamp CreationTimestamp, lifetime uint64) PrimaryBlock {
	pb := PrimaryBlock{
		Version:            dtnVersion,
		BundleControlFlags: bundleControlFlags,
		CRCType:            CRC32,
		Destination:        destination,
		SourceNode:         sourceNode,
		ReportTo:           sourceNode,
		CreationTimestamp:  creationTimestamp,
		Lifetime:           lifetime,
		FragmentOffset:     0,
		TotalDataLength:    0,
		CRC:                nil,
	}

	_ = pb.calculateCRC()
	return pb
}

// HasFragmentation returns true if the bundle processing control flags
// indicates a fragmented bundle. In this case the FragmentOffset and
// TotalDataLength fields should become relevant.
func (pb PrimaryBlock) HasFragmentation() bool {
	return pb.BundleControlFlags.Has(IsFragment)
}

// HasCRC returns if the CRCType indicates a CRC is present for this block.
func (pb PrimaryBlock) HasCRC() bool {
	return pb.GetCRCType() != CRCNo
}

// GetCRCType returns the CRCType of this block.
func (pb PrimaryBlock) GetCRCType() CRCType {
	return pb.CRCType
}

// SetCRCType sets the CRC type. CRCNo is a valid choice, spec.md section 4.A.
func (pb *PrimaryBlock) SetCRCType(crcType CRCType) {
	pb.CRCType = crcType
	_ = pb.calculateCRC()
}

// arrayLength returns the primary block's CBOR array length for the current
// CRCType/fragmentation state: 8 (no CRC, no fragment), 9 (CRC, no
// fragment), 10 (no CRC, fragment) or 11 (CRC + fragment).
func (pb PrimaryBlock) arrayLength() uint64 {
	l := uint64(8)
	if pb.HasCRC() {
		l++
	}
	if pb.HasFragmentation() {
		l += 2
	}
	return l
}

// calculateCRC serializes the PrimaryBlock once to calculate its CRC value.
// Since this block is immutable, this should not cause any errors. This method
// must be called both when creating the block and when changing its CRC.
func (pb *PrimaryBlock) calculateCRC() error {
	pb.CRC = nil
	return pb.MarshalCbor(new(bytes.Buffer))
}

// MarshalCbor writes the CBOR representation of a PrimaryBlock: an array of
// length 8, 9, 10 or 11 depending on CRC and fragmentation presence,
// spec.md section 4.A.
func (pb *PrimaryBlock) MarshalCbor(w io.Writer) error {
	crcBuff := new(bytes.Buffer)
	w = io.MultiWriter(w, crcBuff)

	if err := cboring.WriteArrayLength(pb.arrayLength(), w); err != nil {
		return err
	}

	fields := []uint64{dtnVersion, uint64(pb.BundleControlFlags), uint64(pb.CRCType)}
	for _, f := range fields {
		if err := cboring.WriteUInt(f, w); err != nil {
			return err
		}
	}

	eids := []*EndpointID{&pb.Destination, &pb.SourceNode, &pb.ReportTo}
	for _, eid := range eids {
		if err := eid.MarshalCbor(w); err != nil {
			return fmt.Errorf("EndpointID failed: %v", err)
		}
	}

	if err := cboring.Marshal(&pb.CreationTimestamp, w); err != nil {
		return fmt.Errorf("CreationTimestamp failed: %v", err)
	}

	if err := cboring.WriteUInt(pb.Lifetime, w); err != nil {
		return err
	}

	if pb.HasFragmentation() {
		fields = []uint64{pb.FragmentOffset, pb.TotalDataLength}
		for _, f := range fields {
			if err := cboring.WriteUInt(f, w); err != nil {
				return err
			}
		}
	}

	if !pb.HasCRC() {
		pb.CRC = nil
		return nil
	}

	crcVal, err := calculateCRCBuff(crcBuff, pb.CRCType)
	if err != nil {
		return err
	}
	pb.CRC = crcVal

	return cboring.WriteByteString(crcVal, w)
}

// UnmarshalCbor reads the CBOR representation of a PrimaryBlock.
func (pb *PrimaryBlock) UnmarshalCbor(r io.Reader) error {
	crcBuff := new(bytes.Buffer)
	r = io.TeeReader(r, crcBuff)

	blockLen, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	} else if blockLen < 8 || blockLen > 11 {
		return fmt.Errorf("%w: primary block expects an array of length 8-11, got %d", ErrMalformedInput, blockLen)
	}

	version, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	} else if version != dtnVersion {
		return fmt.Errorf("%w: expected bundle protocol version %d, got %d", ErrMalformedInput, dtnVersion, version)
	}
	pb.Version = version

	bcf, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	pb.BundleControlFlags = BundleControlFlags(bcf)

	crcT, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	pb.CRCType = CRCType(crcT)

	hasFragment := blockLen == 10 || blockLen == 11
	hasCRC := blockLen == 9 || blockLen == 11
	if hasCRC != pb.HasCRC() {
		return fmt.Errorf("%w: primary block array length %d does not match CRC type %v", ErrMalformedInput, blockLen, pb.CRCType)
	}
	if hasFragment != pb.BundleControlFlags.Has(IsFragment) {
		return fmt.Errorf("%w: primary block array length %d does not match the fragment flag", ErrMalformedInput, blockLen)
	}

	eids := []*EndpointID{&pb.Destination, &pb.SourceNode, &pb.ReportTo}
	for _, eid := range eids {
		if err := eid.UnmarshalCbor(r); err != nil {
			return fmt.Errorf("EndpointID failed: %v", err)
		}
	}

	if err := cboring.Unmarshal(&pb.CreationTimestamp, r); err != nil {
		return fmt.Errorf("CreationTimestamp failed: %v", err)
	}

	if pb.Lifetime, err = cboring.ReadUInt(r); err != nil {
		return err
	}

	if hasFragment {
		fields := []*uint64{&pb.FragmentOffset, &pb.TotalDataLength}
		for _, f := range fields {
			if *f, err = cboring.ReadUInt(r); err != nil {
				return err
			}
		}
	}

	if !hasCRC {
		pb.CRC = nil
		return nil
	}

	wantLen := crcExpectedLen(pb.CRCType)
	crcCalc, err := calculateCRCBuff(crcBuff, pb.CRCType)
	if err != nil {
		return err
	}
	crcVal, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}
	if wantLen >= 0 && len(crcVal) != wantLen {
		return fmt.Errorf("%w: CRC value length %d does not match CRC type %v", ErrMalformedInput, len(crcVal), pb.CRCType)
	}
	if !bytes.Equal(crcCalc, crcVal) {
		return fmt.Errorf("%w: invalid CRC value: %x instead of expected %x", ErrMalformedInput, crcVal, crcCalc)
	}
	pb.CRC = crcVal

	return nil
}

// MarshalJSON writes a JSON object representing this PrimaryBlock.
func (pb PrimaryBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		ControlFlags      BundleControlFlags `json:"bundleControlFlags"`
		Destination       string             `json:"destination"`
		Source            string             `json:"source"`
		ReportTo          string             `json:"reportTo"`
		CreationTimestamp CreationTimestamp  `json:"creationTimestamp"`
		Lifetime          uint64             `json:"lifetime"`
	}{
		ControlFlags:      pb.BundleControlFlags,
		Destination:       pb.Destination.String(),
		Source:            pb.SourceNode.String(),
		ReportTo:          pb.ReportTo.String(),
		CreationTimestamp: pb.CreationTimestamp,
		Lifetime:          pb.Lifetime,
	})
}

// CheckValid returns an array of errors for incorrect data.
func (pb PrimaryBlock) CheckValid() (errs error) {
	if pb.Version != dtnVersion {
		errs = multierror.Append(errs,
			fmt.Errorf("PrimaryBlock: Wrong Version, %d instead of %d", pb.Version, dtnVersion))
	}

	if bcfErr := pb.BundleControlFlags.CheckValid(); bcfErr != nil {
		errs = multierror.Append(errs, bcfErr)
	}

	if destErr := pb.Destination.CheckValid(); destErr != nil {
		errs = multierror.Append(errs, destErr)
	}

	if srcErr := pb.SourceNode.CheckValid(); srcErr != nil {
		errs = multierror.Append(errs, srcErr)
	}

	if rprtToErr := pb.ReportTo.CheckValid(); rprtToErr != nil {
		errs = multierror.Append(errs, rprtToErr)
	}

	if pb.IsLifetimeExceeded() {
		errs = multierror.Append(errs, fmt.Errorf("PrimaryBlock: Lifetime is exceeded"))
	}

	// 4.1.3 says that "if the bundle's source node is omitted [src = dtn:none]
	// [...] the "Bundle must not be fragmented" flag value must be 1 and all
	// status report request flag values must be zero.
	// SourceNode == dtn:none => (
	//    MustNotFragmented
	//  & !"all status report flags")
	bpcfImpl := !(pb.SourceNode == DtnNone()) ||
		(pb.BundleControlFlags.Has(MustNotFragmented) &&
			!pb.BundleControlFlags.Has(StatusRequestReception) &&
			!pb.BundleControlFlags.Has(StatusRequestForward) &&
			!pb.BundleControlFlags.Has(StatusRequestDelivery) &&
			!pb.BundleControlFlags.Has(StatusRequestDeletion))
	if !bpcfImpl {
		errs = multierror.Append(errs,
			fmt.Errorf("PrimaryBlock: Source Node is dtn:none, but Bundle could "+
				"be fragmented or status report flags are not zero"))
	}

	return
}

// IsLifetimeExceeded returns true if this PrimaryBlock's lifetime is exceeded.
// This method only compares the tuple of the CreationTimestamp and Lifetime
// against the current time.
//
// If the creation timestamp's time value is zero, this method will always
// return false.
func (pb PrimaryBlock) IsLifetimeExceeded() bool {
	if pb.CreationTimestamp.IsZeroTime() {
		return false
	}

	currentTs := time.Now()
	supremumTs := pb.CreationTimestamp.DtnTime().Time().Add(time.Duration(pb.Lifetime) * time.Millisecond)

	return currentTs.After(supremumTs)
}

func (pb PrimaryBlock) String() string {
	var b strings.Builder

	_, _ = fmt.Fprintf(&b, "version: %d, ", pb.Version)
	_, _ = fmt.Fprintf(&b, "bundle processing control flags: %b, ", pb.BundleControlFlags)
	_, _ = fmt.Fprintf(&b, "crc type: %v, ", pb.CRCType)
	_, _ = fmt.Fprintf(&b, "destination: %v, ", pb.Destination)
	_, _ = fmt.Fprintf(&b, "source node: %v, ", pb.SourceNode)
	_, _ = fmt.Fprintf(&b, "report to: %v, ", pb.ReportTo)
	_, _ = fmt.Fprintf(&b, "creation timestamp: %v, ", pb.CreationTimestamp)
	_, _ = fmt.Fprintf(&b, "lifetime: %d", pb.Lifetime)

	if pb.HasFragmentation() {
		_, _ = fmt.Fprintf(&b, " , ")
		_, _ = fmt.Fprintf(&b, "fragment offset: %d, ", pb.FragmentOffset)
		_, _ = fmt.Fprintf(&b, "total data length: %d", pb.TotalDataLength)
	}

	_, _ = fmt.Fprintf(&b, ", crc: %x", pb.CRC)

	return b.String()
}
