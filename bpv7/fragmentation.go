// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"fmt"
	"sort"
)

const (
	// fragmentEnvelopeOverhead is the fixed per-fragment CBOR array framing
	// overhead (the indefinite-array start/break bytes), spec.md section 4.C.
	fragmentEnvelopeOverhead = 2

	// fragmentPayloadHeaderOverhead is the budgeted overhead of a fragment's
	// payload block header (type code, block number, flags, CRC type, CRC
	// and byte-string length prefix), spec.md section 4.C.
	fragmentPayloadHeaderOverhead = 128
)

// Fragment splits b into a sequence of bundles, each of whose serialized
// form fits within mtu bytes. If b already fits, or contains no more bytes
// than a single fragment can carry, Fragment returns a one-element slice
// containing b itself.
func (b Bundle) Fragment(mtu int) ([]Bundle, error) {
	var whole bytes.Buffer
	if err := b.WriteBundle(&whole); err == nil && whole.Len() <= mtu {
		return []Bundle{b}, nil
	}

	if b.PrimaryBlock.BundleControlFlags.Has(MustNotFragmented) {
		return nil, fmt.Errorf("%w: bundle control flags forbid fragmentation", ErrMustNotFragment)
	}

	payloadBlock, err := b.PayloadBlock()
	if err != nil {
		return nil, err
	}
	payload := payloadBlock.Value.(*PayloadBlock).Data
	payloadLen := len(payload)

	firstBlocksLen, otherBlocksLen, err := fragmentExtensionBlocksLen(b)
	if err != nil {
		return nil, err
	}

	var fragments []Bundle

	for i := 0; i < payloadLen; {
		fragPrimary, primaryLen, err := fragmentPrimaryBlock(b.PrimaryBlock, i, payloadLen)
		if err != nil {
			return nil, err
		}

		blocksLen := firstBlocksLen
		if i > 0 {
			blocksLen = otherBlocksLen
		}
		overhead := fragmentEnvelopeOverhead + primaryLen + blocksLen + fragmentPayloadHeaderOverhead

		fragPayloadLen := mtu - overhead
		if fragPayloadLen <= 0 {
			return nil, fmt.Errorf("%w: fragment overhead %d leaves no room in MTU %d", ErrCannotFragmentThatSmall, overhead, mtu)
		}

		fragBundle := MustNewBundle(fragPrimary, nil)

		for _, cb := range b.CanonicalBlocks {
			if cb.TypeCode() == ExtBlockTypePayloadBlock {
				continue
			}
			if i > 0 && !cb.BlockControlFlags.Has(ReplicateBlock) {
				continue
			}
			fragBundle.AddExtensionBlock(cb)
		}

		end := i + fragPayloadLen
		if end > payloadLen {
			end = payloadLen
		}

		fragPayload := NewCanonicalBlock(1, payloadBlock.BlockControlFlags, NewPayloadBlock(payload[i:end]))
		fragPayload.SetCRCType(payloadBlock.CRCType)
		fragBundle.AddExtensionBlock(fragPayload)

		if err := fragBundle.CheckValid(); err != nil {
			return nil, err
		}
		fragments = append(fragments, fragBundle)

		i = end
	}

	if len(fragments) <= 1 {
		return []Bundle{b}, nil
	}

	return fragments, nil
}

// fragmentPrimaryBlock builds a fragment's primary block and reports its
// serialized length.
func fragmentPrimaryBlock(pb PrimaryBlock, fragmentOffset, totalDataLength int) (PrimaryBlock, int, error) {
	fragPb := pb
	fragPb.BundleControlFlags |= IsFragment
	fragPb.FragmentOffset = uint64(fragmentOffset)
	fragPb.TotalDataLength = uint64(totalDataLength)
	fragPb.CRC = nil

	buff := new(bytes.Buffer)
	if err := fragPb.MarshalCbor(buff); err != nil {
		return PrimaryBlock{}, 0, err
	}

	return fragPb, buff.Len(), nil
}

// fragmentExtensionBlocksLen estimates the serialized length of the
// non-payload extension blocks carried by the first fragment and by every
// subsequent fragment (only those flagged ReplicateBlock).
func fragmentExtensionBlocksLen(b Bundle) (first int, others int, err error) {
	buff := new(bytes.Buffer)

	for _, cb := range b.CanonicalBlocks {
		if cb.TypeCode() == ExtBlockTypePayloadBlock {
			continue
		}

		buff.Reset()
		if err = cb.MarshalCbor(buff); err != nil {
			return 0, 0, err
		}

		first += buff.Len()
		if cb.BlockControlFlags.Has(ReplicateBlock) {
			others += buff.Len()
		}
	}

	return first, others, nil
}

// prepareReassembly sorts bs by fragment offset and verifies the fragments
// cover the original bundle without gaps.
func prepareReassembly(bs []Bundle) error {
	if len(bs) == 0 {
		return fmt.Errorf("slice of fragments is empty")
	}

	sort.Slice(bs, func(i, j int) bool {
		return bs[i].PrimaryBlock.FragmentOffset < bs[j].PrimaryBlock.FragmentOffset
	})

	lastIndex := uint64(0)
	for _, b := range bs {
		if !b.PrimaryBlock.BundleControlFlags.Has(IsFragment) {
			return fmt.Errorf("bundle is not a fragment")
		}

		if fragOff := b.PrimaryBlock.FragmentOffset; fragOff > lastIndex {
			return fmt.Errorf("next fragment starts at offset %d, gap from %d", fragOff, lastIndex)
		}

		payloadBlock, err := b.PayloadBlock()
		if err != nil {
			return err
		}
		lastIndex = b.PrimaryBlock.FragmentOffset + uint64(len(payloadBlock.Value.(*PayloadBlock).Data))
	}

	if total := bs[0].PrimaryBlock.TotalDataLength; total != lastIndex {
		return fmt.Errorf("last index %d does not match total length %d", lastIndex, total)
	}

	return nil
}

// IsBundleReassemblable reports whether bs contains a gapless, complete set
// of fragments. It may reorder bs as a side effect.
func IsBundleReassemblable(bs []Bundle) bool {
	return prepareReassembly(bs) == nil
}

func mergeFragmentPayload(bs []Bundle) ([]byte, error) {
	var data []byte
	lastIndex := 0

	for _, b := range bs {
		fragStart := int(b.PrimaryBlock.FragmentOffset)

		payloadBlock, err := b.PayloadBlock()
		if err != nil {
			return nil, err
		}
		fragData := payloadBlock.Value.(*PayloadBlock).Data

		data = append(data, fragData[lastIndex-fragStart:]...)
		lastIndex = fragStart + len(fragData)
	}

	return data, nil
}

// ReassembleFragments merges a complete, gapless set of fragments back into
// the original Bundle.
func ReassembleFragments(bs []Bundle) (Bundle, error) {
	if err := prepareReassembly(bs); err != nil {
		return Bundle{}, err
	}

	var b Bundle
	b.PrimaryBlock = bs[0].PrimaryBlock
	b.PrimaryBlock.BundleControlFlags &^= IsFragment
	b.PrimaryBlock.FragmentOffset = 0
	b.PrimaryBlock.TotalDataLength = 0
	b.PrimaryBlock.CRC = nil

	for _, cb := range bs[0].CanonicalBlocks {
		if cb.TypeCode() == ExtBlockTypePayloadBlock {
			continue
		}
		b.AddExtensionBlock(cb)
	}

	payload, err := mergeFragmentPayload(bs)
	if err != nil {
		return Bundle{}, err
	}

	pb0, err := bs[0].PayloadBlock()
	if err != nil {
		return Bundle{}, err
	}

	cb := NewCanonicalBlock(1, pb0.BlockControlFlags, NewPayloadBlock(payload))
	cb.SetCRCType(pb0.CRCType)
	b.AddExtensionBlock(cb)

	if err := b.CheckValid(); err != nil {
		return Bundle{}, err
	}

	return b, nil
}
