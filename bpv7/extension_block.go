// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"sync"
)

// Known canonical block type codes, spec.md section 3.
const (
	ExtBlockTypePayloadBlock      uint64 = 1
	ExtBlockTypePreviousNodeBlock uint64 = 6
	ExtBlockTypeBundleAgeBlock    uint64 = 7
	ExtBlockTypeHopCountBlock     uint64 = 10
)

// ExtensionBlock is the payload of a CanonicalBlock: a closed sum type over
// the known block kinds plus a generic catch-all for unregistered type
// codes, which preserves forward-compatible passthrough of bundles carrying
// block types this build does not understand.
type ExtensionBlock interface {
	// BlockTypeCode returns this ExtensionBlock's block type code.
	BlockTypeCode() uint64

	// CheckValid returns an error for malformed data specific to this block kind.
	CheckValid() error

	MarshalCbor(io.Writer) error
	UnmarshalCbor(io.Reader) error
}

type extensionBlockManager struct {
	mu      sync.Mutex
	typeMap map[uint64]reflect.Type
}

var extBlockMngr = &extensionBlockManager{typeMap: make(map[uint64]reflect.Type)}

// registerExtensionBlock adds a new known ExtensionBlock kind to the registry.
func registerExtensionBlock(typeCode uint64, impl ExtensionBlock) {
	extBlockMngr.mu.Lock()
	defer extBlockMngr.mu.Unlock()

	extBlockMngr.typeMap[typeCode] = reflect.TypeOf(impl).Elem()
}

// isKnownExtensionBlock reports whether typeCode has a registered implementation.
func isKnownExtensionBlock(typeCode uint64) bool {
	extBlockMngr.mu.Lock()
	defer extBlockMngr.mu.Unlock()

	_, ok := extBlockMngr.typeMap[typeCode]
	return ok
}

// newExtensionBlock constructs a zero-valued ExtensionBlock for typeCode, or
// a GenericExtensionBlock if typeCode is unregistered.
func newExtensionBlock(typeCode uint64) ExtensionBlock {
	extBlockMngr.mu.Lock()
	t, ok := extBlockMngr.typeMap[typeCode]
	extBlockMngr.mu.Unlock()

	if !ok {
		return &GenericExtensionBlock{typeCode: typeCode}
	}

	return reflect.New(t).Interface().(ExtensionBlock)
}

func init() {
	registerExtensionBlock(ExtBlockTypePayloadBlock, &PayloadBlock{})
	registerExtensionBlock(ExtBlockTypePreviousNodeBlock, &PreviousNodeBlock{})
	registerExtensionBlock(ExtBlockTypeBundleAgeBlock, &BundleAgeBlock{})
	registerExtensionBlock(ExtBlockTypeHopCountBlock, &HopCountBlock{})
}

// extensionBlockFromBytes decodes an ExtensionBlock from its opaque CBOR
// byte-string payload, dispatching on typeCode via the registry. Unknown
// type codes decode to a GenericExtensionBlock carrying the raw bytes
// verbatim, per spec.md's forwarding-transparency requirement.
func extensionBlockFromBytes(typeCode uint64, data []byte) (ExtensionBlock, error) {
	eb := newExtensionBlock(typeCode)

	if g, ok := eb.(*GenericExtensionBlock); ok {
		g.data = data
		return g, nil
	}

	if err := eb.UnmarshalCbor(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: extension block type %d: %v", ErrMalformedInput, typeCode, err)
	}

	return eb, nil
}

// extensionBlockToBytes encodes an ExtensionBlock's CBOR representation into
// a standalone byte slice, the opaque payload a CanonicalBlock wraps.
func extensionBlockToBytes(eb ExtensionBlock) ([]byte, error) {
	if g, ok := eb.(*GenericExtensionBlock); ok {
		return g.data, nil
	}

	buff := new(bytes.Buffer)
	if err := eb.MarshalCbor(buff); err != nil {
		return nil, err
	}

	return buff.Bytes(), nil
}
