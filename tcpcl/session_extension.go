// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// SessionExtensionFlags are single-bit flags carried in a session extension
// item's header octet.
type SessionExtensionFlags uint8

const (
	// ExtensionCritical marks an extension item as mandatory to understand.
	// A receiver that does not implement the item's type must terminate the
	// session.
	ExtensionCritical SessionExtensionFlags = 0x01
)

// SessionExtensionItem is one TLV entry of a SESS_INIT's Session Extension
// Items field: a one-octet flags field, a two-octet type code, a two-octet
// length and the raw value.
type SessionExtensionItem struct {
	Flags SessionExtensionFlags
	Type  uint16
	Value []byte
}

// Critical reports whether this item's CRITICAL bit is set.
func (item SessionExtensionItem) Critical() bool {
	return item.Flags&ExtensionCritical != 0
}

func (item SessionExtensionItem) marshal(w io.Writer) error {
	fields := []interface{}{item.Flags, item.Type, uint16(len(item.Value))}
	for _, field := range fields {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}

	if n, err := w.Write(item.Value); err != nil {
		return err
	} else if n != len(item.Value) {
		return fmt.Errorf("%w: session extension item wrote %d octets instead of %d", ErrMalformedMessage, n, len(item.Value))
	}

	return nil
}

func (item *SessionExtensionItem) unmarshal(r io.Reader) error {
	var length uint16
	fields := []interface{}{&item.Flags, &item.Type, &length}
	for _, field := range fields {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return err
		}
	}

	item.Value = make([]byte, length)
	if _, err := io.ReadFull(r, item.Value); err != nil {
		return err
	}

	return nil
}

// knownSessionExtensionTypes lists the session extension type codes this
// build understands. No session extensions are currently implemented beyond
// parsing, so an implementation receiving a CRITICAL item of any type must
// refuse it.
var knownSessionExtensionTypes = map[uint16]bool{}

// marshalSessionExtensionItems encodes a Session Extension Items field: a
// four-octet total length followed by each item's TLV encoding.
func marshalSessionExtensionItems(w io.Writer, items []SessionExtensionItem) error {
	buf := new(bytes.Buffer)
	for _, item := range items {
		if err := item.marshal(buf); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.BigEndian, uint32(buf.Len())); err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}

	return nil
}

// unmarshalSessionExtensionItems reads a Session Extension Items field and
// rejects any CRITICAL item of an unrecognized type.
func unmarshalSessionExtensionItems(r io.Reader) ([]SessionExtensionItem, error) {
	var totalLen uint32
	if err := binary.Read(r, binary.BigEndian, &totalLen); err != nil {
		return nil, err
	}
	if totalLen == 0 {
		return nil, nil
	}

	buf := make([]byte, totalLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	br := bytes.NewReader(buf)
	var items []SessionExtensionItem
	for br.Len() > 0 {
		var item SessionExtensionItem
		if err := item.unmarshal(br); err != nil {
			return nil, fmt.Errorf("%w: session extension item: %v", ErrMalformedMessage, err)
		}

		if item.Critical() && !knownSessionExtensionTypes[item.Type] {
			return nil, fmt.Errorf("%w: session extension type 0x%04X", ErrUnknownCriticalExtension, item.Type)
		}

		items = append(items, item)
	}

	return items, nil
}
