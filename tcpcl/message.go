// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
)

// Message describes all kinds of TCPCLv4 messages, which have their
// serialization and deserialization in common.
type Message interface {
	Marshal(w io.Writer) error
	Unmarshal(r io.Reader) error
}

// messages maps the TCPCLv4 message type codes to an example instance of
// their type, used by NewMessage to construct a fresh zero value.
var messages = map[uint8]Message{
	SESS_INIT:    &SessionInitMessage{},
	SESS_TERM:    &SessionTerminationMessage{},
	XFER_SEGMENT: &DataTransmissionMessage{},
	XFER_ACK:     &DataAcknowledgementMessage{},
	XFER_REFUSE:  &TransferRefusalMessage{},
	KEEPALIVE:    &KeepaliveMessage{},
	MSG_REJECT:   &MessageRejectionMessage{},

	// ContactHeader's magic "dtn!" happens to start with the octet 0x64
	// ('d'), which ReadMessage already consumed to pick a type out of this
	// map; ContactHeader.Unmarshal re-reads that same octet as the first
	// byte of its magic via the MultiReader below.
	0x64: &ContactHeader{},
}

// NewMessage creates a new zero-valued Message for a given type code.
func NewMessage(typeCode uint8) (Message, error) {
	msgType, exists := messages[typeCode]
	if !exists {
		return nil, fmt.Errorf("%w: no TCPCLv4 message registered for type code 0x%X", ErrMalformedMessage, typeCode)
	}

	elem := reflect.TypeOf(msgType).Elem()
	return reflect.New(elem).Interface().(Message), nil
}

// ReadMessage parses the next TCPCLv4 message from r, dispatching on its
// leading type-code octet.
func ReadMessage(r io.Reader) (Message, error) {
	typeByte := make([]byte, 1)
	if _, err := io.ReadFull(r, typeByte); err != nil {
		return nil, err
	}

	msg, err := NewMessage(typeByte[0])
	if err != nil {
		return nil, err
	}

	if err := msg.Unmarshal(io.MultiReader(bytes.NewReader(typeByte), r)); err != nil {
		return nil, err
	}

	return msg, nil
}
