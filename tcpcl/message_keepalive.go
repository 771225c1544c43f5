// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"encoding/binary"
	"fmt"
	"io"
)

// KEEPALIVE is the Message Header code for a Keepalive Message.
const KEEPALIVE uint8 = 0x04

// KeepaliveMessage is the single-octet KEEPALIVE message sent periodically
// to keep an idle session alive.
type KeepaliveMessage struct{}

// NewKeepaliveMessage creates a new KeepaliveMessage.
func NewKeepaliveMessage() KeepaliveMessage {
	return KeepaliveMessage{}
}

func (km KeepaliveMessage) String() string {
	return "KEEPALIVE"
}

func (km KeepaliveMessage) Marshal(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, KEEPALIVE)
}

func (km *KeepaliveMessage) Unmarshal(r io.Reader) error {
	var messageHeader uint8
	if err := binary.Read(r, binary.BigEndian, &messageHeader); err != nil {
		return err
	} else if messageHeader != KEEPALIVE {
		return fmt.Errorf("%w: KEEPALIVE header is %d instead of %d", ErrMalformedMessage, messageHeader, KEEPALIVE)
	}

	return nil
}
