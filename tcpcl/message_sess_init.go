// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"encoding/binary"
	"fmt"
	"io"
)

// SESS_INIT is the Message Header code for a Session Initialization Message.
const SESS_INIT uint8 = 0x07

// SessionInitMessage negotiates session parameters and is the first message
// exchanged after an optional TLS upgrade.
type SessionInitMessage struct {
	KeepaliveInterval uint16
	SegmentMru        uint64
	TransferMru       uint64
	Eid               string
	Extensions        []SessionExtensionItem
}

// NewSessionInitMessage creates a new SessionInitMessage with the given
// fields and no session extensions.
func NewSessionInitMessage(keepaliveInterval uint16, segmentMru, transferMru uint64, eid string) SessionInitMessage {
	return SessionInitMessage{
		KeepaliveInterval: keepaliveInterval,
		SegmentMru:        segmentMru,
		TransferMru:       transferMru,
		Eid:               eid,
	}
}

func (si SessionInitMessage) String() string {
	return fmt.Sprintf(
		"SESS_INIT(Keepalive Interval=%d, Segment MRU=%d, Transfer MRU=%d, EID=%s)",
		si.KeepaliveInterval, si.SegmentMru, si.TransferMru, si.Eid)
}

func (si SessionInitMessage) Marshal(w io.Writer) error {
	fields := []interface{}{
		SESS_INIT,
		si.KeepaliveInterval,
		si.SegmentMru,
		si.TransferMru,
		uint16(len(si.Eid))}

	for _, field := range fields {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}

	if n, err := io.WriteString(w, si.Eid); err != nil {
		return err
	} else if n != len(si.Eid) {
		return fmt.Errorf("%w: SESS_INIT EID length is %d, wrote %d bytes", ErrMalformedMessage, len(si.Eid), n)
	}

	return marshalSessionExtensionItems(w, si.Extensions)
}

func (si *SessionInitMessage) Unmarshal(r io.Reader) error {
	var messageHeader uint8
	if err := binary.Read(r, binary.BigEndian, &messageHeader); err != nil {
		return err
	} else if messageHeader != SESS_INIT {
		return fmt.Errorf("%w: SESS_INIT header is %d instead of %d", ErrMalformedMessage, messageHeader, SESS_INIT)
	}

	var eidLength uint16
	fields := []interface{}{&si.KeepaliveInterval, &si.SegmentMru, &si.TransferMru, &eidLength}
	for _, field := range fields {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return err
		}
	}

	eidBuff := make([]byte, eidLength)
	if _, err := io.ReadFull(r, eidBuff); err != nil {
		return err
	}
	si.Eid = string(eidBuff)

	extensions, err := unmarshalSessionExtensionItems(r)
	if err != nil {
		return err
	}
	si.Extensions = extensions

	return nil
}
