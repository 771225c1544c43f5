// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// SegmentFlags are single-bit flags carried by an XFER_SEGMENT message.
type SegmentFlags uint8

const (
	// SegmentEnd indicates that this segment is the last of the transfer.
	SegmentEnd SegmentFlags = 0x01

	// SegmentStart indicates that this segment is the first of the transfer.
	SegmentStart SegmentFlags = 0x02
)

func (sf SegmentFlags) String() string {
	var flags []string

	if sf&SegmentEnd != 0 {
		flags = append(flags, "END")
	}
	if sf&SegmentStart != 0 {
		flags = append(flags, "START")
	}

	return strings.Join(flags, ",")
}

// XFER_SEGMENT is the Message Header code for a Data Transmission Message.
const XFER_SEGMENT uint8 = 0x01

// DataTransmissionMessage carries one segment of bundle data. Only the
// segment marked with SegmentStart carries Transfer Extension Items; every
// other segment of the same transfer omits that field entirely.
type DataTransmissionMessage struct {
	Flags         SegmentFlags
	TransferId    uint64
	TransferExtensions []SessionExtensionItem
	Data          []byte
}

// NewDataTransmissionMessage creates a new DataTransmissionMessage.
func NewDataTransmissionMessage(flags SegmentFlags, tid uint64, data []byte) DataTransmissionMessage {
	return DataTransmissionMessage{Flags: flags, TransferId: tid, Data: data}
}

func (dtm DataTransmissionMessage) String() string {
	return fmt.Sprintf("XFER_SEGMENT(Flags=%v, Transfer ID=%d, Data=%d bytes)",
		dtm.Flags, dtm.TransferId, len(dtm.Data))
}

func (dtm DataTransmissionMessage) Marshal(w io.Writer) error {
	fields := []interface{}{XFER_SEGMENT, dtm.Flags, dtm.TransferId}
	for _, field := range fields {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}

	if dtm.Flags&SegmentStart != 0 {
		if err := marshalSessionExtensionItems(w, dtm.TransferExtensions); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.BigEndian, uint64(len(dtm.Data))); err != nil {
		return err
	}

	if n, err := w.Write(dtm.Data); err != nil {
		return err
	} else if n != len(dtm.Data) {
		return fmt.Errorf("%w: XFER_SEGMENT data length is %d, wrote %d bytes", ErrMalformedMessage, len(dtm.Data), n)
	}

	return nil
}

func (dtm *DataTransmissionMessage) Unmarshal(r io.Reader) error {
	var messageHeader uint8
	if err := binary.Read(r, binary.BigEndian, &messageHeader); err != nil {
		return err
	} else if messageHeader != XFER_SEGMENT {
		return fmt.Errorf("%w: XFER_SEGMENT header is %d instead of %d", ErrMalformedMessage, messageHeader, XFER_SEGMENT)
	}

	fields := []interface{}{&dtm.Flags, &dtm.TransferId}
	for _, field := range fields {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return err
		}
	}

	if dtm.Flags&SegmentStart != 0 {
		extensions, err := unmarshalSessionExtensionItems(r)
		if err != nil {
			return err
		}
		dtm.TransferExtensions = extensions
	}

	var dataLen uint64
	if err := binary.Read(r, binary.BigEndian, &dataLen); err != nil {
		return err
	}

	if dataLen > 0 {
		dtm.Data = make([]byte, dataLen)
		if _, err := io.ReadFull(r, dtm.Data); err != nil {
			return err
		}
	}

	return nil
}
