// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// ContactFlags are single-bit flags carried in a ContactHeader.
type ContactFlags uint8

const (
	// ContactCanTls indicates that the sending peer supports a TLS upgrade.
	ContactCanTls ContactFlags = 0x01
)

func (cf ContactFlags) String() string {
	var flags []string

	if cf&ContactCanTls != 0 {
		flags = append(flags, "CAN_TLS")
	}

	return strings.Join(flags, ",")
}

// ContactHeader is exchanged immediately after a TCP connection is
// established, before any other TCPCLv4 message. Both peers send one and
// validate the peer's.
type ContactHeader struct {
	Flags ContactFlags
}

// NewContactHeader creates a new ContactHeader with the given flags.
func NewContactHeader(flags ContactFlags) ContactHeader {
	return ContactHeader{Flags: flags}
}

func (ch ContactHeader) String() string {
	return fmt.Sprintf("ContactHeader(Version=4, Flags=%v)", ch.Flags)
}

// Marshal writes the six-octet wire form: magic "dtn!", version 4, flags.
func (ch ContactHeader) Marshal(w io.Writer) error {
	data := []byte{'d', 't', 'n', '!', 4, byte(ch.Flags)}

	if n, err := w.Write(data); err != nil {
		return err
	} else if n != len(data) {
		return fmt.Errorf("%w: contact header wrote %d octets instead of %d", ErrMalformedMessage, n, len(data))
	}

	return nil
}

// Unmarshal parses a ContactHeader from its six-octet wire form.
func (ch *ContactHeader) Unmarshal(r io.Reader) error {
	data := make([]byte, 6)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}

	if !bytes.Equal(data[:4], []byte("dtn!")) {
		return fmt.Errorf("%w: contact header magic is %x instead of \"dtn!\"", ErrMalformedMessage, data[:4])
	}
	if data[4] != 4 {
		return fmt.Errorf("%w: contact header version is %d instead of 4", ErrMalformedMessage, data[4])
	}

	ch.Flags = ContactFlags(data[5])
	return nil
}
