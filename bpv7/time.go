// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dtn7/cboring"
)

// DtnTime is the count of milliseconds of Unix epoch time elapsed since the
// start of the year 2000 on the UTC scale, BP7 section 4.1.6. Unlike the
// RFC's second-resolution timestamp, this module follows spec.md's
// millisecond resolution throughout.
type DtnTime uint64

const (
	millis1970To2k int64 = 946684800000

	// DtnTimeEpoch represents the zero timestamp, used to signal the
	// absence of an accurate clock at creation time.
	DtnTimeEpoch DtnTime = 0
)

// UnixMilli returns the Unix millisecond timestamp for this DtnTime.
func (t DtnTime) UnixMilli() int64 {
	return int64(t) + millis1970To2k
}

// Time returns a UTC time.Time for this DtnTime.
func (t DtnTime) Time() time.Time {
	ms := t.UnixMilli()
	return time.Unix(ms/1000, (ms%1000)*int64(time.Millisecond)).UTC()
}

func (t DtnTime) String() string {
	return t.Time().Format("2006-01-02T15:04:05.000Z")
}

// DtnTimeFromTime converts a time.Time into a DtnTime.
func DtnTimeFromTime(t time.Time) DtnTime {
	return DtnTime(t.UTC().UnixMilli() - millis1970To2k)
}

// DtnTimeNow returns the current UTC time as a DtnTime.
func DtnTimeNow() DtnTime {
	return DtnTimeFromTime(time.Now())
}

// CreationTimestamp pairs a DtnTime with a per-(source,time) sequence
// number, BP7 section 4.1.7.
type CreationTimestamp [2]uint64

// NewCreationTimestamp builds a CreationTimestamp from a DtnTime and a
// sequence number.
func NewCreationTimestamp(t DtnTime, sequence uint64) CreationTimestamp {
	return [2]uint64{uint64(t), sequence}
}

// DtnTime returns the timestamp's time component.
func (ct CreationTimestamp) DtnTime() DtnTime {
	return DtnTime(ct[0])
}

// IsZeroTime reports whether the time component is the zero DtnTime,
// indicating the source had no accurate clock when the bundle was created.
func (ct CreationTimestamp) IsZeroTime() bool {
	return ct.DtnTime() == DtnTimeEpoch
}

// SequenceNumber returns the timestamp's sequence component.
func (ct CreationTimestamp) SequenceNumber() uint64 {
	return ct[1]
}

func (ct CreationTimestamp) String() string {
	return fmt.Sprintf("(%v, %d)", DtnTime(ct[0]), ct[1])
}

// MarshalCbor writes this CreationTimestamp's CBOR representation: a 2-array
// of time and sequence number.
func (ct *CreationTimestamp) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	for _, f := range ct {
		if err := cboring.WriteUInt(f, w); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalCbor reads a CreationTimestamp's CBOR representation.
func (ct *CreationTimestamp) UnmarshalCbor(r io.Reader) error {
	l, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("%w: creation timestamp expects a 2-array, got %d elements", ErrMalformedInput, l)
	}

	for i := 0; i < 2; i++ {
		f, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		ct[i] = f
	}

	return nil
}

// MarshalJSON renders a CreationTimestamp for operator-facing output.
func (ct CreationTimestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Date string `json:"date"`
		Seq  uint64 `json:"sequenceNo"`
	}{
		Date: ct.DtnTime().String(),
		Seq:  ct.SequenceNumber(),
	})
}
