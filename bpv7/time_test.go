// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"testing"
	"time"
)

func TestDtnTimeEpoch(t *testing.T) {
	if DtnTimeEpoch.UnixMilli() != millis1970To2k {
		t.Errorf("expected the DTN epoch to be %d unix millis, got %d", millis1970To2k, DtnTimeEpoch.UnixMilli())
	}
}

func TestDtnTimeRoundtrip(t *testing.T) {
	now := time.Date(2023, 5, 1, 12, 30, 0, 0, time.UTC)

	dt := DtnTimeFromTime(now)
	back := dt.Time()

	if !back.Equal(now) {
		t.Errorf("expected %v, got %v", now, back)
	}
}

func TestCreationTimestampIsZeroTime(t *testing.T) {
	zero := NewCreationTimestamp(DtnTimeEpoch, 0)
	if !zero.IsZeroTime() {
		t.Error("expected a zero DtnTime timestamp to report IsZeroTime")
	}

	nonZero := NewCreationTimestamp(DtnTimeNow(), 0)
	if nonZero.IsZeroTime() {
		t.Error("expected a current-time timestamp not to report IsZeroTime")
	}
}
