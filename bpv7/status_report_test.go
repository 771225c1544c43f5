// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"testing"
)

func TestStatusReportCborRoundtrip(t *testing.T) {
	primary := NewPrimaryBlock(
		RequestStatusTime,
		MustNewEndpointID("dtn://dst/"),
		MustNewEndpointID("dtn://src/"),
		NewCreationTimestamp(DtnTimeNow(), 7),
		60000)

	b, err := NewBundle(primary, []CanonicalBlock{
		NewCanonicalBlock(1, 0, NewPayloadBlock([]byte("hello"))),
	})
	if err != nil {
		t.Fatal(err)
	}

	sr := NewStatusReport(b, DeliveredBundle, NoInformation, DtnTimeNow())

	buff := new(bytes.Buffer)
	if err := sr.MarshalCbor(buff); err != nil {
		t.Fatal(err)
	}

	var sr2 StatusReport
	if err := sr2.UnmarshalCbor(buff); err != nil {
		t.Fatal(err)
	}

	if sr2.ReportReason != NoInformation {
		t.Errorf("expected report reason %v, got %v", NoInformation, sr2.ReportReason)
	}

	sips := sr2.StatusInformations()
	if len(sips) != 1 || sips[0] != DeliveredBundle {
		t.Errorf("expected only DeliveredBundle asserted, got %v", sips)
	}

	if sr2.RefBundle.String() != b.ID().String() {
		t.Errorf("expected referenced bundle id %v, got %v", b.ID(), sr2.RefBundle)
	}
}

func TestAdministrativeRecordRoundtrip(t *testing.T) {
	primary := NewPrimaryBlock(
		0,
		MustNewEndpointID("dtn://dst/"),
		MustNewEndpointID("dtn://src/"),
		NewCreationTimestamp(DtnTimeNow(), 0),
		60000)

	b, err := NewBundle(primary, []CanonicalBlock{
		NewCanonicalBlock(1, 0, NewPayloadBlock([]byte("x"))),
	})
	if err != nil {
		t.Fatal(err)
	}

	sr := NewStatusReport(b, ReceivedBundle, NoInformation, DtnTimeNow())

	data, err := AdministrativeRecordToCbor(sr)
	if err != nil {
		t.Fatal(err)
	}

	ar, err := NewAdministrativeRecordFromCbor(data)
	if err != nil {
		t.Fatal(err)
	}

	sr2, ok := ar.(*StatusReport)
	if !ok {
		t.Fatalf("expected a *StatusReport, got %T", ar)
	}
	if sr2.RefBundle.String() != b.ID().String() {
		t.Errorf("expected referenced bundle id %v, got %v", b.ID(), sr2.RefBundle)
	}
}
