// SPDX-License-Identifier: GPL-3.0-or-later

package bpa

import (
	"testing"

	"github.com/dtn7/dtnd7/bpv7"
)

func TestWantsStatusReportHonorsControlFlags(t *testing.T) {
	b := mkBundle(t, testOwn, testPeer, []byte("a"))
	b.PrimaryBlock.BundleControlFlags |= bpv7.StatusRequestDelivery

	if !wantsStatusReport(b, bpv7.DeliveredBundle) {
		t.Error("expected a delivery status report to be wanted")
	}
	if wantsStatusReport(b, bpv7.ForwardedBundle) {
		t.Error("did not expect a forwarding status report to be wanted")
	}
}

func TestBuildStatusReportAddressesReportTo(t *testing.T) {
	b := mkBundle(t, testOwn, testPeer, []byte("a"))
	b.PrimaryBlock.BundleControlFlags |= bpv7.StatusRequestDelivery

	report, err := buildStatusReport(b, bpv7.DeliveredBundle, bpv7.NoInformation, testPeer)
	if err != nil {
		t.Fatalf("buildStatusReport: %v", err)
	}

	if report.PrimaryBlock.Destination != testOwn {
		t.Error("expected the status report addressed to the original bundle's report-to endpoint")
	}
	if report.PrimaryBlock.SourceNode != testPeer {
		t.Error("expected the status report sourced from the reporting node")
	}
	if !report.PrimaryBlock.BundleControlFlags.Has(bpv7.AdministrativeRecordPayload) {
		t.Error("expected the status report to carry the administrative-record payload flag")
	}
	if report.PrimaryBlock.BundleControlFlags.Has(bpv7.StatusRequestDelivery) {
		t.Error("a status report must not itself request a status report")
	}
}
