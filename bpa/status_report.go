// SPDX-License-Identifier: GPL-3.0-or-later

package bpa

import (
	"github.com/dtn7/dtnd7/bpv7"
)

// bundleControlFlagForStatus maps a status-information position to the
// bundle processing control flag bit that requests it, spec.md section 6.
var bundleControlFlagForStatus = map[bpv7.StatusInformationPos]bpv7.BundleControlFlags{
	bpv7.ReceivedBundle:  bpv7.StatusRequestReception,
	bpv7.ForwardedBundle: bpv7.StatusRequestForward,
	bpv7.DeliveredBundle: bpv7.StatusRequestDelivery,
	bpv7.DeletedBundle:   bpv7.StatusRequestDeletion,
}

// wantsStatusReport reports whether original's bundle processing control
// flags requested a status report for the given event.
func wantsStatusReport(original bpv7.Bundle, pos bpv7.StatusInformationPos) bool {
	flag, ok := bundleControlFlagForStatus[pos]
	return ok && original.PrimaryBlock.BundleControlFlags.Has(flag)
}

// buildStatusReport constructs an administrative-record bundle addressed to
// original's report-to endpoint, reporting pos for reason. The enclosing
// bundle does not itself request any status report, as required by
// BundleControlFlags.CheckValid.
func buildStatusReport(original bpv7.Bundle, pos bpv7.StatusInformationPos, reason bpv7.StatusReportReason, ownNode bpv7.EndpointID) (bpv7.Bundle, error) {
	report := bpv7.NewStatusReport(original, pos, reason, bpv7.DtnTimeNow())

	payload, err := bpv7.AdministrativeRecordToCbor(report)
	if err != nil {
		return bpv7.Bundle{}, err
	}

	primary := bpv7.NewPrimaryBlock(
		bpv7.AdministrativeRecordPayload,
		original.PrimaryBlock.ReportTo,
		ownNode,
		bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 0),
		original.PrimaryBlock.Lifetime,
	)

	return bpv7.NewBundle(primary, []bpv7.CanonicalBlock{
		bpv7.NewCanonicalBlock(1, 0, bpv7.NewPayloadBlock(payload)),
	})
}
