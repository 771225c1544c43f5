// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"io"
	"strings"

	"github.com/dtn7/cboring"
)

// BundleStatusItem is one element of a bundle status report's status
// information array: whether this status was asserted, and optionally the
// time it occurred.
type BundleStatusItem struct {
	Asserted        bool
	Time            DtnTime
	StatusRequested bool
}

// NewBundleStatusItem creates a BundleStatusItem with an assertion but no
// status time.
func NewBundleStatusItem(asserted bool) BundleStatusItem {
	return BundleStatusItem{Asserted: asserted, Time: DtnTimeEpoch}
}

// NewTimeReportingBundleStatusItem creates an asserted BundleStatusItem
// carrying the given status time.
func NewTimeReportingBundleStatusItem(t DtnTime) BundleStatusItem {
	return BundleStatusItem{Asserted: true, Time: t, StatusRequested: true}
}

func (bsi *BundleStatusItem) MarshalCbor(w io.Writer) error {
	arrLen := uint64(1)
	if bsi.Asserted && bsi.StatusRequested {
		arrLen = 2
	}

	if err := cboring.WriteArrayLength(arrLen, w); err != nil {
		return err
	}
	if err := cboring.WriteBoolean(bsi.Asserted, w); err != nil {
		return err
	}
	if arrLen == 2 {
		return cboring.WriteUInt(uint64(bsi.Time), w)
	}
	return nil
}

func (bsi *BundleStatusItem) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	} else if n != 1 && n != 2 {
		return fmt.Errorf("%w: bundle status item expects a 1- or 2-array, got %d", ErrMalformedInput, n)
	}

	asserted, err := cboring.ReadBoolean(r)
	if err != nil {
		return err
	}
	bsi.Asserted = asserted

	if n == 2 {
		t, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		bsi.Time = DtnTime(t)
		bsi.StatusRequested = true
	} else {
		bsi.StatusRequested = false
	}

	return nil
}

func (bsi BundleStatusItem) String() string {
	if !bsi.Asserted {
		return fmt.Sprintf("BundleStatusItem(%t)", bsi.Asserted)
	}
	return fmt.Sprintf("BundleStatusItem(%t, %v)", bsi.Asserted, bsi.Time)
}

// StatusReportReason is the reason code carried by a bundle status report.
type StatusReportReason uint64

const (
	NoInformation              StatusReportReason = 0
	LifetimeExpired            StatusReportReason = 1
	ForwardUnidirectionalLink  StatusReportReason = 2
	TransmissionCanceled       StatusReportReason = 3
	DepletedStorage            StatusReportReason = 4
	DestEndpointUnintelligible StatusReportReason = 5
	NoRouteToDestination       StatusReportReason = 6
	NoNextNodeContact          StatusReportReason = 7
	BlockUnintelligible        StatusReportReason = 8
	HopLimitExceeded           StatusReportReason = 9
	TrafficPared               StatusReportReason = 10
	BlockUnsupported           StatusReportReason = 11
)

func (srr StatusReportReason) String() string {
	switch srr {
	case NoInformation:
		return "No additional information"
	case LifetimeExpired:
		return "Lifetime expired"
	case ForwardUnidirectionalLink:
		return "Forward over unidirectional link"
	case TransmissionCanceled:
		return "Transmission canceled"
	case DepletedStorage:
		return "Depleted storage"
	case DestEndpointUnintelligible:
		return "Destination endpoint ID unintelligible"
	case NoRouteToDestination:
		return "No known route to destination from here"
	case NoNextNodeContact:
		return "No timely contact with next node on route"
	case BlockUnintelligible:
		return "Block unintelligible"
	case HopLimitExceeded:
		return "Hop limit exceeded"
	case TrafficPared:
		return "Traffic pared"
	case BlockUnsupported:
		return "Block unsupported"
	default:
		return "unknown"
	}
}

// StatusInformationPos indexes a bundle status report's status information
// array. Every bundle status report carries exactly these four entries.
type StatusInformationPos int

const (
	maxStatusInformationPos = 4

	ReceivedBundle   StatusInformationPos = 0
	ForwardedBundle  StatusInformationPos = 1
	DeliveredBundle  StatusInformationPos = 2
	DeletedBundle    StatusInformationPos = 3
)

func (sip StatusInformationPos) String() string {
	switch sip {
	case ReceivedBundle:
		return "received bundle"
	case ForwardedBundle:
		return "forwarded bundle"
	case DeliveredBundle:
		return "delivered bundle"
	case DeletedBundle:
		return "deleted bundle"
	default:
		return "unknown"
	}
}

// StatusReport is the Bundle Status Report administrative record, BP7
// section 6.1.1: a fixed-size status information array, a reason code and
// the BundleID of the bundle it reports on.
type StatusReport struct {
	StatusInformation []BundleStatusItem
	ReportReason      StatusReportReason
	RefBundle         BundleID
}

// NewStatusReport builds a status report for bndl, asserting statusItem and
// requesting a status time if the bundle asked for one.
func NewStatusReport(bndl Bundle, statusItem StatusInformationPos, reason StatusReportReason, t DtnTime) *StatusReport {
	report := &StatusReport{
		StatusInformation: make([]BundleStatusItem, maxStatusInformationPos),
		ReportReason:      reason,
		RefBundle:         bndl.ID(),
	}

	for i := 0; i < maxStatusInformationPos; i++ {
		sip := StatusInformationPos(i)

		switch {
		case sip == statusItem && bndl.PrimaryBlock.BundleControlFlags.Has(RequestStatusTime):
			report.StatusInformation[i] = NewTimeReportingBundleStatusItem(t)
		case sip == statusItem:
			report.StatusInformation[i] = NewBundleStatusItem(true)
		default:
			report.StatusInformation[i] = NewBundleStatusItem(false)
		}
	}

	return report
}

// StatusInformations returns the asserted StatusInformationPos entries.
func (sr StatusReport) StatusInformations() (sips []StatusInformationPos) {
	for i, si := range sr.StatusInformation {
		if si.Asserted {
			sips = append(sips, StatusInformationPos(i))
		}
	}
	return
}

func (sr *StatusReport) RecordTypeCode() uint64 {
	return AdminRecordTypeStatusReport
}

func (sr *StatusReport) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2+sr.RefBundle.Len(), w); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(uint64(len(sr.StatusInformation)), w); err != nil {
		return err
	}
	for i := range sr.StatusInformation {
		if err := cboring.Marshal(&sr.StatusInformation[i], w); err != nil {
			return fmt.Errorf("marshalling bundle status item failed: %v", err)
		}
	}

	if err := cboring.WriteUInt(uint64(sr.ReportReason), w); err != nil {
		return err
	}

	if err := cboring.Marshal(&sr.RefBundle, w); err != nil {
		return fmt.Errorf("marshalling referenced bundle id failed: %v", err)
	}

	return nil
}

func (sr *StatusReport) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	switch n {
	case 4:
		sr.RefBundle.IsFragment = false
	case 6:
		sr.RefBundle.IsFragment = true
	default:
		return fmt.Errorf("%w: status report expects a 4- or 6-array, got %d", ErrMalformedInput, n)
	}

	infoLen, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	sr.StatusInformation = make([]BundleStatusItem, int(infoLen))
	for i := range sr.StatusInformation {
		if err := cboring.Unmarshal(&sr.StatusInformation[i], r); err != nil {
			return fmt.Errorf("unmarshalling bundle status item failed: %v", err)
		}
	}

	reason, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	sr.ReportReason = StatusReportReason(reason)

	if err := cboring.Unmarshal(&sr.RefBundle, r); err != nil {
		return fmt.Errorf("unmarshalling referenced bundle id failed: %v", err)
	}

	return nil
}

func (sr StatusReport) String() string {
	var b strings.Builder
	b.WriteString("StatusReport([")

	for i, si := range sr.StatusInformation {
		if !si.Asserted {
			continue
		}
		sip := StatusInformationPos(i)
		if si.Time == DtnTimeEpoch {
			fmt.Fprintf(&b, "%v,", sip)
		} else {
			fmt.Fprintf(&b, "%v %v,", sip, si.Time)
		}
	}

	fmt.Fprintf(&b, "], %v, %v)", sr.ReportReason, sr.RefBundle)
	return b.String()
}
