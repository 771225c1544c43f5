// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"bytes"
	"reflect"
	"testing"
)

func roundtrip(t *testing.T, msg Message) Message {
	t.Helper()

	var buf bytes.Buffer
	if err := msg.Marshal(&buf); err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return got
}

func TestContactHeaderRoundtrip(t *testing.T) {
	ch := NewContactHeader(ContactCanTls)

	var buf bytes.Buffer
	if err := ch.Marshal(&buf); err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got ContactHeader
	if err := got.Unmarshal(&buf); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != ch {
		t.Errorf("roundtrip mismatch: got %v, want %v", got, ch)
	}
}

func TestContactHeaderRejectsBadMagic(t *testing.T) {
	var got ContactHeader
	if err := got.Unmarshal(bytes.NewReader([]byte{'x', 't', 'n', '!', 4, 0})); err == nil {
		t.Error("expected an error for a malformed magic")
	}
}

func TestContactHeaderRejectsBadVersion(t *testing.T) {
	var got ContactHeader
	if err := got.Unmarshal(bytes.NewReader([]byte{'d', 't', 'n', '!', 9, 0})); err == nil {
		t.Error("expected an error for an unsupported version")
	}
}

func TestSessionInitMessageRoundtrip(t *testing.T) {
	si := NewSessionInitMessage(3600, 4200, 2300, "dtn://foo/bar")

	got := roundtrip(t, &si).(*SessionInitMessage)
	if !reflect.DeepEqual(*got, si) {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", *got, si)
	}
}

func TestSessionInitMessageCarriesExtensions(t *testing.T) {
	si := NewSessionInitMessage(0, 0, 0, "dtn:none")
	si.Extensions = []SessionExtensionItem{
		{Flags: 0, Type: 0x1234, Value: []byte("hi")},
	}

	got := roundtrip(t, &si).(*SessionInitMessage)
	if len(got.Extensions) != 1 || got.Extensions[0].Type != 0x1234 {
		t.Fatalf("expected the session extension item to survive a roundtrip, got %+v", got.Extensions)
	}
}

func TestSessionInitMessageRejectsUnknownCriticalExtension(t *testing.T) {
	si := NewSessionInitMessage(0, 0, 0, "dtn:none")
	si.Extensions = []SessionExtensionItem{
		{Flags: ExtensionCritical, Type: 0xFFFF, Value: nil},
	}

	var buf bytes.Buffer
	if err := si.Marshal(&buf); err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got SessionInitMessage
	if err := got.Unmarshal(&buf); err == nil {
		t.Error("expected an unrecognized CRITICAL extension to be rejected")
	}
}

func TestSessionTerminationMessageRoundtrip(t *testing.T) {
	stm := NewSessionTerminationMessage(TerminationReply, TerminationIdleTimeout)

	got := roundtrip(t, &stm).(*SessionTerminationMessage)
	if *got != stm {
		t.Errorf("roundtrip mismatch: got %v, want %v", *got, stm)
	}
}

func TestSessionTerminationMessageRejectsInvalidReason(t *testing.T) {
	var buf bytes.Buffer
	if err := (&SessionTerminationMessage{ReasonCode: 0xFF}).Marshal(&buf); err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got SessionTerminationMessage
	if err := got.Unmarshal(&buf); err == nil {
		t.Error("expected an invalid reason code to be rejected")
	}
}

func TestKeepaliveMessageRoundtrip(t *testing.T) {
	km := NewKeepaliveMessage()

	got := roundtrip(t, &km)
	if _, ok := got.(*KeepaliveMessage); !ok {
		t.Fatalf("expected *KeepaliveMessage, got %T", got)
	}
}

func TestDataTransmissionMessageOmitsExtensionsWithoutStart(t *testing.T) {
	dtm := NewDataTransmissionMessage(0, 7, []byte("payload"))

	got := roundtrip(t, &dtm).(*DataTransmissionMessage)
	if got.TransferExtensions != nil {
		t.Errorf("expected no transfer extensions on a non-START segment, got %v", got.TransferExtensions)
	}
	if !bytes.Equal(got.Data, dtm.Data) {
		t.Errorf("data mismatch: got %x, want %x", got.Data, dtm.Data)
	}
}

func TestDataTransmissionMessageCarriesExtensionsOnStart(t *testing.T) {
	dtm := NewDataTransmissionMessage(SegmentStart, 7, []byte("payload"))
	dtm.TransferExtensions = []SessionExtensionItem{
		{Flags: 0, Type: 0x01, Value: []byte("x")},
	}

	got := roundtrip(t, &dtm).(*DataTransmissionMessage)
	if len(got.TransferExtensions) != 1 {
		t.Fatalf("expected the transfer extension item to survive a roundtrip, got %v", got.TransferExtensions)
	}
}

func TestDataAcknowledgementMessageRoundtrip(t *testing.T) {
	dam := NewDataAcknowledgementMessage(SegmentEnd, 7, 1024)

	got := roundtrip(t, &dam).(*DataAcknowledgementMessage)
	if *got != dam {
		t.Errorf("roundtrip mismatch: got %v, want %v", *got, dam)
	}
}

func TestTransferRefusalMessageRoundtrip(t *testing.T) {
	trm := NewTransferRefusalMessage(RefusalNoResources, 42)

	got := roundtrip(t, &trm).(*TransferRefusalMessage)
	if *got != trm {
		t.Errorf("roundtrip mismatch: got %v, want %v", *got, trm)
	}
}

func TestTransferRefusalMessageRejectsInvalidReason(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TransferRefusalMessage{ReasonCode: 0xEE}).Marshal(&buf); err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got TransferRefusalMessage
	if err := got.Unmarshal(&buf); err == nil {
		t.Error("expected an invalid reason code to be rejected")
	}
}

func TestMessageRejectionMessageRoundtrip(t *testing.T) {
	mrm := NewMessageRejectionMessage(RejectionUnsupported, XFER_SEGMENT)

	got := roundtrip(t, &mrm).(*MessageRejectionMessage)
	if *got != mrm {
		t.Errorf("roundtrip mismatch: got %v, want %v", *got, mrm)
	}
}

func TestReadMessageRejectsUnknownTypeCode(t *testing.T) {
	if _, err := ReadMessage(bytes.NewReader([]byte{0xEE})); err == nil {
		t.Error("expected an error reading an unregistered message type code")
	}
}
