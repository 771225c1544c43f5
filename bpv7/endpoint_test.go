// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"testing"
)

func TestEndpointIDDtnCbor(t *testing.T) {
	eid := MustNewEndpointID("dtn://foo/bar")

	buff := new(bytes.Buffer)
	if err := eid.MarshalCbor(buff); err != nil {
		t.Fatal(err)
	}

	var eid2 EndpointID
	if err := eid2.UnmarshalCbor(buff); err != nil {
		t.Fatal(err)
	}

	if eid != eid2 {
		t.Fatalf("roundtrip mismatch: %v != %v", eid, eid2)
	}
}

func TestEndpointIDIpnCbor(t *testing.T) {
	eid := MustNewEndpointID("ipn:23.42")

	buff := new(bytes.Buffer)
	if err := eid.MarshalCbor(buff); err != nil {
		t.Fatal(err)
	}

	var eid2 EndpointID
	if err := eid2.UnmarshalCbor(buff); err != nil {
		t.Fatal(err)
	}

	if eid != eid2 {
		t.Fatalf("roundtrip mismatch: %v != %v", eid, eid2)
	}
}

func TestEndpointIDMatchesNode(t *testing.T) {
	a := MustNewEndpointID("dtn://foo/bar")
	b := MustNewEndpointID("dtn://foo/baz")
	c := MustNewEndpointID("dtn://quux/bar")

	if !a.MatchesNode(b) {
		t.Error("expected dtn://foo/bar and dtn://foo/baz to share a node")
	}
	if a.MatchesNode(c) {
		t.Error("expected dtn://foo/bar and dtn://quux/bar not to share a node")
	}

	ai := MustNewEndpointID("ipn:1.2")
	bi := MustNewEndpointID("ipn:1.3")
	ci := MustNewEndpointID("ipn:2.2")

	if !ai.MatchesNode(bi) {
		t.Error("expected ipn:1.2 and ipn:1.3 to share a node")
	}
	if ai.MatchesNode(ci) {
		t.Error("expected ipn:1.2 and ipn:2.2 not to share a node")
	}
}

func TestEndpointIDNodeID(t *testing.T) {
	if n := MustNewEndpointID("dtn://foo/bar").NodeID(); n.String() != "dtn://foo/" {
		t.Errorf("expected dtn://foo/, got %v", n)
	}

	if n := MustNewEndpointID("ipn:23.42").NodeID(); n.String() != "ipn:23.0" {
		t.Errorf("expected ipn:23.0, got %v", n)
	}
}

func TestEndpointIDInvalid(t *testing.T) {
	if _, err := NewEndpointID("not-a-uri"); err == nil {
		t.Error("expected an error for a malformed URI")
	}

	if _, err := NewEndpointID("xyz://foo"); err == nil {
		t.Error("expected an error for an unregistered scheme")
	}
}
