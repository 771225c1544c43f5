// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/dtn7/cboring"
)

const (
	ipnEndpointSchemeName string = "ipn"
	ipnEndpointSchemeNo   uint64 = 2
)

var ipnRe = regexp.MustCompile(`^` + ipnEndpointSchemeName + `:(\d+)\.(\d+)$`)

// IpnEndpoint is the "ipn" URI scheme EndpointType, RFC 6260: "ipn:N.S".
type IpnEndpoint struct {
	Node    uint64
	Service uint64
}

// NewIpnEndpoint parses an URI with the ipn scheme.
func NewIpnEndpoint(uri string) (e EndpointType, err error) {
	matches := ipnRe.FindStringSubmatch(uri)
	if len(matches) != 3 {
		err = fmt.Errorf("%w: uri %q is not an ipn endpoint", ErrMalformedInput, uri)
		return
	}

	var node, service uint64
	if node, err = strconv.ParseUint(matches[1], 10, 64); err != nil {
		return
	}
	if service, err = strconv.ParseUint(matches[2], 10, 64); err != nil {
		return
	}

	ie := IpnEndpoint{node, service}
	if err = ie.CheckValid(); err != nil {
		return
	}
	e = ie
	return
}

func (e IpnEndpoint) SchemeName() string {
	return ipnEndpointSchemeName
}

func (e IpnEndpoint) SchemeNo() uint64 {
	return ipnEndpointSchemeNo
}

func (e IpnEndpoint) Authority() string {
	return fmt.Sprintf("%d", e.Node)
}

func (e IpnEndpoint) Path() string {
	return fmt.Sprintf("%d", e.Service)
}

// IsSingleton reports that all ipn endpoints are singletons, by definition.
func (_ IpnEndpoint) IsSingleton() bool {
	return true
}

func (e IpnEndpoint) CheckValid() error {
	if e.Node < 1 || e.Service < 1 {
		return fmt.Errorf("%w: ipn node and service numbers must be >= 1", ErrMalformedInput)
	}
	return nil
}

func (e IpnEndpoint) String() string {
	return fmt.Sprintf("%s:%d.%d", ipnEndpointSchemeName, e.Node, e.Service)
}

// MarshalCbor writes this IpnEndpoint's scheme-specific-part CBOR value: a
// 2-array of node number and service number.
func (e IpnEndpoint) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	for _, n := range []uint64{e.Node, e.Service} {
		if err := cboring.WriteUInt(n, w); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalCbor reads an IpnEndpoint's scheme-specific-part CBOR value.
func (e *IpnEndpoint) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("%w: ipn endpoint expects a 2-array, got %d elements", ErrMalformedInput, n)
	}

	for _, f := range []*uint64{&e.Node, &e.Service} {
		v, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		*f = v
	}

	return nil
}
