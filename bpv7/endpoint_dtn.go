// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/dtn7/cboring"
)

const (
	dtnEndpointSchemeName string = "dtn"
	dtnEndpointSchemeNo   uint64 = 1
	dtnEndpointDtnNoneSsp string = "none"
)

// DtnEndpoint is the "dtn" URI scheme EndpointType, e.g. "dtn://node/path".
type DtnEndpoint struct {
	Ssp string
}

// NewDtnEndpoint parses an URI with the dtn scheme.
func NewDtnEndpoint(uri string) (e EndpointType, err error) {
	re := regexp.MustCompile("^" + dtnEndpointSchemeName + ":(.+)$")
	if !re.MatchString(uri) {
		err = fmt.Errorf("%w: uri %q is not a dtn endpoint", ErrMalformedInput, uri)
		return
	}

	e = DtnEndpoint{Ssp: re.FindStringSubmatch(uri)[1]}
	return
}

func (_ DtnEndpoint) SchemeName() string {
	return dtnEndpointSchemeName
}

func (_ DtnEndpoint) SchemeNo() uint64 {
	return dtnEndpointSchemeNo
}

func (e DtnEndpoint) parseUri() (authority, path string) {
	var tmpEndpoint string
	if !strings.HasPrefix(e.Ssp, "//") {
		tmpEndpoint = DtnEndpoint{"//" + e.Ssp}.String()
	} else {
		tmpEndpoint = e.String()
	}

	u, err := url.Parse(tmpEndpoint)
	if err != nil {
		return
	}

	authority = u.Hostname()
	path = u.RequestURI()
	return
}

func (e DtnEndpoint) Authority() string {
	authority, _ := e.parseUri()
	return authority
}

func (e DtnEndpoint) Path() string {
	_, path := e.parseUri()
	return path
}

// IsSingleton reports whether this endpoint is a singleton. A dtn endpoint
// naming only a node (no path beyond "/") is not itself meaningful as a
// singleton distinction in this module; all dtn endpoints are treated as
// singletons, matching the teacher's default.
func (_ DtnEndpoint) IsSingleton() bool {
	return true
}

func (_ DtnEndpoint) CheckValid() error {
	return nil
}

func (e DtnEndpoint) String() string {
	return fmt.Sprintf("%s:%s", dtnEndpointSchemeName, e.Ssp)
}

// MarshalCbor writes this DtnEndpoint's scheme-specific-part CBOR value: the
// unsigned integer 0 for dtn:none, otherwise a text string.
func (e DtnEndpoint) MarshalCbor(w io.Writer) error {
	if e.Ssp == dtnEndpointDtnNoneSsp {
		return cboring.WriteUInt(0, w)
	}
	return cboring.WriteTextString(e.Ssp, w)
}

// UnmarshalCbor reads a DtnEndpoint's scheme-specific-part CBOR value.
func (e *DtnEndpoint) UnmarshalCbor(r io.Reader) error {
	m, n, err := cboring.ReadMajors(r)
	if err != nil {
		return err
	}

	switch m {
	case cboring.UInt:
		if n != 0 {
			return fmt.Errorf("%w: dtn endpoint integer form must be 0, got %d", ErrMalformedInput, n)
		}
		e.Ssp = dtnEndpointDtnNoneSsp

	case cboring.TextString:
		tmp, err := cboring.ReadRawBytes(n, r)
		if err != nil {
			return err
		}
		e.Ssp = string(tmp)

	default:
		return fmt.Errorf("%w: DtnEndpoint wrong major type 0x%X", ErrMalformedInput, m)
	}

	return nil
}

// DtnNone returns the null endpoint "dtn:none".
func DtnNone() EndpointID {
	return EndpointID{DtnEndpoint{Ssp: dtnEndpointDtnNoneSsp}}
}
