// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"io"
	"reflect"
	"regexp"
	"sync"

	"github.com/dtn7/cboring"
)

// EndpointType describes a discrete EndpointID variant, e.g. "dtn" or "ipn".
//
// Because of Go's type system, MarshalCbor must be implemented as a value
// receiver in this interface while UnmarshalCbor must be a pointer receiver;
// there is no way to express that asymmetry in the interface itself.
type EndpointType interface {
	// SchemeName returns the static URI scheme name, e.g. "dtn".
	SchemeName() string

	// SchemeNo returns the static URI scheme type number, e.g. 1 for "dtn".
	SchemeNo() uint64

	// Authority is the authority part of the URI, e.g. "foo" for "dtn://foo/bar".
	Authority() string

	// Path is the path part of the URI, e.g. "/bar" for "dtn://foo/bar".
	Path() string

	// IsSingleton reports whether this endpoint represents a singleton.
	IsSingleton() bool

	MarshalCbor(io.Writer) error

	Valid
	fmt.Stringer
}

type endpointManager struct {
	typeMap map[uint64]reflect.Type
	newMap  map[string]func(string) (EndpointType, error)
}

var (
	endpointMngr  *endpointManager
	endpointMutex sync.Mutex
)

func getEndpointManager() *endpointManager {
	endpointMutex.Lock()
	defer endpointMutex.Unlock()

	if endpointMngr == nil {
		endpointMngr = &endpointManager{
			typeMap: make(map[uint64]reflect.Type),
			newMap:  make(map[string]func(string) (EndpointType, error)),
		}

		epTypes := []struct {
			schemeNo   uint64
			schemeName string
			impl       interface{}
			newFunc    func(string) (EndpointType, error)
		}{
			{dtnEndpointSchemeNo, dtnEndpointSchemeName, DtnEndpoint{}, NewDtnEndpoint},
			{ipnEndpointSchemeNo, ipnEndpointSchemeName, IpnEndpoint{}, NewIpnEndpoint},
		}

		for _, epType := range epTypes {
			endpointMngr.typeMap[epType.schemeNo] = reflect.TypeOf(epType.impl)
			endpointMngr.newMap[epType.schemeName] = epType.newFunc
		}
	}

	return endpointMngr
}

// EndpointID represents an Endpoint ID, BP7 section 4.1.5.1. Its concrete
// form is given by an EndpointType, e.g. DtnEndpoint or IpnEndpoint.
type EndpointID struct {
	EndpointType EndpointType
}

// NewEndpointID parses an URI, e.g. "dtn://seven/", into an EndpointID.
func NewEndpointID(uri string) (e EndpointID, err error) {
	re := regexp.MustCompile("^([[:alnum:]]+):.+$")
	matches := re.FindStringSubmatch(uri)

	if len(matches) == 0 {
		err = fmt.Errorf("%w: uri %q does not match the scheme:ssp form", ErrMalformedInput, uri)
		return
	}

	scheme := matches[1]
	if f, ok := getEndpointManager().newMap[scheme]; !ok {
		err = fmt.Errorf("%w: no handler registered for URI scheme %q", ErrMalformedInput, scheme)
	} else if et, etErr := f(uri); etErr != nil {
		err = etErr
	} else {
		e = EndpointID{et}
	}
	return
}

// MustNewEndpointID is NewEndpointID, but panics on error. Intended for
// constants and tests, never for untrusted input.
func MustNewEndpointID(uri string) EndpointID {
	ep, err := NewEndpointID(uri)
	if err != nil {
		panic(err)
	}
	return ep
}

// MarshalCbor writes this EndpointID's CBOR representation: a 2-array of
// scheme code and scheme-specific part.
func (eid EndpointID) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(eid.EndpointType.SchemeNo(), w); err != nil {
		return err
	}

	return eid.EndpointType.MarshalCbor(w)
}

// UnmarshalCbor reads a CBOR representation into this EndpointID.
func (eid *EndpointID) UnmarshalCbor(r io.Reader) error {
	l, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("%w: EndpointID expects a 2-array, got %d elements", ErrMalformedInput, l)
	}

	scheme, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}

	epType, ok := getEndpointManager().typeMap[scheme]
	if !ok {
		return fmt.Errorf("%w: no URI scheme registered for scheme number %d", ErrMalformedInput, scheme)
	}

	tmpEt := reflect.New(epType)
	tmpEtUnmarshalCbor := tmpEt.MethodByName("UnmarshalCbor")
	if errVal := tmpEtUnmarshalCbor.Call([]reflect.Value{reflect.ValueOf(r)})[0].Interface(); errVal != nil {
		return errVal.(error)
	}
	eid.EndpointType = tmpEt.Elem().Interface().(EndpointType)

	return nil
}

// Authority is the authority part of the URI, e.g. "foo" for "dtn://foo/bar".
func (eid EndpointID) Authority() string {
	return eid.EndpointType.Authority()
}

// Path is the path part of the URI, e.g. "/bar" for "dtn://foo/bar".
func (eid EndpointID) Path() string {
	return eid.EndpointType.Path()
}

// IsSingleton reports whether this endpoint represents a singleton.
func (eid EndpointID) IsSingleton() bool {
	return eid.EndpointType.IsSingleton()
}

// MatchesNode reports whether both endpoints name the same DTN node, i.e.
// share scheme and authority. This is the "node name" comparison spec.md §3
// defines for both DTN and IPN endpoints.
func (eid EndpointID) MatchesNode(other EndpointID) bool {
	return eid.EndpointType.SchemeName() == other.EndpointType.SchemeName() &&
		eid.EndpointType.Authority() == other.EndpointType.Authority()
}

// NodeID strips the service/path suffix, returning the endpoint identifying
// the owning DTN node.
func (eid EndpointID) NodeID() EndpointID {
	switch et := eid.EndpointType.(type) {
	case DtnEndpoint:
		return EndpointID{DtnEndpoint{Ssp: "//" + et.Authority() + "/"}}
	case IpnEndpoint:
		return EndpointID{IpnEndpoint{Node: et.Node, Service: 0}}
	default:
		return eid
	}
}

// CheckValid returns an error describing the first invalid field, if any.
func (eid EndpointID) CheckValid() error {
	if eid.EndpointType == nil {
		return fmt.Errorf("%w: EndpointID has no EndpointType", ErrMalformedInput)
	}
	return eid.EndpointType.CheckValid()
}

func (eid EndpointID) String() string {
	if eid.EndpointType == nil {
		return DtnNone().String()
	}
	return eid.EndpointType.String()
}
