// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
)

// idOnBundleEID is the id-on-bundleEID OID from RFC 9174 section 3.3,
// carried as a GeneralName otherName in a peer certificate's Subject
// Alternative Name extension.
var idOnBundleEID = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 8, 11}

// subjectAltNameOID is the X.509 Subject Alternative Name extension OID.
var subjectAltNameOID = asn1.ObjectIdentifier{2, 5, 29, 17}

// otherNameValue is the ASN.1 shape of a GeneralName's otherName choice,
// RFC 5280 section 4.2.1.6: an OID tagged [0] holding an explicitly tagged
// value.
type otherNameValue struct {
	TypeID asn1.ObjectIdentifier
	Value  asn1.RawValue `asn1:"explicit,tag:0"`
}

// verifyBundleEID checks that cert carries a SAN otherName of type
// id-on-bundleEID whose IA5String value equals nodeID. DNS-name SAN entries
// are not an acceptable substitute per spec.md's TLS identity requirement.
func verifyBundleEID(cert *x509.Certificate, nodeID string) error {
	var sanExt pkix.Extension
	found := false
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(subjectAltNameOID) {
			sanExt = ext
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: peer certificate has no subjectAltName extension", ErrTlsNameMismatch)
	}

	var seq asn1.RawValue
	if _, err := asn1.Unmarshal(sanExt.Value, &seq); err != nil {
		return fmt.Errorf("%w: subjectAltName does not parse: %v", ErrTlsNameMismatch, err)
	}

	rest := seq.Bytes
	for len(rest) > 0 {
		var gn asn1.RawValue
		var err error
		rest, err = asn1.Unmarshal(rest, &gn)
		if err != nil {
			return fmt.Errorf("%w: subjectAltName GeneralName does not parse: %v", ErrTlsNameMismatch, err)
		}

		// otherName is context-specific constructed tag 0.
		const otherNameTag = 0
		if gn.Class != asn1.ClassContextSpecific || gn.Tag != otherNameTag {
			continue
		}

		var on otherNameValue
		if _, err := asn1.UnmarshalWithParams(gn.FullBytes, &on, "tag:0"); err != nil {
			continue
		}
		if !on.TypeID.Equal(idOnBundleEID) {
			continue
		}

		var eid string
		if _, err := asn1.Unmarshal(on.Value.Bytes, &eid); err != nil {
			continue
		}
		if eid == nodeID {
			return nil
		}
	}

	return fmt.Errorf("%w: no bundleEID SAN matching %q", ErrTlsNameMismatch, nodeID)
}
