// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"math/big"
	"testing"
	"time"
)

// sanOtherName mirrors otherNameValue but is used on the encoding side to
// build a SAN extension carrying an id-on-bundleEID otherName, the same
// shape a peer's TLS certificate would present per RFC 9174 section 3.3.
type sanOtherName struct {
	TypeID asn1.ObjectIdentifier
	Value  string `asn1:"tag:0,explicit,ia5"`
}

// bundleEIDCert builds a self-signed certificate whose subjectAltName
// extension carries a single otherName of type id-on-bundleEID with the
// given value. withSAN=false omits the extension entirely.
func bundleEIDCert(t *testing.T, eid string, withSAN bool) *x509.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "tcpcl-test"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).Add(24 * time.Hour),
	}

	if withSAN {
		on := sanOtherName{TypeID: idOnBundleEID, Value: eid}
		onBytes, err := asn1.MarshalWithParams(on, "tag:0")
		if err != nil {
			t.Fatalf("marshaling otherName: %v", err)
		}

		sanBytes, err := asn1.Marshal(asn1.RawValue{
			Class:      asn1.ClassUniversal,
			Tag:        asn1.TagSequence,
			IsCompound: true,
			Bytes:      onBytes,
		})
		if err != nil {
			t.Fatalf("marshaling subjectAltName: %v", err)
		}

		template.ExtraExtensions = []pkix.Extension{
			{Id: subjectAltNameOID, Value: sanBytes},
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing certificate: %v", err)
	}
	return cert
}

func TestVerifyBundleEIDMatches(t *testing.T) {
	cert := bundleEIDCert(t, "dtn://node-a/", true)

	if err := verifyBundleEID(cert, "dtn://node-a/"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
}

func TestVerifyBundleEIDMismatch(t *testing.T) {
	cert := bundleEIDCert(t, "dtn://node-a/", true)

	err := verifyBundleEID(cert, "dtn://node-b/")
	if !errors.Is(err, ErrTlsNameMismatch) {
		t.Fatalf("expected ErrTlsNameMismatch, got %v", err)
	}
}

func TestVerifyBundleEIDMissingSAN(t *testing.T) {
	cert := bundleEIDCert(t, "dtn://node-a/", false)

	err := verifyBundleEID(cert, "dtn://node-a/")
	if !errors.Is(err, ErrTlsNameMismatch) {
		t.Fatalf("expected ErrTlsNameMismatch, got %v", err)
	}
}
