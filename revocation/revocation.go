// Package revocation implements the certificate revocation archive CMS
// attribute (Adobe's RevocationInfoArchival, id-adobe-revocationInfoArchival)
// and the HTTP collaborators that populate it.
package revocation

import (
	"crypto/x509"
	"encoding/asn1"

	"golang.org/x/crypto/ocsp"
)

// InfoArchival is the ASN.1 structure embedded as the
// id-adobe-revocationInfoArchival authenticated attribute, carrying every
// CRL and OCSP response gathered for the certificate chain. The shape is
// fixed by Adobe's specification.
type InfoArchival struct {
	CRL   CRL   `asn1:"tag:0,optional,explicit"`
	OCSP  OCSP  `asn1:"tag:1,optional,explicit"`
	Other Other `asn1:"tag:2,optional,explicit"`
}

// AddCRL embeds the raw DER bytes of a downloaded CRL.
func (r *InfoArchival) AddCRL(b []byte) error {
	r.CRL = append(r.CRL, asn1.RawValue{FullBytes: b})
	return nil
}

// AddOCSP embeds the raw DER bytes of an OCSP response.
func (r *InfoArchival) AddOCSP(b []byte) error {
	r.OCSP = append(r.OCSP, asn1.RawValue{FullBytes: b})
	return nil
}

// IsRevoked reports whether any embedded CRL or OCSP response marks c as
// revoked. A parse failure on one entry does not short-circuit the others;
// it simply contributes nothing. Certificates with no embedded revocation
// evidence at all are reported as not revoked - this method answers "is
// there revocation evidence saying so", not "is this definitely valid".
func (r *InfoArchival) IsRevoked(c *x509.Certificate) bool {
	for _, raw := range r.CRL {
		crl, err := x509.ParseRevocationList(raw.FullBytes)
		if err != nil {
			continue
		}
		for _, rc := range crl.RevokedCertificateEntries {
			if rc.SerialNumber.Cmp(c.SerialNumber) == 0 {
				return true
			}
		}
	}

	for _, raw := range r.OCSP {
		// Passing a nil issuer skips signature verification: IsRevoked only
		// reports what the embedded evidence claims, the same trust decision
		// the caller already made by choosing to embed it.
		resp, err := ocsp.ParseResponse(raw.FullBytes, nil)
		if err != nil {
			continue
		}
		if resp.SerialNumber != nil && resp.SerialNumber.Cmp(c.SerialNumber) == 0 && resp.Status == ocsp.Revoked {
			return true
		}
	}

	return false
}

// CRL contains the raw bytes of DER-encoded pkix.CertificateLists, parseable
// with x509.ParseRevocationList.
type CRL []asn1.RawValue

// OCSP contains the raw bytes of DER-encoded OCSP responses, parseable with
// golang.org/x/crypto/ocsp.ParseResponse.
type OCSP []asn1.RawValue

// Other carries a revocation-status format this package doesn't otherwise
// model (RFC 2630's OtherRevInfo escape hatch).
type Other struct {
	Type  asn1.ObjectIdentifier
	Value []byte
}
