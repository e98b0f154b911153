package sign

import (
	"crypto"
	"encoding/asn1"
)

// digestAlgorithmOIDs maps the digest algorithms the signer supports to
// their RFC 3279 / RFC 8017 object identifiers, needed by
// pkcs7.SignedData.SetDigestAlgorithm and by the CAdES ESS
// SigningCertificateV2 attribute's AlgorithmIdentifier.
var digestAlgorithmOIDs = map[crypto.Hash]asn1.ObjectIdentifier{
	crypto.MD5:    {1, 2, 840, 113549, 2, 5},
	crypto.SHA1:   {1, 3, 14, 3, 2, 26},
	crypto.SHA256: {2, 16, 840, 1, 101, 3, 4, 2, 1},
	crypto.SHA384: {2, 16, 840, 1, 101, 3, 4, 2, 2},
	crypto.SHA512: {2, 16, 840, 1, 101, 3, 4, 2, 3},
}

// oidFromHashAlgorithm returns the digest algorithm OID for h, defaulting to
// SHA-256 when h is unset or unrecognized.
func oidFromHashAlgorithm(h crypto.Hash) asn1.ObjectIdentifier {
	if oid, ok := digestAlgorithmOIDs[h]; ok {
		return oid
	}
	return digestAlgorithmOIDs[crypto.SHA256]
}

// signingCertificateAttrOID selects between the SHA-1-only legacy
// SigningCertificate attribute and SigningCertificateV2, per RFC 5035 §4: v1
// is retained only for SHA-1, every other digest uses v2.
func signingCertificateAttrOID(h crypto.Hash) asn1.ObjectIdentifier {
	if h == crypto.SHA1 {
		return asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 12} // id-aa-signingCertificate
	}
	return asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 47} // id-aa-signingCertificateV2
}

// Well-known CMS attribute OIDs used when assembling authenticated and
// unauthenticated attributes.
var (
	oidRevocationInfoArchival = asn1.ObjectIdentifier{1, 2, 840, 113583, 1, 1, 8}
	oidTimeStampToken         = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}
)
