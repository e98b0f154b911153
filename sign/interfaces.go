package sign

import (
	"crypto"
	"crypto/x509"
	"hash"
	"io"
)

// ExternalSignature is the narrow contract the core needs from a raw-signing
// backend (local private key, HSM, KMS, remote signing service). Concrete
// adapters live under signers/* and wrap crypto.Signer via PrivateKeySignature.
type ExternalSignature interface {
	// HashAlgorithm returns the digest algorithm the signer expects its
	// input to already be reduced to.
	HashAlgorithm() crypto.Hash
	// EncryptionAlgorithm names the signature algorithm family, e.g. "RSA",
	// "ECDSA", "Ed25519".
	EncryptionAlgorithm() string
	// Sign returns the raw signature over attrs, the digest of the
	// authenticated-attribute block computed with HashAlgorithm() (for
	// Ed25519 keys, the attribute block itself).
	Sign(attrs []byte) ([]byte, error)
}

// ExternalDigest vends a streaming hash.Hash for a named algorithm, letting
// callers substitute a hardware-accelerated or audited digest implementation.
type ExternalDigest interface {
	MessageDigest(hashName string) (hash.Hash, error)
}

// ExternalSignatureContainer lets a caller supply an entirely opaque
// container producer (e.g. a remote signing service that returns a complete
// CMS blob) instead of the built-in assembly.
type ExternalSignatureContainer interface {
	// ModifySigningDictionary is invoked during preClose, before the
	// dictionary is serialized, so the container producer can add or adjust
	// entries (e.g. a custom /SubFilter).
	ModifySigningDictionary(dict *SignatureDictionary)
	// Sign receives the hashable byte stream and returns the final encoded
	// container bytes.
	Sign(contentStream HashableStream) ([]byte, error)
}

// CrlClient fetches CRLs for a certificate, optionally overriding the URL
// found in the certificate's CRLDistributionPoints.
type CrlClient interface {
	GetEncoded(cert *x509.Certificate, url string) ([][]byte, error)
}

// OcspClient fetches a single OCSP response for cert, signed by issuer.
type OcspClient interface {
	GetEncoded(cert, issuer *x509.Certificate, url string) ([]byte, error)
}

// TsaClient wraps an RFC 3161 Time-Stamping Authority. content is handed the
// raw bytes to be time-stamped (never a pre-computed digest) because the
// underlying RFC 3161 request builder hashes its input itself, using
// HashAlgorithm - hashing it again first would time-stamp a hash of a hash.
type TsaClient interface {
	TokenSizeEstimate() int
	HashAlgorithm() crypto.Hash
	GetTimeStampToken(content io.Reader) ([]byte, error)
}

// SignatureEvent lets a caller observe (and mutate) the signature dictionary
// during preClose, after the core has populated it but before serialization.
type SignatureEvent interface {
	OnSignatureDictionary(dict *SignatureDictionary)
}

// HashableStream is a sequential, forward-only, known-length reader over
// the concatenation of the hashable byte ranges.
type HashableStream interface {
	// Len returns the total number of bytes the stream will yield.
	Len() int64
	// Read implements io.Reader; it reads exactly once, start to end.
	Read(p []byte) (int, error)
}
