package sign

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
)

var (
	ErrNilSigner      = errors.New("sign: signer cannot be nil")
	ErrNilCertificate = errors.New("sign: certificate cannot be nil")
	ErrUnsupportedKey = errors.New("sign: unsupported key type")
	ErrKeyMismatch    = errors.New("sign: signer public key does not match certificate")
)

// DefaultEstimatedSize is the fallback estimated container size (bytes) used
// when a sign operation supplies no estimate and no OCSP/TSA/CRL material is
// configured.
const DefaultEstimatedSize = 8192

// PrivateKeySignature adapts any crypto.Signer (a local key, or one of the
// signers/* HSM/KMS wrappers) into the ExternalSignature contract the
// container assembly consumes. It is the one bridge point between this
// package and the crypto.Signer-shaped world every signers/* submodule
// returns.
type PrivateKeySignature struct {
	Signer crypto.Signer
	Hash   crypto.Hash
}

// NewPrivateKeySignature wraps signer; hash is the algorithm the digests
// passed to Sign were computed with and is forwarded to signer.Sign.
func NewPrivateKeySignature(signer crypto.Signer, hash crypto.Hash) *PrivateKeySignature {
	return &PrivateKeySignature{Signer: signer, Hash: hash}
}

func (p *PrivateKeySignature) HashAlgorithm() crypto.Hash {
	return p.Hash
}

func (p *PrivateKeySignature) EncryptionAlgorithm() string {
	switch p.Signer.Public().(type) {
	case *rsa.PublicKey:
		return "RSA"
	case *ecdsa.PublicKey:
		return "ECDSA"
	case ed25519.PublicKey:
		return "Ed25519"
	default:
		return "unknown"
	}
}

// Sign forwards attrs - already the message digest computed with
// HashAlgorithm() over the authenticated-attribute block, per crypto.Signer's
// own contract that Sign's digest argument is pre-reduced - to the wrapped
// signer. Ed25519 is the one crypto.Signer in the standard library that signs
// the message itself rather than a digest; it is passed attrs unreduced and
// crypto.Hash(0), matching ed25519.PrivateKey.Sign's documented contract.
func (p *PrivateKeySignature) Sign(attrs []byte) ([]byte, error) {
	if _, ok := p.Signer.Public().(ed25519.PublicKey); ok {
		return p.Signer.Sign(rand.Reader, attrs, crypto.Hash(0))
	}
	return p.Signer.Sign(rand.Reader, attrs, p.Hash)
}

// MaxSignatureLen reports the largest raw signature the wrapped key can
// produce. Useful when choosing a reservation for containers whose size is
// dominated by the signature itself. Do not derive this from the
// certificate's SignatureAlgorithm: that describes how the CA signed the
// certificate, not what this key produces.
func (p *PrivateKeySignature) MaxSignatureLen() (int, error) {
	if p.Signer == nil {
		return 0, ErrNilSigner
	}
	return maxSignatureLen(p.Signer.Public())
}

func maxSignatureLen(pub crypto.PublicKey) (int, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		if k.N == nil {
			return 0, fmt.Errorf("%w: RSA key has nil modulus", ErrUnsupportedKey)
		}
		return k.Size(), nil
	case *ecdsa.PublicKey:
		if k.Curve == nil {
			return 0, fmt.Errorf("%w: ECDSA key has nil curve", ErrUnsupportedKey)
		}
		// DER SEQUENCE of two INTEGERs; the 9 bytes on top of the raw
		// coordinates cover a leading zero byte on each INTEGER plus up to 7
		// bytes of tag/length framing.
		coord := (k.Curve.Params().BitSize + 7) / 8
		return 2*coord + 9, nil
	case ed25519.PublicKey:
		return ed25519.SignatureSize, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}

// ValidateSignerCertificateMatch checks that signer holds the private half
// of cert's public key, catching a mixed-up key/certificate pair before a
// doomed signing pass serializes the whole document.
func ValidateSignerCertificateMatch(signer crypto.Signer, cert *x509.Certificate) error {
	if signer == nil {
		return ErrNilSigner
	}
	if cert == nil {
		return ErrNilCertificate
	}

	pub, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return fmt.Errorf("%w: %T is not comparable", ErrUnsupportedKey, signer.Public())
	}
	if !pub.Equal(cert.PublicKey) {
		return ErrKeyMismatch
	}
	return nil
}
