// Package azuresigner signs PDF digests with a key held in Azure Key Vault
// or Managed HSM. It implements crypto.Signer; wrap the result in
// sign.NewPrivateKeySignature to use it as a signature backend.
//
// Key Vault returns ECDSA signatures in the raw r||s form JWS uses; they
// are re-encoded as the DER SEQUENCE the CMS container format requires.
// RSA uses the RS* algorithms (PKCS#1 v1.5), matching what the CMS
// SignerInfo declares.
package azuresigner

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
)

// API is the slice of the azkeys client the signer depends on;
// *azkeys.Client satisfies it, and tests substitute a stub.
type API interface {
	Sign(ctx context.Context, name string, version string, parameters azkeys.SignParameters, options *azkeys.SignOptions) (azkeys.SignResponse, error)
}

// Signer is a crypto.Signer over one Key Vault key.
type Signer struct {
	api        API
	keyName    string
	keyVersion string
	pub        crypto.PublicKey
	ctx        context.Context
}

// New returns a Signer for the named key. keyVersion may be empty to sign
// with the key's current version. pub must be the key's public half.
func New(api API, keyName, keyVersion string, pub crypto.PublicKey) (*Signer, error) {
	if api == nil {
		return nil, errors.New("azuresigner: API client is required")
	}
	if keyName == "" {
		return nil, errors.New("azuresigner: key name is required")
	}
	return &Signer{api: api, keyName: keyName, keyVersion: keyVersion, pub: pub, ctx: context.Background()}, nil
}

// WithContext returns a copy of the Signer whose vault calls run under ctx.
func (s *Signer) WithContext(ctx context.Context) *Signer {
	copied := *s
	copied.ctx = ctx
	return &copied
}

func (s *Signer) Public() crypto.PublicKey { return s.pub }

// Sign submits the already-computed digest to the vault.
func (s *Signer) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	algorithm, err := algorithmFor(s.pub, opts.HashFunc())
	if err != nil {
		return nil, err
	}

	resp, err := s.api.Sign(s.ctx, s.keyName, s.keyVersion, azkeys.SignParameters{
		Algorithm: &algorithm,
		Value:     digest,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("azuresigner: vault sign: %w", err)
	}

	if _, ok := s.pub.(*ecdsa.PublicKey); ok {
		return jwsToDER(resp.Result)
	}
	return resp.Result, nil
}

func algorithmFor(pub crypto.PublicKey, h crypto.Hash) (azkeys.SignatureAlgorithm, error) {
	switch pub.(type) {
	case *rsa.PublicKey:
		switch h {
		case crypto.SHA256:
			return azkeys.SignatureAlgorithmRS256, nil
		case crypto.SHA384:
			return azkeys.SignatureAlgorithmRS384, nil
		case crypto.SHA512:
			return azkeys.SignatureAlgorithmRS512, nil
		}
	case *ecdsa.PublicKey:
		switch h {
		case crypto.SHA256:
			return azkeys.SignatureAlgorithmES256, nil
		case crypto.SHA384:
			return azkeys.SignatureAlgorithmES384, nil
		case crypto.SHA512:
			return azkeys.SignatureAlgorithmES512, nil
		}
	}
	return "", fmt.Errorf("azuresigner: no vault algorithm for key %T with hash %v", pub, h)
}

// jwsToDER re-encodes the vault's raw r||s ECDSA signature as an ASN.1
// SEQUENCE.
func jwsToDER(raw []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%2 != 0 {
		return nil, fmt.Errorf("azuresigner: malformed ECDSA signature of %d bytes", len(raw))
	}
	half := len(raw) / 2
	sig := struct{ R, S *big.Int }{
		R: new(big.Int).SetBytes(raw[:half]),
		S: new(big.Int).SetBytes(raw[half:]),
	}
	return asn1.Marshal(sig)
}
