// Package awssigner signs PDF digests with an asymmetric AWS KMS key. It
// implements crypto.Signer; wrap the result in sign.NewPrivateKeySignature
// to use it as a signature backend.
//
// RSA keys sign with the RSASSA-PKCS1-v1.5 variants: the CMS SignerInfo the
// signature container carries declares the PKCS#1 v1.5 algorithm, and a PSS
// signature would not verify against it.
package awssigner

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// API is the slice of the KMS client the signer depends on; *kms.Client
// satisfies it, and tests substitute a stub.
type API interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// Signer is a crypto.Signer over one KMS key.
type Signer struct {
	api   API
	keyID string
	pub   crypto.PublicKey
	ctx   context.Context
}

// New returns a Signer for the given key id or ARN. pub must be the key's
// public half, exported once via kms GetPublicKey.
func New(api API, keyID string, pub crypto.PublicKey) (*Signer, error) {
	if api == nil {
		return nil, errors.New("awssigner: API client is required")
	}
	if keyID == "" {
		return nil, errors.New("awssigner: key id is required")
	}
	return &Signer{api: api, keyID: keyID, pub: pub, ctx: context.Background()}, nil
}

// WithContext returns a copy of the Signer whose KMS calls run under ctx.
// crypto.Signer's Sign signature has no context parameter, so deadlines are
// attached here instead.
func (s *Signer) WithContext(ctx context.Context) *Signer {
	copied := *s
	copied.ctx = ctx
	return &copied
}

func (s *Signer) Public() crypto.PublicKey { return s.pub }

// Sign submits the already-computed digest to KMS.
func (s *Signer) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	algorithm, err := algorithmFor(s.pub, opts.HashFunc())
	if err != nil {
		return nil, err
	}

	out, err := s.api.Sign(s.ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyID),
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("awssigner: kms sign: %w", err)
	}
	return out.Signature, nil
}

func algorithmFor(pub crypto.PublicKey, h crypto.Hash) (types.SigningAlgorithmSpec, error) {
	switch pub.(type) {
	case *rsa.PublicKey:
		switch h {
		case crypto.SHA256:
			return types.SigningAlgorithmSpecRsassaPkcs1V15Sha256, nil
		case crypto.SHA384:
			return types.SigningAlgorithmSpecRsassaPkcs1V15Sha384, nil
		case crypto.SHA512:
			return types.SigningAlgorithmSpecRsassaPkcs1V15Sha512, nil
		}
	case *ecdsa.PublicKey:
		switch h {
		case crypto.SHA256:
			return types.SigningAlgorithmSpecEcdsaSha256, nil
		case crypto.SHA384:
			return types.SigningAlgorithmSpecEcdsaSha384, nil
		case crypto.SHA512:
			return types.SigningAlgorithmSpecEcdsaSha512, nil
		}
	}
	return "", fmt.Errorf("awssigner: no KMS algorithm for key %T with hash %v", pub, h)
}
