// Package gcpsigner signs PDF digests with an asymmetric Google Cloud KMS
// key. It implements crypto.Signer; wrap the result in
// sign.NewPrivateKeySignature to use it as a signature backend.
//
// Requests carry the digest's CRC32C and responses are checked for request
// integrity: a response whose checksum or resource name does not match is
// rejected rather than embedded in a document.
package gcpsigner

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// API is the slice of the KMS client the signer depends on;
// *kms.KeyManagementClient satisfies it, and tests substitute a stub.
type API interface {
	AsymmetricSign(ctx context.Context, req *kmspb.AsymmetricSignRequest, opts ...gax.CallOption) (*kmspb.AsymmetricSignResponse, error)
}

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Signer is a crypto.Signer over one KMS key version.
type Signer struct {
	api     API
	keyName string
	pub     crypto.PublicKey
	ctx     context.Context
}

// New returns a Signer for the fully qualified key version resource name
// (projects/.../cryptoKeyVersions/N). pub must be the key's public half.
func New(api API, keyName string, pub crypto.PublicKey) (*Signer, error) {
	if api == nil {
		return nil, errors.New("gcpsigner: API client is required")
	}
	if keyName == "" {
		return nil, errors.New("gcpsigner: key version name is required")
	}
	return &Signer{api: api, keyName: keyName, pub: pub, ctx: context.Background()}, nil
}

// WithContext returns a copy of the Signer whose KMS calls run under ctx.
func (s *Signer) WithContext(ctx context.Context) *Signer {
	copied := *s
	copied.ctx = ctx
	return &copied
}

func (s *Signer) Public() crypto.PublicKey { return s.pub }

// Sign submits the already-computed digest to KMS and validates the
// response's integrity fields.
func (s *Signer) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	wrapped, err := wrapDigest(digest, opts.HashFunc())
	if err != nil {
		return nil, err
	}

	resp, err := s.api.AsymmetricSign(s.ctx, &kmspb.AsymmetricSignRequest{
		Name:         s.keyName,
		Digest:       wrapped,
		DigestCrc32C: wrapperspb.Int64(int64(crc32.Checksum(digest, crc32cTable))),
	})
	if err != nil {
		return nil, fmt.Errorf("gcpsigner: kms sign: %w", err)
	}

	if err := checkResponse(resp, s.keyName); err != nil {
		return nil, err
	}
	return resp.Signature, nil
}

func wrapDigest(digest []byte, h crypto.Hash) (*kmspb.Digest, error) {
	switch h {
	case crypto.SHA256:
		return &kmspb.Digest{Digest: &kmspb.Digest_Sha256{Sha256: digest}}, nil
	case crypto.SHA384:
		return &kmspb.Digest{Digest: &kmspb.Digest_Sha384{Sha384: digest}}, nil
	case crypto.SHA512:
		return &kmspb.Digest{Digest: &kmspb.Digest_Sha512{Sha512: digest}}, nil
	default:
		return nil, fmt.Errorf("gcpsigner: no KMS digest wrapper for hash %v", h)
	}
}

// checkResponse applies the integrity checks the KMS documentation asks
// clients to run before trusting a signature.
func checkResponse(resp *kmspb.AsymmetricSignResponse, keyName string) error {
	if !resp.VerifiedDigestCrc32C {
		return errors.New("gcpsigner: KMS did not verify the request digest checksum")
	}
	if resp.Name != keyName {
		return fmt.Errorf("gcpsigner: response signed by %q, requested %q", resp.Name, keyName)
	}
	if resp.SignatureCrc32C != nil {
		sum := int64(crc32.Checksum(resp.Signature, crc32cTable))
		if sum != resp.SignatureCrc32C.Value {
			return errors.New("gcpsigner: signature checksum mismatch, response corrupted in transit")
		}
	}
	return nil
}
