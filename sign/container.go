package sign

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"hash"
	"io"

	"github.com/digitorus/pkcs7"
	"github.com/sigpress/pdfsigner/revocation"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// ContainerBuilder assembles the signature container: given a certificate
// chain and the narrow signing/revocation/timestamp collaborators, it
// produces a detached CMS or CAdES PKCS#7 SignedData blob ready to
// hex-encode into /Contents.
type ContainerBuilder struct {
	CertChain  []*x509.Certificate // leaf first
	Signer     ExternalSignature
	CrlClients []CrlClient
	OcspClient OcspClient
	TsaClient  TsaClient
	Standard   Standard

	// PrefetchedCRLs, when non-nil, are embedded verbatim instead of
	// querying CrlClients again - the signer already fetched them while
	// sizing the reservation.
	PrefetchedCRLs [][]byte

	// Digest, when set, supplies the message digest implementation for the
	// certificate hash in the CAdES signing-certificate attribute. Nil uses
	// the standard library's registered hashes.
	Digest ExternalDigest
}

// newHash resolves h to a streaming digest, preferring the caller's
// ExternalDigest.
func (c *ContainerBuilder) newHash(h crypto.Hash) (hash.Hash, error) {
	if c.Digest != nil {
		return c.Digest.MessageDigest(h.String())
	}
	return h.New(), nil
}

// pkcs7SignerAdapter bridges ExternalSignature into the crypto.Signer shape
// digitorus/pkcs7's AddSignerChain expects. pkcs7 hashes the marshaled
// authenticated attributes itself before invoking the wrapped signer, so by
// the time Sign is called digest is already the message digest - ExternalSignature.Sign
// receives it as-is, never rehashing, matching the crypto.Signer contract
// every signers/* submodule's underlying key already honors.
type pkcs7SignerAdapter struct {
	pub crypto.PublicKey
	ext ExternalSignature
}

func (a *pkcs7SignerAdapter) Public() crypto.PublicKey { return a.pub }

func (a *pkcs7SignerAdapter) Sign(_ io.Reader, digest []byte, _ crypto.SignerOpts) ([]byte, error) {
	sig, err := a.ext.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return sig, nil
}

// Build assembles the container over stream (the concatenation of the
// /ByteRange windows) and returns the encoded SignedData.
func (c *ContainerBuilder) Build(stream HashableStream) ([]byte, error) {
	content := make([]byte, stream.Len())
	if _, err := io.ReadFull(stream, content); err != nil {
		return nil, fmt.Errorf("%w: reading hashable stream: %v", ErrIO, err)
	}

	revInfo, err := c.collectRevocationInfo()
	if err != nil {
		return nil, err
	}

	signedData, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, fmt.Errorf("sign: new signed data: %w", err)
	}
	hashAlg := c.Signer.HashAlgorithm()
	signedData.SetDigestAlgorithm(oidFromHashAlgorithm(hashAlg))

	extraAttrs := []pkcs7.Attribute{
		{Type: oidRevocationInfoArchival, Value: revInfo},
	}
	if c.Standard == CAdES {
		hasher, err := c.newHash(hashAlg)
		if err != nil {
			return nil, fmt.Errorf("%w: resolving digest %v: %v", ErrCrypto, hashAlg, err)
		}
		attr, err := signingCertificateAttribute(hashAlg, hasher, c.CertChain[0])
		if err != nil {
			return nil, fmt.Errorf("sign: signing certificate attribute: %w", err)
		}
		extraAttrs = append(extraAttrs, *attr)
	}

	var parentChain []*x509.Certificate
	if len(c.CertChain) > 1 {
		parentChain = c.CertChain[1:]
	}

	adapter := &pkcs7SignerAdapter{pub: c.CertChain[0].PublicKey, ext: c.Signer}
	config := pkcs7.SignerInfoConfig{ExtraSignedAttributes: extraAttrs}
	if err := signedData.AddSignerChain(c.CertChain[0], adapter, parentChain, config); err != nil {
		return nil, fmt.Errorf("sign: add signer chain: %w", err)
	}
	signedData.Detach()

	if c.TsaClient != nil {
		sd := signedData.GetSignedData()
		token, err := c.timestampToken(sd.SignerInfos[0].EncryptedDigest)
		if err != nil {
			return nil, fmt.Errorf("sign: embed timestamp: %w", err)
		}
		attr := pkcs7.Attribute{Type: oidTimeStampToken, Value: asn1.RawValue{FullBytes: token}}
		if err := sd.SignerInfos[0].SetUnauthenticatedAttributes([]pkcs7.Attribute{attr}); err != nil {
			return nil, fmt.Errorf("sign: set unauthenticated attributes: %w", err)
		}
	}

	encoded, err := signedData.Finish()
	if err != nil {
		return nil, fmt.Errorf("sign: finish signed data: %w", err)
	}
	return encoded, nil
}

// collectRevocationInfo embeds an OCSP response (or failing that, a CRL)
// for every certificate in the chain whose issuer is known. Best-effort: a
// certificate with neither an OcspClient nor any CrlClient able to serve it
// is simply skipped - the signature still validates, it just carries less
// revocation evidence.
func (c *ContainerBuilder) collectRevocationInfo() (revocation.InfoArchival, error) {
	var info revocation.InfoArchival

	for _, crl := range c.PrefetchedCRLs {
		if err := info.AddCRL(crl); err != nil {
			return info, fmt.Errorf("sign: embed CRL: %w", err)
		}
	}

	for i, cert := range c.CertChain {
		if i+1 >= len(c.CertChain) {
			break
		}
		issuer := c.CertChain[i+1]

		if c.OcspClient != nil {
			resp, err := c.OcspClient.GetEncoded(cert, issuer, "")
			if err == nil {
				if aerr := info.AddOCSP(resp); aerr != nil {
					return info, fmt.Errorf("sign: embed OCSP response: %w", aerr)
				}
				continue
			}
		}

		if c.PrefetchedCRLs != nil {
			continue
		}
		for _, client := range c.CrlClients {
			encoded, err := client.GetEncoded(cert, "")
			if err != nil {
				continue
			}
			for _, crl := range encoded {
				if aerr := info.AddCRL(crl); aerr != nil {
					return info, fmt.Errorf("sign: embed CRL: %w", aerr)
				}
			}
			break
		}
	}

	return info, nil
}

// timestampToken fetches an RFC 3161 token over encryptedDigest (the
// signature's own EncryptedDigest, per CAdES-T / ETSI EN 319 142 §5.3) and
// returns the raw DER TimeStampToken bytes ready to embed as an
// unauthenticated attribute.
func (c *ContainerBuilder) timestampToken(encryptedDigest []byte) ([]byte, error) {
	token, err := c.TsaClient.GetTimeStampToken(bytes.NewReader(encryptedDigest))
	if err != nil {
		return nil, fmt.Errorf("get time stamp token: %w", err)
	}
	return token, nil
}

// BuildDocumentTimestamp builds the /DocTimeStamp container: the /Contents
// value is the bare RFC 3161 TimeStampToken over the hashable stream, with
// no surrounding CMS SignedData. The stream is handed straight to the
// TsaClient, which hashes it itself while building the request, so the byte
// range is never materialized twice.
func BuildDocumentTimestamp(stream HashableStream, tsa TsaClient) ([]byte, error) {
	token, err := tsa.GetTimeStampToken(stream)
	if err != nil {
		return nil, fmt.Errorf("get time stamp token: %w", err)
	}
	return token, nil
}

// signingCertificateAttribute builds the ESS SigningCertificate(V2)
// authenticated attribute CAdES requires, binding the signature to the exact
// signing certificate by its digest (RFC 5035).
func signingCertificateAttribute(h crypto.Hash, hasher hash.Hash, cert *x509.Certificate) (*pkcs7.Attribute, error) {
	hasher.Write(cert.Raw)
	certHash := hasher.Sum(nil)

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SigningCertificate(V2)
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // certs
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // ESSCertID(V2)
				if h != crypto.SHA1 && h != crypto.SHA256 {
					b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // AlgorithmIdentifier
						b.AddASN1ObjectIdentifier(oidFromHashAlgorithm(h))
					})
				}
				b.AddASN1OctetString(certHash)
			})
		})
	})

	raw, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	return &pkcs7.Attribute{
		Type:  signingCertificateAttrOID(h),
		Value: asn1.RawValue{FullBytes: raw},
	}, nil
}
