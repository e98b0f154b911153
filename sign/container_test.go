package sign

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"testing"

	"github.com/digitorus/pkcs7"
	"github.com/sigpress/pdfsigner/internal/testpki"
	"github.com/sigpress/pdfsigner/revocation"
)

// byteStream exposes a byte slice as a HashableStream.
type byteStream struct {
	*bytes.Reader
}

func newByteStream(data []byte) *byteStream {
	return &byteStream{Reader: bytes.NewReader(data)}
}

func (b *byteStream) Len() int64 { return int64(b.Reader.Size()) }

func buildTestChain(t *testing.T) (crypto.Signer, []*x509.Certificate, *testpki.Authority) {
	t.Helper()
	ca := testpki.New(t)
	t.Cleanup(ca.Close)

	key, leaf := ca.IssueLeaf("Container Test Signer")
	chain := append([]*x509.Certificate{leaf}, ca.Chain()...)
	return key, chain, ca
}

func TestContainerBuilderCMSVerifies(t *testing.T) {
	key, chain, _ := buildTestChain(t)
	content := []byte("the concatenation of the hashable byte ranges")

	builder := &ContainerBuilder{
		CertChain: chain,
		Signer:    NewPrivateKeySignature(key, crypto.SHA256),
		Standard:  CMS,
	}
	der, err := builder.Build(newByteStream(content))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	p7, err := pkcs7.Parse(der)
	if err != nil {
		t.Fatalf("parsing produced container: %v", err)
	}
	if len(p7.Content) != 0 {
		t.Error("container is not detached: it embeds the signed content")
	}
	p7.Content = content
	if err := p7.Verify(); err != nil {
		t.Fatalf("verifying produced container: %v", err)
	}
	if len(p7.Certificates) < len(chain) {
		t.Errorf("container carries %d certificates, want at least %d", len(p7.Certificates), len(chain))
	}
}

func TestContainerBuilderCAdESCarriesSigningCertificate(t *testing.T) {
	key, chain, _ := buildTestChain(t)
	content := []byte("cades signed content")

	builder := &ContainerBuilder{
		CertChain: chain,
		Signer:    NewPrivateKeySignature(key, crypto.SHA256),
		Standard:  CAdES,
	}
	der, err := builder.Build(newByteStream(content))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	p7, err := pkcs7.Parse(der)
	if err != nil {
		t.Fatalf("parsing produced container: %v", err)
	}
	p7.Content = content
	if err := p7.Verify(); err != nil {
		t.Fatalf("verifying produced container: %v", err)
	}

	// The ESS signingCertificateV2 attribute (1.2.840.113549.1.9.16.2.47)
	// must be among the authenticated attributes.
	found := false
	for _, si := range p7.Signers {
		for _, attr := range si.AuthenticatedAttributes {
			if attr.Type.Equal(signingCertificateAttrOID(crypto.SHA256)) {
				found = true
			}
		}
	}
	if !found {
		t.Error("CAdES container missing the signingCertificateV2 authenticated attribute")
	}
}

func TestContainerBuilderEmbedsPrefetchedCRLs(t *testing.T) {
	key, chain, ca := buildTestChain(t)
	content := []byte("crl embedding content")

	builder := &ContainerBuilder{
		CertChain:      chain,
		Signer:         NewPrivateKeySignature(key, crypto.SHA256),
		Standard:       CMS,
		PrefetchedCRLs: [][]byte{ca.CRL},
	}
	der, err := builder.Build(newByteStream(content))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !bytes.Contains(der, ca.CRL) {
		t.Error("container does not embed the prefetched CRL bytes")
	}
}

func TestContainerBuilderEmbedsOCSPResponse(t *testing.T) {
	key, chain, ca := buildTestChain(t)
	content := []byte("ocsp embedding content")

	builder := &ContainerBuilder{
		CertChain:  chain,
		Signer:     NewPrivateKeySignature(key, crypto.SHA256),
		Standard:   CMS,
		OcspClient: revocation.NewOcspClient(),
	}
	der, err := builder.Build(newByteStream(content))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if ca.OCSPRequests == 0 {
		t.Fatal("container build never contacted the OCSP responder")
	}
	p7, err := pkcs7.Parse(der)
	if err != nil {
		t.Fatalf("parsing produced container: %v", err)
	}
	p7.Content = content
	if err := p7.Verify(); err != nil {
		t.Fatalf("verifying produced container: %v", err)
	}
}

func TestBuildDocumentTimestampReturnsRawToken(t *testing.T) {
	token := []byte{0x30, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x02}
	tsa := &fakeTSA{token: token}

	got, err := BuildDocumentTimestamp(newByteStream([]byte("timestamped bytes")), tsa)
	if err != nil {
		t.Fatalf("BuildDocumentTimestamp: %v", err)
	}
	if !bytes.Equal(got, token) {
		t.Error("document timestamp is not the TSA's raw token")
	}
}
