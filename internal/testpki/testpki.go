// Package testpki mints throwaway certificate material for signing tests: a
// root CA, one issuing CA, and leaf signing certificates whose revocation
// pointers resolve to a local httptest server. The server answers the two
// protocols the revocation package speaks - CRLs fetched with GET and OCSP
// requests submitted as a DER POST body.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"
)

// Authority is a two-tier test CA with live revocation endpoints. Leaves are
// issued by the intermediate; Chain returns the issuers a signature
// container should carry alongside the leaf.
type Authority struct {
	t *testing.T

	RootKey  crypto.Signer
	RootCert *x509.Certificate

	IssuerKey  crypto.Signer
	IssuerCert *x509.Certificate

	Server *httptest.Server

	// CRL is the DER revocation list the server returns from /crl. It
	// revokes serial 9999 so revocation checks have something to find.
	CRL []byte

	CRLRequests  int
	OCSPRequests int

	nextSerial int64
}

// New builds the hierarchy, signs a CRL, and starts the revocation server.
// Call Close (or register it with t.Cleanup) when done.
func New(t *testing.T) *Authority {
	t.Helper()

	a := &Authority{t: t, nextSerial: 1000}

	a.RootKey, a.RootCert = a.newCA("pdfsigner test root", nil, nil)
	a.IssuerKey, a.IssuerCert = a.newCA("pdfsigner test issuing CA", a.RootCert, a.RootKey)

	a.CRL = a.signCRL()
	a.Server = httptest.NewServer(http.HandlerFunc(a.serve))
	return a
}

// Close stops the revocation server.
func (a *Authority) Close() {
	if a.Server != nil {
		a.Server.Close()
	}
}

// IssueLeaf returns a fresh signing key and its certificate, issued by the
// intermediate, with CRL and OCSP URLs pointing at the test server.
func (a *Authority) IssueLeaf(commonName string) (crypto.Signer, *x509.Certificate) {
	a.t.Helper()

	key := a.newKey()
	a.nextSerial++
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(a.nextSerial),
		Subject:               pkix.Name{CommonName: commonName, Organization: []string{"pdfsigner tests"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		CRLDistributionPoints: []string{a.Server.URL + "/crl"},
		OCSPServer:            []string{a.Server.URL + "/ocsp"},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, a.IssuerCert, key.Public(), a.IssuerKey)
	if err != nil {
		a.t.Fatalf("testpki: issuing leaf: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		a.t.Fatalf("testpki: parsing leaf: %v", err)
	}
	return key, cert
}

// Chain returns the issuing CA followed by the root, the order a leaf-first
// certificate chain continues in.
func (a *Authority) Chain() []*x509.Certificate {
	return []*x509.Certificate{a.IssuerCert, a.RootCert}
}

func (a *Authority) newKey() crypto.Signer {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		a.t.Fatalf("testpki: generating key: %v", err)
	}
	return key
}

// newCA creates a CA key and certificate; a nil parent self-signs.
func (a *Authority) newCA(commonName string, parentCert *x509.Certificate, parentKey crypto.Signer) (crypto.Signer, *x509.Certificate) {
	a.t.Helper()

	key := a.newKey()
	a.nextSerial++
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(a.nextSerial),
		Subject:               pkix.Name{CommonName: commonName, Organization: []string{"pdfsigner tests"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	if parentCert == nil {
		parentCert = template
		parentKey = key
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parentCert, key.Public(), parentKey)
	if err != nil {
		a.t.Fatalf("testpki: creating CA %q: %v", commonName, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		a.t.Fatalf("testpki: parsing CA %q: %v", commonName, err)
	}
	return key, cert
}

func (a *Authority) signCRL() []byte {
	a.t.Helper()

	template := &x509.RevocationList{
		Number:     big.NewInt(1),
		ThisUpdate: time.Now(),
		NextUpdate: time.Now().Add(24 * time.Hour),
		RevokedCertificateEntries: []x509.RevocationListEntry{
			{SerialNumber: big.NewInt(9999), RevocationTime: time.Now()},
		},
	}
	crl, err := x509.CreateRevocationList(rand.Reader, template, a.IssuerCert, a.IssuerKey)
	if err != nil {
		a.t.Fatalf("testpki: signing CRL: %v", err)
	}
	return crl
}

func (a *Authority) serve(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/crl":
		a.CRLRequests++
		w.Header().Set("Content-Type", "application/pkix-crl")
		_, _ = w.Write(a.CRL)

	case "/ocsp":
		a.OCSPRequests++
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		req, err := ocsp.ParseRequest(body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := ocsp.Response{
			Status:       ocsp.Good,
			SerialNumber: req.SerialNumber,
			ThisUpdate:   time.Now().Add(-time.Hour),
			NextUpdate:   time.Now().Add(24 * time.Hour),
		}
		der, err := ocsp.CreateResponse(a.IssuerCert, a.IssuerCert, resp, a.IssuerKey)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/ocsp-response")
		_, _ = w.Write(der)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
