package revocation

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/digitorus/timestamp"
	"golang.org/x/crypto/ocsp"
)

// HTTPClient is the subset of *http.Client this package depends on, letting
// callers inject a timeout/transport/proxy, or a test double pointed at an
// httptest server.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func httpClientOrDefault(c HTTPClient, timeout time.Duration) HTTPClient {
	if c != nil {
		return c
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func readAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// CrlClient fetches CRLs over HTTP, trying every CRLDistributionPoints
// entry (or a caller-supplied override URL) in turn. It satisfies
// sign.CrlClient structurally; the sign package cannot be imported here
// without an import cycle, since sign already imports this package for
// InfoArchival.
type CrlClient struct {
	HTTPClient HTTPClient
	Timeout    time.Duration
}

// NewCrlClient returns a CrlClient using http.Client's defaults with a 10s
// timeout.
func NewCrlClient() *CrlClient { return &CrlClient{} }

// GetEncoded fetches the CRL for cert, trying url first if non-empty, else
// every URL in cert.CRLDistributionPoints, returning the first one that
// downloads and parses successfully.
func (c *CrlClient) GetEncoded(cert *x509.Certificate, url string) ([][]byte, error) {
	urls := cert.CRLDistributionPoints
	if url != "" {
		urls = []string{url}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("revocation: certificate has no CRL distribution points")
	}

	client := httpClientOrDefault(c.HTTPClient, c.Timeout)

	var lastErr error
	for _, u := range urls {
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("fetch CRL from %s: %w", u, err)
			continue
		}
		body, err := readAndClose(resp)
		if err != nil {
			lastErr = fmt.Errorf("read CRL from %s: %w", u, err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("CRL server %s returned status %d", u, resp.StatusCode)
			continue
		}
		if _, err := x509.ParseRevocationList(body); err != nil {
			lastErr = fmt.Errorf("parse CRL from %s: %w", u, err)
			continue
		}
		return [][]byte{body}, nil
	}
	return nil, lastErr
}

// OcspClient fetches a single OCSP response over HTTP. Satisfies
// sign.OcspClient structurally.
type OcspClient struct {
	HTTPClient HTTPClient
	Timeout    time.Duration
}

// NewOcspClient returns an OcspClient using http.Client's defaults with a 10s
// timeout.
func NewOcspClient() *OcspClient { return &OcspClient{} }

// GetEncoded requests and returns the OCSP response for cert, signed by
// issuer, trying url first if non-empty, else every URL in cert.OCSPServer.
func (o *OcspClient) GetEncoded(cert, issuer *x509.Certificate, url string) ([]byte, error) {
	ocspReq, err := ocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		return nil, fmt.Errorf("create OCSP request: %w", err)
	}

	urls := cert.OCSPServer
	if url != "" {
		urls = []string{url}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("revocation: certificate has no OCSP server URLs")
	}

	client := httpClientOrDefault(o.HTTPClient, o.Timeout)

	var lastErr error
	for _, server := range urls {
		httpReq, err := http.NewRequest(http.MethodPost, strings.TrimRight(server, "/"), bytes.NewReader(ocspReq))
		if err != nil {
			lastErr = err
			continue
		}
		httpReq.Header.Set("Content-Type", "application/ocsp-request")

		resp, err := client.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("contact OCSP server %s: %w", server, err)
			continue
		}
		body, err := readAndClose(resp)
		if err != nil {
			lastErr = fmt.Errorf("read OCSP response from %s: %w", server, err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("OCSP server %s returned status %d", server, resp.StatusCode)
			continue
		}
		if _, err := ocsp.ParseResponseForCert(body, cert, issuer); err != nil {
			lastErr = fmt.Errorf("parse OCSP response from %s: %w", server, err)
			continue
		}
		return body, nil
	}
	return nil, lastErr
}

// TsaClient wraps an RFC 3161 Time-Stamping Authority reachable over HTTP.
// Satisfies sign.TsaClient structurally.
type TsaClient struct {
	URL      string
	Username string
	Password string
	Hash     crypto.Hash

	HTTPClient HTTPClient
	Timeout    time.Duration
}

// NewTsaClient returns a TsaClient for the given RFC 3161 server URL, hashing
// requests with hash (defaulting to SHA-256 if zero).
func NewTsaClient(url string, hash crypto.Hash) *TsaClient {
	return &TsaClient{URL: url, Hash: hash}
}

// HashAlgorithm returns the digest algorithm requests are built with.
func (t *TsaClient) HashAlgorithm() crypto.Hash {
	if t.Hash == 0 {
		return crypto.SHA256
	}
	return t.Hash
}

// TokenSizeEstimate is the default reservation contribution a TSA token
// needs, used by a caller's default estimated_size formula when no sharper
// figure is known ahead of time (tokens typically run 2-4 KiB with a full
// certificate chain attached).
func (t *TsaClient) TokenSizeEstimate() int { return 4192 }

// GetTimeStampToken builds an RFC 3161 request over content (hashed
// internally using HashAlgorithm), posts it to URL, and returns the raw
// TimeStampToken DER bytes from a successful response.
func (t *TsaClient) GetTimeStampToken(content io.Reader) ([]byte, error) {
	tsRequest, err := timestamp.CreateRequest(content, &timestamp.RequestOptions{
		Hash:         t.HashAlgorithm(),
		Certificates: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create timestamp request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, t.URL, bytes.NewReader(tsRequest))
	if err != nil {
		return nil, fmt.Errorf("prepare timestamp request (%s): %w", t.URL, err)
	}
	httpReq.Header.Set("Content-Type", "application/timestamp-query")
	httpReq.Header.Set("Content-Transfer-Encoding", "binary")
	if t.Username != "" && t.Password != "" {
		httpReq.SetBasicAuth(t.Username, t.Password)
	}

	client := httpClientOrDefault(t.HTTPClient, t.Timeout)
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("contact TSA %s: %w", t.URL, err)
	}
	body, err := readAndClose(resp)
	if err != nil {
		return nil, fmt.Errorf("read TSA response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("TSA %s returned status %d: %s", t.URL, resp.StatusCode, body)
	}

	ts, err := timestamp.ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp response: %w", err)
	}
	return ts.RawToken, nil
}
