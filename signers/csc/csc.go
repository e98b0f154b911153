// Package cscsigner signs PDF digests through a Cloud Signature Consortium
// (CSC) remote signing service. It implements crypto.Signer; wrap the
// result in sign.NewPrivateKeySignature to use it as a signature backend.
//
// The signer speaks the credentials/info, credentials/authorize and
// signatures/signHash endpoints of the CSC API (v1.0.4 through v2.x use the
// same shapes for these three). Services running authMode "implicit" skip
// the authorize round trip.
package cscsigner

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Config locates the service and credential.
type Config struct {
	// BaseURL is the CSC API root, e.g. "https://rss.example.com/csc/v1".
	BaseURL string

	// CredentialID names the signing credential on the service.
	CredentialID string

	// AuthToken is sent as the Authorization header, e.g. "Bearer ey...".
	AuthToken string

	// PIN and OTP authorize the credential when the service's authMode
	// requires them.
	PIN string
	OTP string

	HTTPClient *http.Client
}

// Signer is a crypto.Signer over one remote credential. New fetches the
// credential's certificate and algorithm list once; Sign performs an
// authorize + signHash round trip per signature.
type Signer struct {
	rest         restClient
	credentialID string
	pin, otp     string
	authMode     string
	signAlgoOID  string
	pub          crypto.PublicKey
	ctx          context.Context
}

// New connects to the service and loads the credential's public half.
func New(cfg Config) (*Signer, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("cscsigner: Config.BaseURL is required")
	}
	if cfg.CredentialID == "" {
		return nil, errors.New("cscsigner: Config.CredentialID is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	s := &Signer{
		rest:         restClient{base: strings.TrimRight(cfg.BaseURL, "/"), token: cfg.AuthToken, http: httpClient},
		credentialID: cfg.CredentialID,
		pin:          cfg.PIN,
		otp:          cfg.OTP,
		ctx:          context.Background(),
	}
	if err := s.loadCredential(); err != nil {
		return nil, err
	}
	return s, nil
}

// WithContext returns a copy of the Signer whose service calls run under
// ctx.
func (s *Signer) WithContext(ctx context.Context) *Signer {
	copied := *s
	copied.ctx = ctx
	return &copied
}

func (s *Signer) Public() crypto.PublicKey { return s.pub }

// credentialInfo mirrors the credentials/info response.
type credentialInfo struct {
	Key struct {
		Status string   `json:"status"`
		Algo   []string `json:"algo"`
	} `json:"key"`
	Cert struct {
		Certificates []string `json:"certificates"`
	} `json:"cert"`
	AuthMode string `json:"authMode"`
}

func (s *Signer) loadCredential() error {
	var info credentialInfo
	err := s.rest.post(s.ctx, "credentials/info", map[string]string{"credentialID": s.credentialID}, &info)
	if err != nil {
		return fmt.Errorf("cscsigner: credentials/info: %w", err)
	}

	if len(info.Cert.Certificates) == 0 {
		return errors.New("cscsigner: credential carries no certificate")
	}
	der, err := base64.StdEncoding.DecodeString(info.Cert.Certificates[0])
	if err != nil {
		return fmt.Errorf("cscsigner: decoding credential certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("cscsigner: parsing credential certificate: %w", err)
	}
	s.pub = cert.PublicKey

	if len(info.Key.Algo) == 0 {
		return errors.New("cscsigner: credential lists no signing algorithms")
	}
	s.signAlgoOID = info.Key.Algo[0]
	s.authMode = info.AuthMode
	return nil
}

// Sign authorizes the credential (when the service requires it) and submits
// the digest to signatures/signHash.
func (s *Signer) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	hashOID, ok := digestOIDs[opts.HashFunc()]
	if !ok {
		return nil, fmt.Errorf("cscsigner: no CSC hash OID for %v", opts.HashFunc())
	}

	sad, err := s.authorize()
	if err != nil {
		return nil, err
	}

	request := struct {
		CredentialID string   `json:"credentialID"`
		SAD          string   `json:"SAD,omitempty"`
		Hashes       []string `json:"hash"`
		HashAlgo     string   `json:"hashAlgo"`
		SignAlgo     string   `json:"signAlgo"`
	}{
		CredentialID: s.credentialID,
		SAD:          sad,
		Hashes:       []string{base64.StdEncoding.EncodeToString(digest)},
		HashAlgo:     hashOID,
		SignAlgo:     s.signAlgoOID,
	}
	var response struct {
		Signatures []string `json:"signatures"`
	}
	if err := s.rest.post(s.ctx, "signatures/signHash", request, &response); err != nil {
		return nil, fmt.Errorf("cscsigner: signatures/signHash: %w", err)
	}
	if len(response.Signatures) == 0 {
		return nil, errors.New("cscsigner: service returned no signatures")
	}

	sig, err := base64.StdEncoding.DecodeString(response.Signatures[0])
	if err != nil {
		return nil, fmt.Errorf("cscsigner: decoding signature: %w", err)
	}
	return sig, nil
}

// authorize obtains Signature Activation Data. Implicit-auth services don't
// need one; for the rest, an authorize failure fails the signature rather
// than being swallowed.
func (s *Signer) authorize() (string, error) {
	if s.authMode == "implicit" {
		return "", nil
	}

	request := struct {
		CredentialID  string `json:"credentialID"`
		NumSignatures int    `json:"numSignatures"`
		PIN           string `json:"PIN,omitempty"`
		OTP           string `json:"OTP,omitempty"`
	}{
		CredentialID:  s.credentialID,
		NumSignatures: 1,
		PIN:           s.pin,
		OTP:           s.otp,
	}
	var response struct {
		SAD string `json:"SAD"`
	}
	if err := s.rest.post(s.ctx, "credentials/authorize", request, &response); err != nil {
		return "", fmt.Errorf("cscsigner: credentials/authorize: %w", err)
	}
	return response.SAD, nil
}

// digestOIDs maps the hashes CSC services accept to their dotted OIDs.
var digestOIDs = map[crypto.Hash]string{
	crypto.SHA1:   "1.3.14.3.2.26",
	crypto.SHA256: "2.16.840.1.101.3.4.2.1",
	crypto.SHA384: "2.16.840.1.101.3.4.2.2",
	crypto.SHA512: "2.16.840.1.101.3.4.2.3",
}

// restClient is the minimal JSON-POST transport the CSC endpoints share.
type restClient struct {
	base  string
	token string
	http  *http.Client
}

func (c restClient) post(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, payload)
	}
	return json.Unmarshal(payload, out)
}
