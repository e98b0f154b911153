// Package pkcs11signer signs PDF digests with a private key held on a
// PKCS#11 token or HSM. It implements crypto.Signer; wrap the result in
// sign.NewPrivateKeySignature to use it as a signature backend.
//
// Each Sign call opens and tears down its own module session. That is slow
// but keeps the signer stateless, so one instance can serve many documents
// without holding a token session hostage between them.
package pkcs11signer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/miekg/pkcs11"
)

// Config locates the module, token and key. TokenLabel may be empty to take
// the first token present; KeyLabel may be empty when the token holds a
// single private key.
type Config struct {
	ModulePath string
	TokenLabel string
	KeyLabel   string
	PIN        string

	// PublicKey must match the token key; it selects the signing mechanism
	// and is what certificate validation compares against.
	PublicKey crypto.PublicKey
}

var errNoToken = errors.New("pkcs11signer: token not found")

// Signer is a stateless crypto.Signer over a token-resident key.
type Signer struct {
	cfg Config
}

// New validates cfg and returns a Signer. The module is not loaded until
// the first Sign call.
func New(cfg Config) (*Signer, error) {
	if cfg.ModulePath == "" {
		return nil, errors.New("pkcs11signer: Config.ModulePath is required")
	}
	if cfg.PublicKey == nil {
		return nil, errors.New("pkcs11signer: Config.PublicKey is required")
	}
	if _, err := mechanismFor(cfg.PublicKey); err != nil {
		return nil, err
	}
	return &Signer{cfg: cfg}, nil
}

func (s *Signer) Public() crypto.PublicKey { return s.cfg.PublicKey }

// Sign signs digest on the token. ECDSA signatures come back from PKCS#11
// as a raw r||s concatenation and are re-encoded as the DER SEQUENCE the
// CMS container format requires.
func (s *Signer) Sign(_ io.Reader, digest []byte, _ crypto.SignerOpts) ([]byte, error) {
	mod := pkcs11.New(s.cfg.ModulePath)
	if mod == nil {
		return nil, fmt.Errorf("pkcs11signer: loading module %s", s.cfg.ModulePath)
	}
	if err := mod.Initialize(); err != nil {
		return nil, fmt.Errorf("pkcs11signer: initializing module: %w", err)
	}
	defer func() {
		_ = mod.Finalize()
		mod.Destroy()
	}()

	session, logout, err := s.openSession(mod)
	if err != nil {
		return nil, err
	}
	defer logout()

	key, err := s.findPrivateKey(mod, session)
	if err != nil {
		return nil, err
	}

	mech, err := mechanismFor(s.cfg.PublicKey)
	if err != nil {
		return nil, err
	}
	if err := mod.SignInit(session, []*pkcs11.Mechanism{mech}, key); err != nil {
		return nil, fmt.Errorf("pkcs11signer: sign init: %w", err)
	}
	raw, err := mod.Sign(session, digest)
	if err != nil {
		return nil, fmt.Errorf("pkcs11signer: sign: %w", err)
	}

	if _, ok := s.cfg.PublicKey.(*ecdsa.PublicKey); ok {
		return ecdsaRawToDER(raw)
	}
	return raw, nil
}

// openSession finds the configured token, opens a session, and logs in when
// a PIN is set. The returned func undoes login and session.
func (s *Signer) openSession(mod *pkcs11.Ctx) (pkcs11.SessionHandle, func(), error) {
	slots, err := mod.GetSlotList(true)
	if err != nil {
		return 0, nil, fmt.Errorf("pkcs11signer: listing slots: %w", err)
	}

	slot, err := s.matchSlot(mod, slots)
	if err != nil {
		return 0, nil, err
	}

	session, err := mod.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		return 0, nil, fmt.Errorf("pkcs11signer: opening session: %w", err)
	}

	loggedIn := false
	if s.cfg.PIN != "" {
		if err := mod.Login(session, pkcs11.CKU_USER, s.cfg.PIN); err != nil {
			_ = mod.CloseSession(session)
			return 0, nil, fmt.Errorf("pkcs11signer: login: %w", err)
		}
		loggedIn = true
	}

	cleanup := func() {
		if loggedIn {
			_ = mod.Logout(session)
		}
		_ = mod.CloseSession(session)
	}
	return session, cleanup, nil
}

func (s *Signer) matchSlot(mod *pkcs11.Ctx, slots []uint) (uint, error) {
	for _, slot := range slots {
		info, err := mod.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		if s.cfg.TokenLabel == "" || info.Label == s.cfg.TokenLabel {
			return slot, nil
		}
	}
	return 0, fmt.Errorf("%w: label %q", errNoToken, s.cfg.TokenLabel)
}

func (s *Signer) findPrivateKey(mod *pkcs11.Ctx, session pkcs11.SessionHandle) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
	}
	if s.cfg.KeyLabel != "" {
		template = append(template, pkcs11.NewAttribute(pkcs11.CKA_LABEL, s.cfg.KeyLabel))
	}

	if err := mod.FindObjectsInit(session, template); err != nil {
		return 0, fmt.Errorf("pkcs11signer: key search init: %w", err)
	}
	objects, _, err := mod.FindObjects(session, 1)
	if err != nil {
		return 0, fmt.Errorf("pkcs11signer: key search: %w", err)
	}
	if err := mod.FindObjectsFinal(session); err != nil {
		return 0, fmt.Errorf("pkcs11signer: key search teardown: %w", err)
	}
	if len(objects) == 0 {
		return 0, fmt.Errorf("pkcs11signer: private key %q not found", s.cfg.KeyLabel)
	}
	return objects[0], nil
}

// mechanismFor rejects key types the token interface cannot sign for
// instead of guessing a mechanism.
func mechanismFor(pub crypto.PublicKey) (*pkcs11.Mechanism, error) {
	switch pub.(type) {
	case *rsa.PublicKey:
		return pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil), nil
	case *ecdsa.PublicKey:
		return pkcs11.NewMechanism(pkcs11.CKM_ECDSA, nil), nil
	default:
		return nil, fmt.Errorf("pkcs11signer: unsupported key type %T", pub)
	}
}

// ecdsaRawToDER re-encodes a PKCS#11 r||s signature as the ASN.1 SEQUENCE
// every other crypto consumer expects.
func ecdsaRawToDER(raw []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%2 != 0 {
		return nil, fmt.Errorf("pkcs11signer: malformed ECDSA signature of %d bytes", len(raw))
	}
	half := len(raw) / 2
	sig := struct{ R, S *big.Int }{
		R: new(big.Int).SetBytes(raw[:half]),
		S: new(big.Int).SetBytes(raw[half:]),
	}
	return asn1.Marshal(sig)
}
