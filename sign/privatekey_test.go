package sign

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"testing"
)

func TestPrivateKeySignatureEncryptionAlgorithm(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		signer crypto.Signer
		want   string
	}{
		{"rsa", rsaKey, "RSA"},
		{"ecdsa", ecKey, "ECDSA"},
		{"ed25519", edKey, "Ed25519"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := NewPrivateKeySignature(tt.signer, crypto.SHA256)
			if got := ps.EncryptionAlgorithm(); got != tt.want {
				t.Errorf("EncryptionAlgorithm = %q, want %q", got, tt.want)
			}
			if got := ps.HashAlgorithm(); got != crypto.SHA256 {
				t.Errorf("HashAlgorithm = %v, want SHA256", got)
			}
		})
	}
}

func TestPrivateKeySignatureSignsDigest(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	ps := NewPrivateKeySignature(key, crypto.SHA256)

	digest := sha256.Sum256([]byte("authenticated attributes"))
	sig, err := ps.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
		t.Fatalf("signature does not verify: %v", err)
	}
}

func TestMaxSignatureLen(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		signer crypto.Signer
		want   int
	}{
		{"rsa 2048", rsaKey, 256},
		{"ecdsa p256", ecKey, 2*32 + 9},
		{"ed25519", edKey, ed25519.SignatureSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewPrivateKeySignature(tt.signer, crypto.SHA256).MaxSignatureLen()
			if err != nil {
				t.Fatalf("MaxSignatureLen: %v", err)
			}
			if got != tt.want {
				t.Errorf("MaxSignatureLen = %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := (&PrivateKeySignature{Hash: crypto.SHA256}).MaxSignatureLen(); err == nil {
		t.Error("MaxSignatureLen accepted a nil signer")
	}
}

func TestValidateSignerCertificateMatch(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	otherKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	cert := &x509.Certificate{PublicKey: &key.PublicKey}

	if err := ValidateSignerCertificateMatch(key, cert); err != nil {
		t.Errorf("matching pair rejected: %v", err)
	}
	if err := ValidateSignerCertificateMatch(otherKey, cert); err == nil {
		t.Error("mismatched pair accepted")
	}
	if err := ValidateSignerCertificateMatch(nil, cert); err == nil {
		t.Error("nil signer accepted")
	}
	if err := ValidateSignerCertificateMatch(key, nil); err == nil {
		t.Error("nil certificate accepted")
	}
}

func TestPrivateKeySignatureEd25519SignsMessage(t *testing.T) {
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	ps := NewPrivateKeySignature(key, crypto.SHA512)

	msg := []byte("raw message, not a digest")
	sig, err := ps.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !ed25519.Verify(pub, msg, sig) {
		t.Fatal("ed25519 signature does not verify over the raw message")
	}
}
