package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"testing"
	"time"
)

func testKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func testCert(t *testing.T, key *rsa.PrivateKey) []byte {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "media set signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestSignVerifyDetached(t *testing.T) {
	key, keyPEM := testKey(t)
	certPEM := testCert(t, key)
	payload := []byte(`{"items":[]}`)

	sig, err := SignDetachedJWS(payload, keyPEM, "signer-1")
	if err != nil {
		t.Fatalf("SignDetachedJWS: %v", err)
	}
	if sig.Payload != "" {
		t.Fatalf("detached signature carries payload %q", sig.Payload)
	}
	if err := VerifyDetachedJWS(sig, payload, certPEM); err != nil {
		t.Fatalf("VerifyDetachedJWS: %v", err)
	}
	if err := VerifyDetachedJWS(sig, []byte(`{"items":[1]}`), certPEM); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}

	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	if err := VerifyDetachedJWS(sig, payload, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})); err != nil {
		t.Fatalf("verify with PKIX key: %v", err)
	}

	subject, issuer, err := CertificateNames(certPEM)
	if err != nil || subject != "CN=media set signer" || issuer != subject {
		t.Fatalf("CertificateNames = %q, %q, %v", subject, issuer, err)
	}
}

func TestSignRejectsBadKey(t *testing.T) {
	if _, err := SignDetachedJWS([]byte("x"), []byte("not pem"), ""); err == nil {
		t.Fatalf("expected error for missing pem block")
	}
}
