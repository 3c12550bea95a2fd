package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"time"
)

// Issuer and audience used by NewTestTokenProvider.
const (
	TestIssuer   = "test-issuer"
	TestAudience = "test-audience"
)

// NewTestKeyPair returns a fresh P-256 key pair as PKCS#8 and PKIX PEM. For tests only.
func NewTestKeyPair() (privPEM, pubPEM string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", err
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", err
	}
	privPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	pubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privPEM, pubPEM, nil
}

// NewTestTokenProvider returns an operator TokenProvider over a fresh key pair.
// Used by api and client tests. Callers must not use in production.
func NewTestTokenProvider() (*TokenProvider, error) {
	privPEM, _, err := NewTestKeyPair()
	if err != nil {
		return nil, err
	}
	signer, err := ParsePrivateKey(privPEM)
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, nil, TestIssuer, TestAudience, 15*time.Minute), nil
}
