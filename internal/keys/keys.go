// Package keys parses and emits P-256 (secp256r1 / prime256v1) keys in the
// two forms the delegated account recovery protocol uses: PEM (for local
// configuration of a provider's own signing key) and unwrapped, single-line
// base64 SubjectPublicKeyInfo DER (for the public keys published in AP/RP
// configuration documents and for embedding in test fixtures).
package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

// ErrNotP256 is returned when a parsed key is on a curve other than P-256;
// the protocol supports ECDSA/secp256r1 only (spec non-goal: no other
// signature schemes).
var ErrNotP256 = errors.New("key is not on the P-256 curve")

// ParsePrivatePEM parses a PEM-encoded PKCS#8 or SEC1 EC private key and
// returns the P-256 private key it contains.
func ParsePrivatePEM(b []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("keys: no PEM block found")
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return checkP256Private(key)
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parse private key: %w", err)
	}
	ecKey, ok := k.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("keys: private key is not ECDSA")
	}
	return checkP256Private(ecKey)
}

// MarshalPrivatePEM serializes a private key as a PEM-encoded PKCS#8 block.
func MarshalPrivatePEM(key *ecdsa.PrivateKey) ([]byte, error) {
	b, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("keys: marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: b}), nil
}

// ParsePublicPEM parses a PEM-encoded SubjectPublicKeyInfo block.
func ParsePublicPEM(b []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("keys: no PEM block found")
	}
	return parseSPKI(block.Bytes)
}

// ParsePublicBase64 parses the unwrapped, single-line base64 encoding of a
// SubjectPublicKeyInfo DER blob, the form used in
// "tokensign-pubkeys-secp256r1" and "countersign-pubkeys-secp256r1" JSON
// configuration fields (spec.md §4.G): the 26-byte ASN.1 wrapper
// "30 59 30 13 06 07 2A 86 48 CE 3D 02 01 06 08 2A 86 48 CE 3D 03 01 07 03
// 42 00" followed by the 65-byte uncompressed EC point.
func ParsePublicBase64(s string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("keys: decode base64: %w", err)
	}
	return parseSPKI(der)
}

func parseSPKI(der []byte) (*ecdsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("keys: parse public key: %w", err)
	}
	ecKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("keys: public key is not ECDSA")
	}
	return checkP256Public(ecKey)
}

// MarshalPublicBase64 re-emits a public key as the unwrapped, single-line
// base64 SubjectPublicKeyInfo DER encoding used to publish keys in AP/RP
// configuration documents.
func MarshalPublicBase64(pub *ecdsa.PublicKey) (string, error) {
	if pub.Curve != elliptic.P256() {
		return "", ErrNotP256
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("keys: marshal public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// MarshalPublicPEM re-emits a public key as a PEM-encoded SubjectPublicKeyInfo
// block.
func MarshalPublicPEM(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("keys: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

func checkP256Private(key *ecdsa.PrivateKey) (*ecdsa.PrivateKey, error) {
	if key.Curve != elliptic.P256() {
		return nil, ErrNotP256
	}
	return key, nil
}

func checkP256Public(key *ecdsa.PublicKey) (*ecdsa.PublicKey, error) {
	if key.Curve != elliptic.P256() {
		return nil, ErrNotP256
	}
	return key, nil
}
