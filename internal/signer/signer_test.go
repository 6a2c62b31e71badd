package signer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
)

func genKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return k
}

// Property 2: signature determinism of verification. For all tuples and
// keys K, verify(sign(t, K), [pub(K)]) == true.
func TestSignVerify(t *testing.T) {
	k := genKey(t)
	msg := []byte("canonical signing input")
	sig, err := Sign(k, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Verify([]*ecdsa.PublicKey{&k.PublicKey}, msg, sig) {
		t.Error("Verify returned false for a freshly signed message")
	}
}

// Property 3: tamper detection. For all tokens t and non-empty bit-flip
// masks over the canonical signing input, verify fails.
func TestTamperDetection(t *testing.T) {
	k := genKey(t)
	msg := []byte("canonical signing input")
	sig, err := Sign(k, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	for i := range msg {
		tampered := append([]byte(nil), msg...)
		tampered[i] ^= 0x01
		if Verify([]*ecdsa.PublicKey{&k.PublicKey}, tampered, sig) {
			t.Errorf("Verify succeeded after flipping bit %d", i)
		}
	}
}

// Property 4: multi-key acceptance.
func TestMultiKeyAcceptance(t *testing.T) {
	k1 := genKey(t)
	k2 := genKey(t)
	k3 := genKey(t)
	msg := []byte("canonical signing input")
	sig, err := Sign(k2, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	keys := []*ecdsa.PublicKey{&k1.PublicKey, &k2.PublicKey, &k3.PublicKey}
	if !Verify(keys, msg, sig) {
		t.Error("Verify returned false with pub(K) present in key set")
	}
	keysWithoutK2 := []*ecdsa.PublicKey{&k1.PublicKey, &k3.PublicKey}
	if Verify(keysWithoutK2, msg, sig) {
		t.Error("Verify returned true after removing pub(K) from key set")
	}
}

func TestVerifyMalformedSignatureIsNonMatch(t *testing.T) {
	k := genKey(t)
	msg := []byte("canonical signing input")
	if Verify([]*ecdsa.PublicKey{&k.PublicKey}, msg, []byte("not a DER signature")) {
		t.Error("Verify succeeded on malformed DER")
	}
}

func TestVerifyEmptyKeyList(t *testing.T) {
	if Verify(nil, []byte("msg"), []byte("sig")) {
		t.Error("Verify with no keys returned true")
	}
}
