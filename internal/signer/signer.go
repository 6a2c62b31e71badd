// Package signer implements ECDSA-P256/SHA-256 signing and multi-key
// verification over a caller-supplied byte range (the token codec's
// canonical signing input). It has no notion of tokens; it just signs and
// verifies byte slices.
package signer

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
)

// Sign computes SHA-256 of in and produces an ASN.1 DER ECDSA signature
// over the digest using key. Deterministic-k (RFC 6979) is not required by
// the protocol; crypto/ecdsa's own randomized nonce is sufficient.
func Sign(key *ecdsa.PrivateKey, in []byte) ([]byte, error) {
	digest := sha256.Sum256(in)
	return ecdsa.SignASN1(rand.Reader, key, digest[:])
}

// Verify reports whether sig is a valid ECDSA/SHA-256 signature over in
// under any of the supplied public keys. Keys are tried in order and
// verification short-circuits on the first match. A key that fails to
// parse or verify is treated as a non-match, not an error, so key rotation
// with overlapping validity windows works: an unrecognized or malformed
// key in the list simply doesn't verify, it doesn't abort the search.
func Verify(keys []*ecdsa.PublicKey, in, sig []byte) bool {
	digest := sha256.Sum256(in)
	for _, k := range keys {
		if k == nil {
			continue
		}
		if ecdsa.VerifyASN1(k, digest[:], sig) {
			return true
		}
	}
	return false
}
