// Package recovery implements the high-level recovery token and
// countersigned token objects described in spec.md §3-§4: construction and
// signing of outgoing recovery tokens, and fixed-order validation of
// incoming countersigned tokens.
package recovery

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"delegatedrecovery/internal/origin"
	"delegatedrecovery/internal/signer"
	"delegatedrecovery/internal/token"
)

// RecoveryToken is a signed, constructed artifact an account provider gives
// a recovery provider to hold on a user's behalf.
type RecoveryToken struct {
	raw     token.Token
	encoded string
}

// ID returns the token's 16-byte identifier.
func (r *RecoveryToken) ID() [16]byte { return r.raw.ID }

// Issuer returns the issuing principal's origin.
func (r *RecoveryToken) Issuer() string { return r.raw.Issuer }

// Audience returns the intended recipient's origin.
func (r *RecoveryToken) Audience() string { return r.raw.Audience }

// IssuedTime returns the ISO-8601 issuance timestamp.
func (r *RecoveryToken) IssuedTime() string { return r.raw.IssuedTime }

// Options returns the token's option bits.
func (r *RecoveryToken) Options() byte { return r.raw.Options }

// Data returns the token's opaque payload.
func (r *RecoveryToken) Data() []byte { return r.raw.Data }

// Binding returns the token's channel-binding bytes.
func (r *RecoveryToken) Binding() []byte { return r.raw.Binding }

// Encoded returns the base64-encoded wire form produced at construction
// time.
func (r *RecoveryToken) Encoded() string { return r.encoded }

// New constructs, signs, and encodes a new recovery token. issuer and
// audience must be valid origins (spec.md §6); id must be exactly 16 bytes
// of caller-supplied entropy, unique per token.
func New(key *ecdsa.PrivateKey, id [16]byte, options byte, issuer, audience string, data, binding []byte) (*RecoveryToken, error) {
	if err := origin.Validate(issuer); err != nil {
		return nil, fmt.Errorf("%w: issuer %q", ErrInvalidOrigin, issuer)
	}
	if err := origin.Validate(audience); err != nil {
		return nil, fmt.Errorf("%w: audience %q", ErrInvalidOrigin, audience)
	}

	raw := token.Token{
		Version:    token.Version,
		Type:       token.TypeRecoveryToken,
		ID:         id,
		Options:    options,
		Issuer:     issuer,
		Audience:   audience,
		IssuedTime: nowISO(),
		Data:       data,
		Binding:    binding,
	}
	signingInput, err := raw.SigningInput()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	sig, err := signer.Sign(key, signingInput)
	if err != nil {
		return nil, fmt.Errorf("recovery: sign: %w", err)
	}
	raw.Signature = sig

	encoded, err := raw.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return &RecoveryToken{raw: raw, encoded: encoded}, nil
}

// ValidateToken parses encoded as a RecoveryToken and verifies it against
// the expected issuer (the account provider), the expected audience (this
// recovery provider's own origin), an allowed clock skew, and the
// account provider's published signing keys. This is the receiving side's
// mirror of New: the recovery provider runs it on every deposited token
// before storing it.
func ValidateToken(encoded, expectedIssuer, expectedAudience string, allowedClockSkew time.Duration, keys []*ecdsa.PublicKey) (*RecoveryToken, error) {
	raw, err := token.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if raw.Version != token.Version || raw.Type != token.TypeRecoveryToken {
		return nil, fmt.Errorf("%w: unexpected version/type", ErrMalformedToken)
	}
	if raw.Issuer != expectedIssuer {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrIssuerMismatch, raw.Issuer, expectedIssuer)
	}
	if raw.Audience != expectedAudience {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrAudienceMismatch, raw.Audience, expectedAudience)
	}

	signingInput, err := raw.SigningInput()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if !signer.Verify(keys, signingInput, raw.Signature) {
		return nil, ErrSignatureInvalid
	}

	issued, err := parseISO(raw.IssuedTime)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable issuedTime %q", ErrMalformedToken, raw.IssuedTime)
	}
	if skew := time.Since(issued); skew < 0 {
		if -skew > allowedClockSkew {
			return nil, ErrTokenExpired
		}
	} else if skew > allowedClockSkew {
		return nil, ErrTokenExpired
	}

	return &RecoveryToken{raw: raw, encoded: encoded}, nil
}
