package recovery

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"delegatedrecovery/internal/origin"
	"delegatedrecovery/internal/signer"
	"delegatedrecovery/internal/token"
)

// CountersignedToken is a RecoveryToken that has been returned via the
// recovery provider, countersigned, and has passed every check in spec.md
// §4.F. A receiver obtains one only through Validate. NewCountersigned also
// returns one, for the recovery provider that mints and signs it with its
// own key; that value has not been through Validate.
type CountersignedToken struct {
	raw token.Token
}

// ID returns the token's 16-byte identifier.
func (c *CountersignedToken) ID() [16]byte { return c.raw.ID }

// Issuer returns the countersigning principal's origin (the original
// token's audience).
func (c *CountersignedToken) Issuer() string { return c.raw.Issuer }

// Audience returns the original issuer's origin.
func (c *CountersignedToken) Audience() string { return c.raw.Audience }

// IssuedTime returns the ISO-8601 countersigning timestamp.
func (c *CountersignedToken) IssuedTime() string { return c.raw.IssuedTime }

// Data returns the original recovery token carried inside this
// countersigned token.
func (c *CountersignedToken) Data() []byte { return c.raw.Data }

// Binding returns the token's channel-binding bytes.
func (c *CountersignedToken) Binding() []byte { return c.raw.Binding }

// InnerTokenHash returns hex(SHA-256(Data)), which the account provider
// uses to rejoin this countersigned token to the record it created for the
// original recovery token (spec.md §4.F).
func (c *CountersignedToken) InnerTokenHash() string {
	h := sha256.Sum256(c.raw.Data)
	return hex.EncodeToString(h[:])
}

// Validate parses encoded and runs the fixed-order validation pipeline from
// spec.md §4.F, failing on the first check that does not pass:
//
//  1. parse succeeds (codec)
//  2. version == 0x00 and type == countersigned
//  3. issuer == expectedIssuer, audience == expectedAudience
//  4. binding == expectedBinding (byte-equal)
//  5. signature verifies under at least one of keys
//  6. |now - issuedTime| <= allowedClockSkew
//
// There is no partial success: a token is either fully valid, returned as
// *CountersignedToken, or rejected with one of the sentinel errors in
// errors.go.
func Validate(encoded, expectedIssuer, expectedAudience string, expectedBinding []byte, allowedClockSkew time.Duration, keys []*ecdsa.PublicKey) (*CountersignedToken, error) {
	raw, err := token.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if raw.Version != token.Version || raw.Type != token.TypeCountersignedToken {
		return nil, fmt.Errorf("%w: unexpected version/type", ErrMalformedToken)
	}

	if raw.Issuer != expectedIssuer {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrIssuerMismatch, raw.Issuer, expectedIssuer)
	}
	if raw.Audience != expectedAudience {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrAudienceMismatch, raw.Audience, expectedAudience)
	}

	if !bytes.Equal(raw.Binding, expectedBinding) {
		return nil, ErrBindingMismatch
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

	return &CountersignedToken{raw: raw}, nil
}

// NewCountersigned constructs, signs, and encodes a countersigned token:
// the artifact a recovery provider returns to an account provider during
// recovery, wrapping the original recovery token's encoded bytes in data
// with issuer/audience swapped relative to it (spec.md §3, "Countersigned
// token"). Symmetric to New, which mints the original recovery token.
func NewCountersigned(key *ecdsa.PrivateKey, id [16]byte, issuer, audience string, data, binding []byte) (*CountersignedToken, string, error) {
	if err := origin.Validate(issuer); err != nil {
		return nil, "", fmt.Errorf("%w: issuer %q", ErrInvalidOrigin, issuer)
	}
	if err := origin.Validate(audience); err != nil {
		return nil, "", fmt.Errorf("%w: audience %q", ErrInvalidOrigin, audience)
	}

	raw := token.Token{
		Version:    token.Version,
		Type:       token.TypeCountersignedToken,
		ID:         id,
		Issuer:     issuer,
		Audience:   audience,
		IssuedTime: nowISO(),
		Data:       data,
		Binding:    binding,
	}
	signingInput, err := raw.SigningInput()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	sig, err := signer.Sign(key, signingInput)
	if err != nil {
		return nil, "", fmt.Errorf("recovery: sign: %w", err)
	}
	raw.Signature = sig

	encoded, err := raw.Encode()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return &CountersignedToken{raw: raw}, encoded, nil
}
