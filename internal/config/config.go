// Package config implements the two provider configuration documents
// (spec.md §3, §4.G): the account provider's and the recovery provider's
// published JSON, each carrying an expiry a caller uses to decide when to
// re-fetch. Configurations are immutable after construction; there is no
// in-place refresh, only constructing a new value.
package config

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"delegatedrecovery/internal/keys"
	"delegatedrecovery/internal/origin"
)

// DefaultMaxAge is used when a fetch response carries no Cache-Control
// max-age directive (spec.md §4.H).
const DefaultMaxAge = time.Hour

// ErrMissingField is returned, carrying the field's JSON key, when a
// required field is absent from a configuration document.
type ErrMissingField struct{ Field string }

func (e *ErrMissingField) Error() string {
	return fmt.Sprintf("config: missing required field %q", e.Field)
}

// parsePublicKeys decodes a list of base64 SubjectPublicKeyInfo strings
// into public keys, preserving order: per spec.md §6, the first entry is
// the current signing key, but callers must accept all of them.
func parsePublicKeys(encoded []string) ([]*ecdsa.PublicKey, error) {
	out := make([]*ecdsa.PublicKey, 0, len(encoded))
	for i, s := range encoded {
		k, err := keys.ParsePublicBase64(s)
		if err != nil {
			return nil, fmt.Errorf("config: public key %d: %w", i, err)
		}
		out = append(out, k)
	}
	return out, nil
}

func validateIssuer(issuer string) error {
	if err := origin.Validate(issuer); err != nil {
		return fmt.Errorf("config: %w: issuer %q", err, issuer)
	}
	return nil
}
