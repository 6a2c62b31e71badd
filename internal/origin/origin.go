// Package origin validates RFC-6454 style origins used to identify the
// principals (account providers and recovery providers) in the delegated
// account recovery protocol.
//
// err := origin.Validate("https://example.com")  // nil
// err = origin.Validate("https://example.com/")  // ErrInvalidOrigin: trailing slash
package origin

import (
	"errors"
	"regexp"
)

// ErrInvalidOrigin is returned when a string does not match the origin
// grammar required by the protocol.
var ErrInvalidOrigin = errors.New("invalid origin")

// grammar matches "https://" followed by one or more dot-separated DNS
// labels, a 2-63 letter TLD, and an optional ":port". No path, query,
// fragment, or trailing slash is permitted, and the whole string must be
// lower-case ASCII. Each label follows RFC 1035: it may contain hyphens
// only between two alphanumerics, never as its first or last character.
var grammar = regexp.MustCompile(`^https://([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}(:[0-9]+)?$`)

// Validate checks s against the origin grammar and returns ErrInvalidOrigin
// if it does not match. Two byte-equal origins are always the same
// principal and vice versa; callers must never compare origins after any
// transformation other than what Validate itself requires (none — the
// grammar rejects anything that would need normalizing).
func Validate(s string) error {
	if !grammar.MatchString(s) {
		return ErrInvalidOrigin
	}
	return nil
}

// Equal reports whether a and b are both valid and byte-identical. This is
// the only origin-comparison primitive the protocol uses; there is no
// notion of two distinct strings denoting the same origin.
func Equal(a, b string) bool {
	return Validate(a) == nil && a == b
}
