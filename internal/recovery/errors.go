package recovery

import "errors"

// Error taxonomy for token construction and validation (spec.md §7). Each
// is a distinct sentinel so callers can discriminate failure reasons with
// errors.Is while logging full detail only server-side; the user-visible
// failure path should never reveal which of these fired.
var (
	ErrInvalidOrigin    = errors.New("invalid origin")
	ErrMalformedToken   = errors.New("malformed token")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrIssuerMismatch   = errors.New("issuer mismatch")
	ErrAudienceMismatch = errors.New("audience mismatch")
	ErrBindingMismatch  = errors.New("binding mismatch")
	ErrTokenExpired     = errors.New("token expired")
)
