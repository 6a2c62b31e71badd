package config

import (
	"crypto/ecdsa"
	"encoding/json"
	"time"
)

// apConfigWire is the exact JSON shape of an account provider configuration
// document (spec.md §3).
type apConfigWire struct {
	Issuer                    string   `json:"issuer"`
	SaveTokenReturn           string   `json:"save-token-return"`
	RecoverAccountReturn      string   `json:"recover-account-return"`
	PrivacyPolicy             string   `json:"privacy-policy"`
	Icon152px                 string   `json:"icon-152px,omitempty"`
	TokensignPubkeysSecp256r1 []string `json:"tokensign-pubkeys-secp256r1"`
}

// AccountProviderConfiguration is the parsed, validated form of an account
// provider's published configuration document. Values are immutable after
// construction.
type AccountProviderConfiguration struct {
	Issuer                    string
	SaveTokenReturn           string
	RecoverAccountReturn      string
	PrivacyPolicy             string
	Icon152px                 string // optional, empty if absent
	TokensignPubkeysSecp256r1 []string
	ExpiresAt                 time.Time
}

// ParseAccountProviderConfiguration parses and validates an account
// provider configuration document. expiresAt is supplied by the caller
// (normally the fetcher, from fetch time plus max-age) since the document
// itself carries no expiry field.
func ParseAccountProviderConfiguration(body []byte, expiresAt time.Time) (*AccountProviderConfiguration, error) {
	var w apConfigWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, err
	}
	if w.Issuer == "" {
		return nil, &ErrMissingField{"issuer"}
	}
	if w.SaveTokenReturn == "" {
		return nil, &ErrMissingField{"save-token-return"}
	}
	if w.RecoverAccountReturn == "" {
		return nil, &ErrMissingField{"recover-account-return"}
	}
	if w.PrivacyPolicy == "" {
		return nil, &ErrMissingField{"privacy-policy"}
	}
	if len(w.TokensignPubkeysSecp256r1) == 0 {
		return nil, &ErrMissingField{"tokensign-pubkeys-secp256r1"}
	}
	if err := validateIssuer(w.Issuer); err != nil {
		return nil, err
	}
	if _, err := parsePublicKeys(w.TokensignPubkeysSecp256r1); err != nil {
		return nil, err
	}
	return &AccountProviderConfiguration{
		Issuer:                    w.Issuer,
		SaveTokenReturn:           w.SaveTokenReturn,
		RecoverAccountReturn:      w.RecoverAccountReturn,
		PrivacyPolicy:             w.PrivacyPolicy,
		Icon152px:                 w.Icon152px,
		TokensignPubkeysSecp256r1: w.TokensignPubkeysSecp256r1,
		ExpiresAt:                 expiresAt,
	}, nil
}

// NewAccountProviderConfiguration builds a configuration document for a
// provider to serve from its own well-known endpoint (component J).
func NewAccountProviderConfiguration(issuer, saveTokenReturn, recoverAccountReturn, privacyPolicy, icon152px string, signingKeys []string) *AccountProviderConfiguration {
	return &AccountProviderConfiguration{
		Issuer:                    issuer,
		SaveTokenReturn:           saveTokenReturn,
		RecoverAccountReturn:      recoverAccountReturn,
		PrivacyPolicy:             privacyPolicy,
		Icon152px:                 icon152px,
		TokensignPubkeysSecp256r1: signingKeys,
	}
}

// JSON re-serializes the configuration for publication. It re-emits the
// same base64 SubjectPublicKeyInfo strings it was constructed or parsed
// with, never re-deriving them, so a provider's publish form is always
// byte-identical to what it was given.
func (c *AccountProviderConfiguration) JSON() ([]byte, error) {
	return json.Marshal(apConfigWire{
		Issuer:                    c.Issuer,
		SaveTokenReturn:           c.SaveTokenReturn,
		RecoverAccountReturn:      c.RecoverAccountReturn,
		PrivacyPolicy:             c.PrivacyPolicy,
		Icon152px:                 c.Icon152px,
		TokensignPubkeysSecp256r1: c.TokensignPubkeysSecp256r1,
	})
}

// IsExpired reports whether the configuration's max-age has elapsed as of
// now. Callers must re-fetch; a stale configuration is never refreshed in
// place.
func (c *AccountProviderConfiguration) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// SigningKeys parses and returns the provider's token-signing public keys,
// in the order published: the first is the current signing key, but a
// verifier must accept all of them (key rotation).
func (c *AccountProviderConfiguration) SigningKeys() ([]*ecdsa.PublicKey, error) {
	return parsePublicKeys(c.TokensignPubkeysSecp256r1)
}
