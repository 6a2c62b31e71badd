package config

import (
	"crypto/ecdsa"
	"encoding/json"
	"time"
)

// rpConfigWire is the exact JSON shape of a recovery provider configuration
// document (spec.md §3). SaveTokenAsyncApiIframe is optional: spec.md §9
// notes it is mandatory in one reference and optional in another, and
// decides to treat it as optional to match the more recent deployment.
type rpConfigWire struct {
	Issuer                      string   `json:"issuer"`
	SaveToken                   string   `json:"save-token"`
	RecoverAccount              string   `json:"recover-account"`
	SaveTokenAsyncApiIframe     string   `json:"save-token-async-api-iframe,omitempty"`
	PrivacyPolicy               string   `json:"privacy-policy"`
	Icon152px                   string   `json:"icon-152px,omitempty"`
	TokenMaxSize                int      `json:"token-max-size"`
	CountersignPubkeysSecp256r1 []string `json:"countersign-pubkeys-secp256r1"`
}

// RecoveryProviderConfiguration is the parsed, validated form of a recovery
// provider's published configuration document. Values are immutable after
// construction.
type RecoveryProviderConfiguration struct {
	Issuer                      string
	SaveToken                   string
	RecoverAccount              string
	SaveTokenAsyncApiIframe     string // optional, empty if absent
	PrivacyPolicy               string
	Icon152px                   string // optional, empty if absent
	TokenMaxSize                int
	CountersignPubkeysSecp256r1 []string
	ExpiresAt                   time.Time
}

// ParseRecoveryProviderConfiguration parses and validates a recovery
// provider configuration document. expiresAt is supplied by the caller
// (normally the fetcher, from fetch time plus max-age).
func ParseRecoveryProviderConfiguration(body []byte, expiresAt time.Time) (*RecoveryProviderConfiguration, error) {
	var w rpConfigWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, err
	}
	if w.Issuer == "" {
		return nil, &ErrMissingField{"issuer"}
	}
	if w.SaveToken == "" {
		return nil, &ErrMissingField{"save-token"}
	}
	if w.RecoverAccount == "" {
		return nil, &ErrMissingField{"recover-account"}
	}
	if w.PrivacyPolicy == "" {
		return nil, &ErrMissingField{"privacy-policy"}
	}
	if len(w.CountersignPubkeysSecp256r1) == 0 {
		return nil, &ErrMissingField{"countersign-pubkeys-secp256r1"}
	}
	if err := validateIssuer(w.Issuer); err != nil {
		return nil, err
	}
	if _, err := parsePublicKeys(w.CountersignPubkeysSecp256r1); err != nil {
		return nil, err
	}
	return &RecoveryProviderConfiguration{
		Issuer:                      w.Issuer,
		SaveToken:                   w.SaveToken,
		RecoverAccount:              w.RecoverAccount,
		SaveTokenAsyncApiIframe:     w.SaveTokenAsyncApiIframe,
		PrivacyPolicy:               w.PrivacyPolicy,
		Icon152px:                   w.Icon152px,
		TokenMaxSize:                w.TokenMaxSize,
		CountersignPubkeysSecp256r1: w.CountersignPubkeysSecp256r1,
		ExpiresAt:                   expiresAt,
	}, nil
}

// NewRecoveryProviderConfiguration builds a configuration document for a
// provider to serve from its own well-known endpoint (component J).
func NewRecoveryProviderConfiguration(issuer, saveToken, recoverAccount, saveTokenAsyncApiIframe, privacyPolicy, icon152px string, tokenMaxSize int, countersignKeys []string) *RecoveryProviderConfiguration {
	return &RecoveryProviderConfiguration{
		Issuer:                      issuer,
		SaveToken:                   saveToken,
		RecoverAccount:              recoverAccount,
		SaveTokenAsyncApiIframe:     saveTokenAsyncApiIframe,
		PrivacyPolicy:               privacyPolicy,
		Icon152px:                   icon152px,
		TokenMaxSize:                tokenMaxSize,
		CountersignPubkeysSecp256r1: countersignKeys,
	}
}

// JSON re-serializes the configuration for publication, preserving the
// exact key strings it was constructed or parsed with.
func (c *RecoveryProviderConfiguration) JSON() ([]byte, error) {
	return json.Marshal(rpConfigWire{
		Issuer:                      c.Issuer,
		SaveToken:                   c.SaveToken,
		RecoverAccount:              c.RecoverAccount,
		SaveTokenAsyncApiIframe:     c.SaveTokenAsyncApiIframe,
		PrivacyPolicy:               c.PrivacyPolicy,
		Icon152px:                   c.Icon152px,
		TokenMaxSize:                c.TokenMaxSize,
		CountersignPubkeysSecp256r1: c.CountersignPubkeysSecp256r1,
	})
}

// IsExpired reports whether the configuration's max-age has elapsed as of
// now.
func (c *RecoveryProviderConfiguration) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// CountersignKeys parses and returns the provider's countersigning public
// keys.
func (c *RecoveryProviderConfiguration) CountersignKeys() ([]*ecdsa.PublicKey, error) {
	return parsePublicKeys(c.CountersignPubkeysSecp256r1)
}
