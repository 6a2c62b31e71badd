// Package configfetch discovers AP/RP configuration documents at the
// well-known path (spec.md §4.H). It is the only outbound I/O the library
// packages perform; the token codec, signing and validation code is pure,
// in-memory computation. The provider package serves inbound HTTP, and the
// demo binaries make their own requests.
package configfetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"delegatedrecovery/internal/config"
	"delegatedrecovery/internal/log"
)

// WellKnownPath is the path component appended to an origin to discover its
// configuration document (spec.md §6).
const WellKnownPath = "/.well-known/delegated-account-recovery/configuration"

// ConfigType selects which configuration shape to parse the response body
// as; the wire document does not self-describe its type.
type ConfigType int

const (
	AccountProvider ConfigType = iota
	RecoveryProvider
)

// ErrConfigFetchError covers network failure, a non-2xx response, a
// non-JSON body, or origin validation failure on the fetched document's own
// issuer field.
var ErrConfigFetchError = errors.New("config fetch error")

// Fetcher discovers and parses configuration documents over HTTPS, with a
// bounded LRU cache keyed by (origin, ConfigType) so repeated lookups for
// the same principal within its max-age don't re-hit the network.
type Fetcher struct {
	hc    *http.Client
	cache *lru.Cache
}

type cacheKey struct {
	origin string
	typ    ConfigType
}

// New returns a Fetcher that performs HTTP requests with hc (a zero-value
// *http.Client is fine) and caches up to cacheSize configuration documents.
func New(hc *http.Client, cacheSize int) (*Fetcher, error) {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	c, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("configfetch: %w", err)
	}
	return &Fetcher{hc: hc, cache: c}, nil
}

// Fetch discovers the configuration document published at originURL and
// parses it as the document shape named by ct. A cached, unexpired result
// for the same (originURL, ct) pair is returned without a network round
// trip.
func (f *Fetcher) Fetch(ctx context.Context, originURL string, ct ConfigType) (interface{}, error) {
	key := cacheKey{origin: originURL, typ: ct}
	if v, ok := f.cache.Get(key); ok {
		if cached, ok := v.(expirer); ok && !cached.IsExpired(time.Now()) {
			return v, nil
		}
		f.cache.Remove(key)
	}

	cfg, err := f.fetch(ctx, originURL, ct)
	if err != nil {
		return nil, err
	}
	f.cache.Add(key, cfg)
	return cfg, nil
}

type expirer interface {
	IsExpired(now time.Time) bool
}

func (f *Fetcher) fetch(ctx context.Context, originURL string, ct ConfigType) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, originURL+WellKnownPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigFetchError, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigFetchError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrConfigFetchError, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigFetchError, err)
	}

	body, err = lowercaseIssuer(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigFetchError, err)
	}

	expiresAt := time.Now().Add(maxAge(resp.Header))

	switch ct {
	case AccountProvider:
		cfg, err := config.ParseAccountProviderConfiguration(body, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigFetchError, err)
		}
		log.Debugf("fetched AP config for %s", cfg.Issuer)
		return cfg, nil
	case RecoveryProvider:
		cfg, err := config.ParseRecoveryProviderConfiguration(body, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigFetchError, err)
		}
		log.Debugf("fetched RP config for %s", cfg.Issuer)
		return cfg, nil
	default:
		return nil, fmt.Errorf("%w: unknown config type %d", ErrConfigFetchError, ct)
	}
}

// lowercaseIssuer rewrites the top-level "issuer" field of a JSON document
// to lower case before validation/parsing, per spec.md §4.H.
func lowercaseIssuer(body []byte) ([]byte, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	raw, ok := m["issuer"]
	if !ok {
		return body, nil
	}
	var issuer string
	if err := json.Unmarshal(raw, &issuer); err != nil {
		return nil, err
	}
	lowered, err := json.Marshal(strings.ToLower(issuer))
	if err != nil {
		return nil, err
	}
	m["issuer"] = lowered
	return json.Marshal(m)
}

// maxAge extracts the max-age directive from a Cache-Control header,
// falling back to config.DefaultMaxAge when absent or unparseable.
func maxAge(h http.Header) time.Duration {
	cc := h.Get("Cache-Control")
	if cc == "" {
		return config.DefaultMaxAge
	}
	for _, part := range strings.Split(cc, ",") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "max-age=") {
			continue
		}
		secs, err := strconv.Atoi(strings.TrimPrefix(part, "max-age="))
		if err != nil || secs < 0 {
			return config.DefaultMaxAge
		}
		return time.Duration(secs) * time.Second
	}
	return config.DefaultMaxAge
}
