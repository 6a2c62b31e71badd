// Package replay implements the idempotent "seen" set used to reject
// replayed countersigned tokens (spec.md §4.I). Scope and eviction policy
// are a deployment concern; this implementation is in-memory and bounded,
// process-lifetime, the way the teacher's own preLoginCache/checkKeyCache
// bound their in-memory caches with hashicorp/golang-lru.
package replay

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// Guard is a concurrency-safe set of previously seen countersigned token
// strings. Insertion and membership lookup are both safe for concurrent
// use from multiple goroutines. Seen and Record each hold the mutex only
// for their own call, so two racing submissions that call Seen and then
// Record can both observe "not seen"; CheckAndRecord does the check and
// the insertion under one lock, so two racing submissions of the same
// token cannot both win (closing the TOCTOU window spec.md §5 calls out).
type Guard struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// New returns a Guard that remembers up to size distinct tokens, evicting
// the least recently used entry once full.
func New(size int) (*Guard, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Guard{cache: c}, nil
}

// Seen reports whether token has already been recorded.
func (g *Guard) Seen(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache.Contains(token)
}

// Record marks token as seen. It is idempotent: recording the same token
// twice has no additional effect.
func (g *Guard) Record(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache.Add(token, struct{}{})
}

// CheckAndRecord atomically checks whether token has been seen and, if
// not, records it, returning true if this call is the one that recorded
// it (i.e. the token was not a replay). This is the primitive callers
// should use instead of separate Seen/Record calls, which would otherwise
// leave a window between the check and the record.
func (g *Guard) CheckAndRecord(token string) (firstSeen bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cache.Contains(token) {
		return false
	}
	g.cache.Add(token, struct{}{})
	return true
}
