package service

import (
	"sync"
	"time"

	"github.com/smallbiznis/rentflow/internal/cache"
)

const draftTokenTTL = 30 * time.Minute

// tokenRegistry hands out increasing request tokens per draft key. A
// result is current only while its token is still the latest issued.
type tokenRegistry struct {
	mu     sync.Mutex
	next   uint64
	latest cache.Cache[uint64]
}

func newTokenRegistry() *tokenRegistry {
	return &tokenRegistry{latest: cache.NewTTLCache[uint64](draftTokenTTL, draftTokenTTL)}
}

func (r *tokenRegistry) issue(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.latest.Set(key, r.next, draftTokenTTL)
	return r.next
}

func (r *tokenRegistry) current(key string, token uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest, ok := r.latest.Get(key)
	// An evicted key has no newer request to defer to.
	return !ok || latest == token
}
