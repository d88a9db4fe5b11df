package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is a typed in-process cache keyed by string.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration)
	Delete(key string)
}

type ttlCache[V any] struct {
	items *gocache.Cache
}

// NewTTLCache returns a go-cache backed Cache. Entries without an explicit
// ttl expire after defaultTTL.
func NewTTLCache[V any](defaultTTL, cleanupInterval time.Duration) Cache[V] {
	return &ttlCache[V]{items: gocache.New(defaultTTL, cleanupInterval)}
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	var zero V
	raw, ok := c.items.Get(key)
	if !ok {
		return zero, false
	}
	value, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return value, true
}

func (c *ttlCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.items.Set(key, value, ttl)
}

func (c *ttlCache[V]) Delete(key string) {
	c.items.Delete(key)
}
