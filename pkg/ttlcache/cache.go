package ttlcache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNilLoader is returned by GetOrLoad when no loader is provided.
var ErrNilLoader = errors.New("loader cannot be nil")

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe TTL cache with an injected clock. Entries past
// their TTL are invisible to Get but retained until overwritten or
// invalidated, so GetOrLoad can fall back to a stale value when its
// loader fails.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	items   map[K]entry[V]
	ttl     time.Duration
	now     func() time.Time
	onStale func(key K) // Observability hook for stale serves
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithClock injects a clock, used by tests to control expiry.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStaleCallback registers a hook invoked whenever GetOrLoad serves a
// stale entry because its loader failed.
func WithStaleCallback[K comparable, V any](fn func(key K)) Option[K, V] {
	return func(c *Cache[K, V]) { c.onStale = fn }
}

// New creates a TTL cache. The TTL must be positive, otherwise it panics:
// a zero TTL would silently disable caching, which callers should opt
// into explicitly by not using a cache at all.
func New[K comparable, V any](ttl time.Duration, opts ...Option[K, V]) *Cache[K, V] {
	if ttl <= 0 {
		panic("ttlcache: TTL must be positive")
	}
	c := &Cache[K, V]{
		items: make(map[K]entry[V]),
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key if present and fresh.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok || c.now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value for key with the cache's TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Invalidate removes key from the cache. Returns the removed value and
// whether it existed (fresh or stale).
func (c *Cache[K, V]) Invalidate(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if ok {
		delete(c.items, key)
		return e.value, true
	}
	var zero V
	return zero, false
}

// Len returns the number of entries held, including stale ones.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// GetOrLoad returns the fresh cached value for key, or invokes loader and
// caches its result. When the loader fails and a stale entry exists, the
// stale value is served and the loader error suppressed; the error is
// only returned when there is nothing to fall back to. Staleness
// tolerance is therefore bounded by how long the caller keeps the entry
// around, not by the TTL.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, loader func(ctx context.Context) (V, error)) (V, error) {
	if loader == nil {
		var zero V
		return zero, ErrNilLoader
	}

	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := loader(ctx)
	if err == nil {
		c.Set(key, v)
		return v, nil
	}

	c.mu.Lock()
	e, stale := c.items[key]
	c.mu.Unlock()
	if stale {
		if c.onStale != nil {
			c.onStale(key)
		}
		return e.value, nil
	}

	var zero V
	return zero, err
}
