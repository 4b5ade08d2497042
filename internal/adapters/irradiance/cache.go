package irradiance

import (
	"sync"
	"time"
)

// Observer is notified of cache lookups.
type Observer interface {
	CacheHit()
	CacheMiss()
}

type entry[T any] struct {
	val T
	exp time.Time
}

// Cache is a TTL map safe for concurrent use.
type Cache[T any] struct {
	mu  sync.RWMutex
	m   map[string]entry[T]
	ttl time.Duration
	obs Observer
	now func() time.Time
}

// NewCache creates a cache whose entries expire after ttl. obs may be nil.
func NewCache[T any](ttl time.Duration, obs Observer) *Cache[T] {
	return &Cache[T]{m: make(map[string]entry[T]), ttl: ttl, obs: obs, now: time.Now}
}

// Get returns the live value for key.
func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.exp) {
		if c.obs != nil {
			c.obs.CacheMiss()
		}
		return zero, false
	}
	if c.obs != nil {
		c.obs.CacheHit()
	}
	return e.val, true
}

// Set stores v under key.
func (c *Cache[T]) Set(key string, v T) {
	c.SetTTL(key, v, c.ttl)
}

// SetTTL stores v under key with its own lifetime.
func (c *Cache[T]) SetTTL(key string, v T, ttl time.Duration) {
	c.mu.Lock()
	c.m[key] = entry[T]{val: v, exp: c.now().Add(ttl)}
	c.mu.Unlock()
}

// peek is Get without notifying the observer.
func (c *Cache[T]) peek(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.exp) {
		var zero T
		return zero, false
	}
	return e.val, true
}

// Len returns the number of entries, expired ones included.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
