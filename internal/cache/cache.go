// Package cache provides a bounded, expiring in-memory cache.
package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultSize is the number of entries retained before LRU eviction.
const DefaultSize = 1024

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a typed LRU cache with per-entry TTL.
type Cache[K comparable, V any] struct {
	lru  *lru.Cache
	stop chan struct{}
	once sync.Once
	now  func() time.Time
}

// New creates a cache that purges expired entries every cleanupInterval.
// A non-positive interval disables the background sweep; expired entries
// are still dropped on read.
func New[K comparable, V any](cleanupInterval time.Duration) *Cache[K, V] {
	return NewWithSize[K, V](DefaultSize, cleanupInterval)
}

// NewWithSize creates a cache bounded to size entries.
func NewWithSize[K comparable, V any](size int, cleanupInterval time.Duration) *Cache[K, V] {
	if size <= 0 {
		size = DefaultSize
	}

	// lru.New only fails for non-positive sizes.
	l, _ := lru.New(size)

	c := &Cache[K, V]{
		lru:  l,
		stop: make(chan struct{}),
		now:  time.Now,
	}

	if cleanupInterval > 0 {
		go c.sweep(cleanupInterval)
	}

	return c
}

// Get returns the value for key if present and not expired.
func (c *Cache[K, V]) Get(_ context.Context, key K) (V, bool) {
	var zero V

	raw, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}

	e := raw.(entry[V])
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.lru.Remove(key)
		return zero, false
	}

	return e.value, true
}

// Set stores value under key. A non-positive ttl never expires.
func (c *Cache[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.lru.Add(key, e)
}

// Delete removes key.
func (c *Cache[K, V]) Delete(_ context.Context, key K) {
	c.lru.Remove(key)
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}

// Close stops the background sweep.
func (c *Cache[K, V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache[K, V]) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.purgeExpired()
		}
	}
}

func (c *Cache[K, V]) purgeExpired() {
	now := c.now()
	for _, k := range c.lru.Keys() {
		raw, ok := c.lru.Peek(k)
		if !ok {
			continue
		}
		if e := raw.(entry[V]); !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			c.lru.Remove(k)
		}
	}
}
