package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lborres/opgate/core"
	gocache "github.com/patrickmn/go-cache"
)

var _ core.IdentityCache = (*InMemoryCache)(nil)

// InMemoryCache maps emails to identity ids inside the process.
type InMemoryCache struct {
	store   *gocache.Cache
	ttl     time.Duration
	maxSize int

	// counters
	hits      int64
	misses    int64
	sets      int64
	deletes   int64
	evictions int64
}

// NewInMemoryCache creates a new in-memory cache
func NewInMemoryCache(c core.CacheConfig) *InMemoryCache {
	if c.TTL == 0 {
		c.TTL = 5 * time.Minute
	}
	if c.MaxSize == 0 {
		c.MaxSize = 500
	}

	return &InMemoryCache{
		store:   gocache.New(c.TTL, time.Minute),
		ttl:     c.TTL,
		maxSize: c.MaxSize,
	}
}

func (c *InMemoryCache) Get(_ context.Context, email string) (string, error) {
	v, ok := c.store.Get(email)
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return "", core.ErrCacheNotFound
	}

	id, _ := v.(string)
	atomic.AddInt64(&c.hits, 1)
	return id, nil
}

func (c *InMemoryCache) Set(_ context.Context, email, identityID string) error {
	// Simple eviction if full
	if _, exists := c.store.Get(email); !exists && c.store.ItemCount() >= c.maxSize {
		for k := range c.store.Items() {
			c.store.Delete(k)
			atomic.AddInt64(&c.evictions, 1)
			break
		}
	}

	c.store.Set(email, identityID, gocache.DefaultExpiration)
	atomic.AddInt64(&c.sets, 1)
	return nil
}

func (c *InMemoryCache) Delete(_ context.Context, email string) error {
	if _, existed := c.store.Get(email); existed {
		c.store.Delete(email)
		atomic.AddInt64(&c.deletes, 1)
	}
	return nil
}

// Clear removes every entry
func (c *InMemoryCache) Clear() {
	c.store.Flush()
}

// Len returns the number of cached entries, including expired ones not yet swept
func (c *InMemoryCache) Len() int {
	return c.store.ItemCount()
}

// Stats returns cache statistics
func (c *InMemoryCache) Stats() core.CacheStats {
	return core.CacheStats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Sets:      atomic.LoadInt64(&c.sets),
		Deletes:   atomic.LoadInt64(&c.deletes),
		Evictions: atomic.LoadInt64(&c.evictions),
		Size:      c.Len(),
		TTL:       c.ttl,
	}
}
