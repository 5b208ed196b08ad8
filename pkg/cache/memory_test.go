package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lborres/opgate/core"
)

func TestInMemoryCache_GetSet(t *testing.T) {
	// Arrange
	ctx := context.Background()
	c := NewInMemoryCache(core.CacheConfig{TTL: time.Minute, MaxSize: 10})

	// Act
	_, missErr := c.Get(ctx, "a@example.com")
	_ = c.Set(ctx, "a@example.com", "id-1")
	got, hitErr := c.Get(ctx, "a@example.com")

	// Assert
	if !errors.Is(missErr, core.ErrCacheNotFound) {
		t.Errorf("Get() before Set error = %v, want ErrCacheNotFound", missErr)
	}
	if hitErr != nil || got != "id-1" {
		t.Errorf("Get() = %q, %v; want id-1, nil", got, hitErr)
	}
	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Sets != 1 {
		t.Errorf("Stats() = %+v, want 1 hit, 1 miss, 1 set", stats)
	}
}

func TestInMemoryCache_Expiry(t *testing.T) {
	// Arrange
	ctx := context.Background()
	c := NewInMemoryCache(core.CacheConfig{TTL: 20 * time.Millisecond, MaxSize: 10})
	_ = c.Set(ctx, "a@example.com", "id-1")

	// Act
	time.Sleep(40 * time.Millisecond)
	_, err := c.Get(ctx, "a@example.com")

	// Assert
	if !errors.Is(err, core.ErrCacheNotFound) {
		t.Errorf("Get() after ttl error = %v, want ErrCacheNotFound", err)
	}
}

func TestInMemoryCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(core.CacheConfig{})
	_ = c.Set(ctx, "a@example.com", "id-1")

	_ = c.Delete(ctx, "a@example.com")
	_ = c.Delete(ctx, "missing@example.com")

	if _, err := c.Get(ctx, "a@example.com"); !errors.Is(err, core.ErrCacheNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrCacheNotFound", err)
	}
	if got := c.Stats().Deletes; got != 1 {
		t.Errorf("Deletes = %d, want 1 (missing keys are not counted)", got)
	}
}

func TestInMemoryCache_Eviction(t *testing.T) {
	// Arrange
	ctx := context.Background()
	c := NewInMemoryCache(core.CacheConfig{TTL: time.Minute, MaxSize: 3})

	// Act
	for i := 0; i < 5; i++ {
		_ = c.Set(ctx, fmt.Sprintf("op%d@example.com", i), fmt.Sprintf("id-%d", i))
	}

	// Assert
	if got := c.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
	if got := c.Stats().Evictions; got != 2 {
		t.Errorf("Evictions = %d, want 2", got)
	}
}

func TestInMemoryCache_OverwriteDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(core.CacheConfig{TTL: time.Minute, MaxSize: 1})

	_ = c.Set(ctx, "a@example.com", "id-1")
	_ = c.Set(ctx, "a@example.com", "id-2")

	got, _ := c.Get(ctx, "a@example.com")
	if got != "id-2" {
		t.Errorf("Get() = %q, want id-2", got)
	}
	if ev := c.Stats().Evictions; ev != 0 {
		t.Errorf("Evictions = %d, want 0", ev)
	}
}

func TestInMemoryCache_Clear(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(core.CacheConfig{})
	_ = c.Set(ctx, "a@example.com", "id-1")
	_ = c.Set(ctx, "b@example.com", "id-2")

	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
}
