package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lborres/opgate/core"
	"github.com/redis/go-redis/v9"
)

var _ core.IdentityCache = (*RedisCache)(nil)

const defaultRedisPrefix = "opgate:identity"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisCache shares the email to identity mapping across instances.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects and pings the server before returning.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultRedisPrefix
	}
	if cfg.TTL == 0 {
		cfg.TTL = 5 * time.Minute
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisCache{client: rdb, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

func (c *RedisCache) key(email string) string {
	return c.prefix + ":" + email
}

func (c *RedisCache) Get(ctx context.Context, email string) (string, error) {
	val, err := c.client.Get(ctx, c.key(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", core.ErrCacheNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, email, identityID string) error {
	return c.client.Set(ctx, c.key(email), identityID, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, email string) error {
	return c.client.Del(ctx, c.key(email)).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
