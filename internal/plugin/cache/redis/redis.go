package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chirino/movie-service/internal/config"
	registrycache "github.com/chirino/movie-service/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.FastCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: MOVIE_SERVICE_REDIS_URL is required")
	}
	return LoadFromURL(ctx, cfg.RedisURL)
}

// LoadFromURL creates a FastCache from a Redis-compatible URL.
func LoadFromURL(ctx context.Context, redisURL string) (registrycache.FastCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	return LoadFromOptions(ctx, opts)
}

// LoadFromOptions creates a FastCache from go-redis Options.
// This allows callers to customize options (e.g. Protocol for RESP2).
// This is exported so other plugins (e.g. Infinispan RESP) can reuse the implementation.
func LoadFromOptions(ctx context.Context, opts *goredis.Options) (registrycache.FastCache, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	return &redisCache{client: client}, nil
}

type redisCache struct {
	client *goredis.Client
}

func (c *redisCache) Available() bool {
	return true
}

func (c *redisCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", registrycache.ErrMiss
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

var _ registrycache.FastCache = (*redisCache)(nil)
