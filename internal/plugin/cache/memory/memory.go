// Package memory provides an in-process FastCache backed by ristretto. It
// suits single-replica deployments where a shared cache adds nothing.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/movie-service/internal/config"
	registrycache "github.com/chirino/movie-service/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

const defaultMaxCost = 64 << 20

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrycache.FastCache, error) {
			maxCost := int64(defaultMaxCost)
			if cfg := config.FromContext(ctx); cfg != nil && cfg.CacheMemoryMaxCost > 0 {
				maxCost = cfg.CacheMemoryMaxCost
			}
			c, err := New(maxCost)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	})
}

// Cache is a cost-bounded expiring cache. Cost is the byte length of key and value.
type Cache struct {
	cache *ristretto.Cache[string, string]
}

// New returns a cache holding at most maxCost bytes.
func New(maxCost int64) (*Cache, error) {
	if maxCost <= 0 {
		return nil, fmt.Errorf("memory cache: max cost must be positive, got %d", maxCost)
	}
	// Ristretto recommends ten counters per expected item; assume ~64 byte entries.
	counters := min(max(maxCost/64*10, 1000), 1_000_000)
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: counters,
		MaxCost:     maxCost,
		BufferItems: 64,
		// Cost is exactly the stored bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &Cache{cache: c}, nil
}

func (c *Cache) Available() bool { return true }

func (c *Cache) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	c.cache.SetWithTTL(key, value, int64(len(key)+len(value)), ttl)
	// Make the write visible to the next Get.
	c.cache.Wait()
	return nil
}

func (c *Cache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.cache.Get(key)
	if !ok {
		return "", registrycache.ErrMiss
	}
	return v, nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.cache.Del(key)
	return nil
}

func (c *Cache) Ping(context.Context) error { return nil }

func (c *Cache) Close() error {
	c.cache.Close()
	return nil
}

var _ registrycache.FastCache = (*Cache)(nil)
