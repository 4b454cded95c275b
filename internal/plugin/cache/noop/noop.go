package noop

import (
	"context"
	"time"

	"github.com/chirino/movie-service/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.FastCache, error) {
			return Cache{}, nil
		},
	})
}

// Cache stores nothing; every Get misses.
type Cache struct{}

func (Cache) Available() bool { return false }
func (Cache) SetWithTTL(context.Context, string, string, time.Duration) error {
	return nil
}
func (Cache) Get(context.Context, string) (string, error) { return "", cache.ErrMiss }
func (Cache) Delete(context.Context, string) error        { return nil }
func (Cache) Ping(context.Context) error                  { return nil }
func (Cache) Close() error                                { return nil }

var _ cache.FastCache = Cache{}
