package session

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/monitoring"
	registrycache "github.com/chirino/movie-service/internal/registry/cache"
)

// failOpenCache absorbs every fast-cache failure: reads degrade to misses and
// writes are dropped. It is the only place cache errors are swallowed.
type failOpenCache struct {
	inner registrycache.FastCache
}

func (c failOpenCache) get(ctx context.Context, key string) (string, bool) {
	if c.inner == nil {
		return "", false
	}
	v, err := c.inner.Get(ctx, key)
	switch {
	case err == nil:
		return v, true
	case errors.Is(err, registrycache.ErrMiss):
		return "", false
	default:
		monitoring.RecordFastCacheError("get")
		log.Warn("Fast cache read failed, falling back to store", "key", key, "err", err)
		return "", false
	}
}

// set reports whether the value was written. A missing cache counts as
// written since nothing can be stale in it.
func (c failOpenCache) set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if c.inner == nil {
		return true
	}
	if err := c.inner.SetWithTTL(ctx, key, value, ttl); err != nil {
		monitoring.RecordFastCacheError("set")
		log.Warn("Fast cache write failed", "key", key, "err", err)
		return false
	}
	return true
}

func (c failOpenCache) delete(ctx context.Context, key string) bool {
	if c.inner == nil {
		return true
	}
	if err := c.inner.Delete(ctx, key); err != nil {
		monitoring.RecordFastCacheError("delete")
		log.Warn("Fast cache delete failed", "key", key, "err", err)
		return false
	}
	return true
}
