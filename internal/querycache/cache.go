// Package querycache memoizes expensive catalog and semantic lookups behind a
// bounded LRU that is cleared whenever the backing data's version marker
// changes.
package querycache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/monitoring"
	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"
)

// Stats is a point-in-time view of a cache's counters.
type Stats struct {
	Name          string `json:"name"`
	Size          int    `json:"size"`
	Capacity      int    `json:"capacity"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
	Invalidations uint64 `json:"invalidations"`
}

// Cache is a capacity-bounded LRU keyed by normalized parameter digests.
// Lookup with promotion and insertion with eviction each run as a single
// critical section, so a Cache is safe for concurrent use.
type Cache[V any] struct {
	name     string
	capacity int

	mu         sync.Mutex
	entries    *lru.LRU[string, V]
	version    string
	hasVersion bool
	generation uint64
	stats      Stats

	loads singleflight.Group
}

// New returns an empty cache holding at most capacity entries.
func New[V any](name string, capacity int) (*Cache[V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("query cache %s: capacity must be positive, got %d", name, capacity)
	}
	entries, err := lru.NewLRU[string, V](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("query cache %s: %w", name, err)
	}
	return &Cache[V]{name: name, capacity: capacity, entries: entries}, nil
}

// Name returns the cache name used in logs and metrics.
func (c *Cache[V]) Name() string { return c.name }

// Get returns the cached value for key and marks it most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries.Get(key)
	if ok {
		c.stats.Hits++
		monitoring.RecordQueryCacheEvent(c.name, monitoring.CacheEventHit)
	} else {
		c.stats.Misses++
		monitoring.RecordQueryCacheEvent(c.name, monitoring.CacheEventMiss)
	}
	return v, ok
}

// Put inserts or replaces the value for key, making it most recently used.
// When the cache is full the least recently used entry is evicted.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, value)
}

func (c *Cache[V]) putLocked(key string, value V) {
	if c.entries.Add(key, value) {
		c.stats.Evictions++
		monitoring.RecordQueryCacheEvent(c.name, monitoring.CacheEventEviction)
		log.Debug("Query cache full, evicted oldest entry", "cache", c.name)
	}
	monitoring.SetQueryCacheSize(c.name, c.entries.Len())
}

// Clear drops every entry and returns how many were dropped.
func (c *Cache[V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clearLocked()
}

// InvalidateAll is Clear under the name used by version-driven invalidation.
func (c *Cache[V]) InvalidateAll() int {
	return c.Clear()
}

func (c *Cache[V]) clearLocked() int {
	n := c.entries.Len()
	c.entries.Purge()
	c.generation++
	c.stats.Invalidations++
	monitoring.RecordQueryCacheEvent(c.name, monitoring.CacheEventInvalidate)
	monitoring.SetQueryCacheSize(c.name, 0)
	return n
}

// CheckVersion compares marker with the last marker seen and clears the cache
// when they differ. It reports whether the cache was cleared. The first marker
// observed is recorded without clearing.
func (c *Cache[V]) CheckVersion(marker string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkVersionLocked(marker)
}

func (c *Cache[V]) checkVersionLocked(marker string) bool {
	if !c.hasVersion {
		c.version, c.hasVersion = marker, true
		return false
	}
	if marker == c.version {
		return false
	}
	log.Info("Backing data changed, clearing query cache", "cache", c.name, "entries", c.entries.Len())
	c.version = marker
	c.clearLocked()
	return true
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Name = c.name
	s.Size = c.entries.Len()
	s.Capacity = c.capacity
	return s
}

// LoadTimeout bounds a shared load once it no longer follows any caller's
// context.
var LoadTimeout = 30 * time.Second

// GetOrLoad checks marker, returns the cached value for key on a hit and
// otherwise runs load. A loaded value is stored only if load succeeds and no
// invalidation happened while it ran, so a failed or superseded load leaves
// the cache as it was. Concurrent misses on the same key share one load; it
// runs detached from the first caller's cancellation, bounded by LoadTimeout,
// so a caller that gives up only abandons its own wait.
func (c *Cache[V]) GetOrLoad(ctx context.Context, marker, key string, load func(context.Context) (V, error)) (V, bool, error) {
	c.mu.Lock()
	c.checkVersionLocked(marker)
	gen := c.generation
	c.mu.Unlock()

	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	ch := c.loads.DoChan(fmt.Sprintf("%d/%s", gen, key), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LoadTimeout)
		defer cancel()
		v, err := load(loadCtx)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		if c.generation == gen {
			c.putLocked(key, v)
		}
		c.mu.Unlock()
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		v, _ := res.Val.(V)
		return v, false, nil
	}
}
