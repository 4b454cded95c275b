// Package breaker guards a FastCache with a circuit breaker so a failing
// backend is skipped quickly instead of costing a network timeout per call.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/monitoring"
	registrycache "github.com/chirino/movie-service/internal/registry/cache"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Settings tune when the breaker opens and how long it stays open.
type Settings struct {
	Name string
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// Cache is a FastCache whose calls pass through a circuit breaker. A miss is
// a successful call.
type Cache struct {
	inner registrycache.FastCache
	cb    *gobreaker.CircuitBreaker[string]
}

// Wrap returns inner guarded by a breaker configured from s.
func Wrap(inner registrycache.FastCache, s Settings) *Cache {
	if s.Name == "" {
		s.Name = "fast-cache"
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	monitoring.SetBreakerState(s.Name, int(gobreaker.StateClosed))

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, registrycache.ErrMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			monitoring.SetBreakerState(name, int(to))
		},
	})
	return &Cache{inner: inner, cb: cb}
}

// State reports the breaker's current state.
func (c *Cache) State() gobreaker.State { return c.cb.State() }

func (c *Cache) Available() bool { return c.inner.Available() }

func (c *Cache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := c.cb.Execute(func() (string, error) {
		return "", c.inner.SetWithTTL(ctx, key, value, ttl)
	})
	return err
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	return c.cb.Execute(func() (string, error) {
		return c.inner.Get(ctx, key)
	})
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	_, err := c.cb.Execute(func() (string, error) {
		return "", c.inner.Delete(ctx, key)
	})
	return err
}

// Ping bypasses the breaker so health checks always see the backend itself.
func (c *Cache) Ping(ctx context.Context) error { return c.inner.Ping(ctx) }

func (c *Cache) Close() error { return c.inner.Close() }

var _ registrycache.FastCache = (*Cache)(nil)
