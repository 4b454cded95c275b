package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned by FastCache.Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// FastCache is an expiring key/value cache. Implementations synchronize
// themselves; callers never hold locks across calls.
type FastCache interface {
	// SetWithTTL stores value under key until ttl elapses.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the stored value or ErrMiss.
	Get(ctx context.Context, key string) (string, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	// Available reports whether the cache stores anything at all.
	Available() bool
	Close() error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (FastCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
