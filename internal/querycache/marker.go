package querycache

import (
	"context"
	"sync"
	"time"
)

// DefaultVersionInterval is how long a fetched version marker is trusted.
const DefaultVersionInterval = time.Second

// Marker memoizes a backing store's version marker. Within interval of the
// last successful fetch, Get answers from memory, so cache hits in that
// window reach no backend at all. A zero interval fetches on every call.
type Marker struct {
	fetch    func(context.Context) (string, error)
	interval time.Duration

	mu        sync.Mutex
	value     string
	fetchedAt time.Time
	valid     bool
}

// NewMarker returns a marker that calls fetch at most once per interval.
func NewMarker(interval time.Duration, fetch func(context.Context) (string, error)) *Marker {
	if interval < 0 {
		interval = 0
	}
	return &Marker{fetch: fetch, interval: interval}
}

// Get returns the current marker, fetching it when the memoized one is stale.
// A failed fetch is returned and leaves the previous marker stale.
func (m *Marker) Get(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.valid && m.interval > 0 && time.Since(m.fetchedAt) < m.interval {
		v := m.value
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Unlock()

	v, err := m.fetch(ctx)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.value, m.fetchedAt, m.valid = v, time.Now(), true
	m.mu.Unlock()
	return v, nil
}
