// Package convlock serializes work per conversation thread. Turns for one
// thread run one at a time in arrival order; distinct threads never contend
// beyond a short map lookup.
package convlock

import (
	"context"
	"errors"
	"sync"

	"github.com/chirino/movie-service/internal/monitoring"
)

// ErrClosed is returned once the registry has been torn down.
var ErrClosed = errors.New("conversation lock registry closed")

// threadLock is a mutex whose waiters can give up when their context ends.
// Blocked senders on a channel are queued in order, which keeps waiters FIFO.
type threadLock chan struct{}

func (l threadLock) lock(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l threadLock) unlock() { <-l }

// Registry hands out one lock per thread id. Locks are created lazily and
// live until Teardown.
type Registry struct {
	mu     sync.Mutex
	locks  map[string]threadLock
	closed bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{locks: make(map[string]threadLock)}
}

// lockFor returns the lock for threadID, creating it if needed. Only the map
// access happens under the registry mutex.
func (r *Registry) lockFor(threadID string) (threadLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	l, ok := r.locks[threadID]
	if !ok {
		l = make(threadLock, 1)
		r.locks[threadID] = l
		monitoring.SetConversationLocks(len(r.locks))
	}
	return l, nil
}

// Acquire blocks until the caller holds threadID's lock or ctx is done. The
// returned release func must be called exactly once.
func (r *Registry) Acquire(ctx context.Context, threadID string) (func(), error) {
	l, err := r.lockFor(threadID)
	if err != nil {
		return nil, err
	}
	if err := l.lock(ctx); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(l.unlock) }, nil
}

// Do runs fn while holding threadID's lock. The lock is released when fn
// returns or panics.
func (r *Registry) Do(ctx context.Context, threadID string, fn func(ctx context.Context) error) error {
	release, err := r.Acquire(ctx, threadID)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// With is Do for functions that produce a value.
func With[T any](ctx context.Context, r *Registry, threadID string, fn func(ctx context.Context) (T, error)) (T, error) {
	release, err := r.Acquire(ctx, threadID)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return fn(ctx)
}

// Len returns the number of threads with a lock.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// Teardown drops every lock and rejects further acquisitions. Holders keep
// their lock until they release it. It returns the number of locks dropped.
func (r *Registry) Teardown() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.locks)
	r.locks = make(map[string]threadLock)
	r.closed = true
	monitoring.SetConversationLocks(0)
	return n
}
