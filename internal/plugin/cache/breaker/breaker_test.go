package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	registrycache "github.com/chirino/movie-service/internal/registry/cache"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyCache struct {
	calls int
	err   error
}

func (f *flakyCache) SetWithTTL(context.Context, string, string, time.Duration) error {
	f.calls++
	return f.err
}

func (f *flakyCache) Get(context.Context, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "", registrycache.ErrMiss
}

func (f *flakyCache) Delete(context.Context, string) error {
	f.calls++
	return f.err
}

func (f *flakyCache) Ping(context.Context) error { return f.err }
func (f *flakyCache) Available() bool            { return true }
func (f *flakyCache) Close() error               { return nil }

func TestBreaker_MissesDoNotTrip(t *testing.T) {
	inner := &flakyCache{}
	c := Wrap(inner, Settings{ConsecutiveFailures: 2})

	for range 5 {
		_, err := c.Get(context.Background(), "user:1")
		assert.ErrorIs(t, err, registrycache.ErrMiss)
	}
	assert.Equal(t, gobreaker.StateClosed, c.State())
	assert.Equal(t, 5, inner.calls)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyCache{err: errors.New("connection refused")}
	c := Wrap(inner, Settings{ConsecutiveFailures: 2, OpenTimeout: time.Hour})
	ctx := context.Background()

	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "k")
	require.Equal(t, gobreaker.StateOpen, c.State())

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, c.SetWithTTL(ctx, "k", "v", time.Minute), gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the backend")
}

func TestBreaker_RecoversAfterTimeout(t *testing.T) {
	inner := &flakyCache{err: errors.New("timeout")}
	c := Wrap(inner, Settings{ConsecutiveFailures: 1, OpenTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	_, _ = c.Get(ctx, "k")
	require.Equal(t, gobreaker.StateOpen, c.State())

	inner.err = nil
	time.Sleep(40 * time.Millisecond)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, registrycache.ErrMiss)
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestBreaker_PingBypasses(t *testing.T) {
	inner := &flakyCache{err: errors.New("down")}
	c := Wrap(inner, Settings{ConsecutiveFailures: 1, OpenTimeout: time.Hour})
	_, _ = c.Get(context.Background(), "k")
	require.Equal(t, gobreaker.StateOpen, c.State())

	inner.err = nil
	assert.NoError(t, c.Ping(context.Background()))
}
