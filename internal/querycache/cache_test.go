package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsNonPositiveCapacity(t *testing.T) {
	_, err := New[string]("query", 0)
	require.Error(t, err)
	_, err = New[string]("query", -3)
	require.Error(t, err)
}

func TestLRUEviction(t *testing.T) {
	c, err := New[string]("query", 2)
	require.NoError(t, err)

	c.Put("A", "a")
	c.Put("B", "b")
	c.Put("C", "c")

	_, ok := c.Get("A")
	assert.False(t, ok)
	v, ok := c.Get("B")
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	_, ok = c.Get("C")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
	assert.Equal(t, 2, c.Len())
}

func TestGetRefreshesRecency(t *testing.T) {
	c, err := New[int]("query", 2)
	require.NoError(t, err)

	c.Put("A", 1)
	c.Put("B", 2)
	_, _ = c.Get("A")
	c.Put("C", 3)

	_, ok := c.Get("B")
	assert.False(t, ok, "B was least recently used")
	_, ok = c.Get("A")
	assert.True(t, ok)
}

func TestPutReplaceRefreshesRecency(t *testing.T) {
	c, err := New[int]("query", 2)
	require.NoError(t, err)

	c.Put("A", 1)
	c.Put("B", 2)
	c.Put("A", 10)
	c.Put("C", 3)

	v, ok := c.Get("A")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	_, ok = c.Get("B")
	assert.False(t, ok)
}

func TestCheckVersion(t *testing.T) {
	c, err := New[int]("query", 4)
	require.NoError(t, err)

	assert.False(t, c.CheckVersion("v1"))
	c.Put("A", 1)
	assert.False(t, c.CheckVersion("v1"))
	_, ok := c.Get("A")
	assert.True(t, ok)

	assert.True(t, c.CheckVersion("v2"))
	_, ok = c.Get("A")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Invalidations)
}

func TestClearReportsDroppedEntries(t *testing.T) {
	c, err := New[int]("query", 4)
	require.NoError(t, err)
	c.Put("A", 1)
	c.Put("B", 2)

	assert.Equal(t, 2, c.Clear())
	assert.Equal(t, 0, c.Len())
}

func TestGetOrLoad_SecondCallHitsCache(t *testing.T) {
	c, err := New[[]string]("query", 4)
	require.NoError(t, err)

	var calls atomic.Int32
	load := func(context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"alien", "aliens"}, nil
	}

	ctx := context.Background()
	first, hit, err := c.GetOrLoad(ctx, "v1", "k", load)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := c.GetOrLoad(ctx, "v1", "k", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrLoad_VersionChangeForcesMiss(t *testing.T) {
	c, err := New[int]("query", 4)
	require.NoError(t, err)

	ctx := context.Background()
	n := 0
	load := func(context.Context) (int, error) {
		n++
		return n, nil
	}

	v, _, err := c.GetOrLoad(ctx, "mtime-1", "k", load)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, hit, err := c.GetOrLoad(ctx, "mtime-2", "k", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, v)
}

func TestGetOrLoad_FailureLeavesNoEntry(t *testing.T) {
	c, err := New[int]("query", 4)
	require.NoError(t, err)

	boom := errors.New("catalog offline")
	_, _, err = c.GetOrLoad(context.Background(), "v1", "k", func(context.Context) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestGetOrLoad_InvalidationDuringLoadDropsResult(t *testing.T) {
	c, err := New[int]("query", 4)
	require.NoError(t, err)

	_, _, err = c.GetOrLoad(context.Background(), "v1", "k", func(context.Context) (int, error) {
		c.Clear()
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentPutsNeverExceedCapacity(t *testing.T) {
	const capacity = 8
	c, err := New[int]("query", capacity)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("%d-%d", w, i)
				c.Put(key, i)
				_, _ = c.Get(key)
				assert.LessOrEqual(t, c.Len(), capacity)
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, capacity, c.Len())
}

func TestGetOrLoad_SharedLoadSurvivesFirstCallerCancel(t *testing.T) {
	c, err := New[string]("query", 4)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var loads atomic.Int32
	load := func(ctx context.Context) (string, error) {
		loads.Add(1)
		close(started)
		select {
		case <-release:
			return "heat", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrLoad(firstCtx, "v1", "k", load)
		firstErr <- err
	}()
	<-started

	type outcome struct {
		value string
		err   error
	}
	second := make(chan outcome, 1)
	go func() {
		v, _, err := c.GetOrLoad(context.Background(), "v1", "k", load)
		second <- outcome{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "heat", got.value)
	assert.Equal(t, int32(1), loads.Load())

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "heat", v)
}
