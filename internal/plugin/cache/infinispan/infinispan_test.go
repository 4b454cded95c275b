package infinispan_test

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/movie-service/internal/config"
	_ "github.com/chirino/movie-service/internal/plugin/cache/infinispan"
	registrycache "github.com/chirino/movie-service/internal/registry/cache"
	"github.com/chirino/movie-service/internal/testutil/containers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfinispanCache(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ispn := containers.StartInfinispan(t)

	cfg := config.DefaultConfig()
	cfg.InfinispanHost = ispn.Host
	cfg.InfinispanUsername = ispn.Username
	cfg.InfinispanPassword = ispn.Password
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registrycache.Select("infinispan")
	require.NoError(t, err)
	cache, err := loader(ctx)
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.SetWithTTL(ctx, "user:abc", "1", time.Minute))
	v, err := cache.Get(ctx, "user:abc")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	_, err = cache.Get(ctx, "user:nobody")
	assert.ErrorIs(t, err, registrycache.ErrMiss)
}

func TestInfinispanCache_RequiresHost(t *testing.T) {
	cfg := config.DefaultConfig()
	ctx := config.WithContext(context.Background(), &cfg)
	loader, err := registrycache.Select("infinispan")
	require.NoError(t, err)
	_, err = loader(ctx)
	assert.Error(t, err)
}
