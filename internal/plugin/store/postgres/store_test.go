package postgres_test

import (
	"context"
	"testing"

	"github.com/chirino/movie-service/internal/config"
	"github.com/chirino/movie-service/internal/plugin/store/postgres"
	registrymigrate "github.com/chirino/movie-service/internal/registry/migrate"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
	"github.com/chirino/movie-service/internal/testutil/containers"
	"github.com/chirino/movie-service/internal/testutil/teststore"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, dbURL string) (registrystore.Store, context.Context) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DatastoreType = "postgres"
	cfg.DBURL = dbURL
	ctx := config.WithContext(context.Background(), &cfg)

	// Ensure postgres store plugin is registered
	_ = postgres.ForceImport

	// Run migrations
	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)

	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, ctx
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	dbURL := containers.Postgres(t)
	teststore.Run(t, func(t *testing.T) (registrystore.Store, context.Context) {
		return setupTestStore(t, dbURL)
	})
}
