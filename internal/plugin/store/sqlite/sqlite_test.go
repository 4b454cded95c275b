package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/chirino/movie-service/internal/config"
	"github.com/chirino/movie-service/internal/plugin/store/sqlite"
	registrymigrate "github.com/chirino/movie-service/internal/registry/migrate"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
	"github.com/chirino/movie-service/internal/testutil/teststore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (registrystore.Store, context.Context) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(t.TempDir(), "data", "sessions.db")
	ctx := config.WithContext(context.Background(), &cfg)

	_ = sqlite.ForceImport
	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select("sqlite")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, ctx
}

func TestSQLiteStore(t *testing.T) {
	teststore.Run(t, setupTestStore)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "file:data/s.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", sqlite.DSN("data/s.db"))
	assert.Equal(t, "file::memory:?cache=shared", sqlite.DSN("file::memory:?cache=shared"))
}

func TestMigrationIsIdempotent(t *testing.T) {
	store, ctx := setupTestStore(t)
	require.NoError(t, registrymigrate.RunAll(ctx))
	assert.NoError(t, store.Ping(ctx))
}
