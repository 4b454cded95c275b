package pgvector_test

import (
	"context"
	"testing"

	"github.com/chirino/movie-service/internal/config"
	"github.com/chirino/movie-service/internal/plugin/vector/pgvector"
	registrymigrate "github.com/chirino/movie-service/internal/registry/migrate"
	registryvector "github.com/chirino/movie-service/internal/registry/vector"
	"github.com/chirino/movie-service/internal/testutil/containers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaFor(t *testing.T) {
	schema := pgvector.SchemaFor(384)
	assert.Contains(t, schema, "vector(384)")
	assert.NotContains(t, schema, "{{dimension}}")
}

func TestPgvectorStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "postgres"
	cfg.DBURL = containers.Postgres(t)
	cfg.VectorType = "pgvector"
	cfg.VectorMigrateAtStart = true
	cfg.EmbedType = "ollama"
	cfg.OllamaEmbedDimensions = 3
	ctx := config.WithContext(context.Background(), &cfg)

	_ = pgvector.ForceImport
	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registryvector.Select("pgvector")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)

	v0, err := store.Version(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Upsert(ctx, []registryvector.UpsertRequest{
		{MovieID: 1, Embedding: []float32{1, 0, 0}, Content: "Heat", ModelName: "test"},
		{MovieID: 2, Embedding: []float32{0, 1, 0}, Content: "Notting Hill", ModelName: "test"},
		{MovieID: 3, Embedding: []float32{0.9, 0.1, 0}, Content: "Thief", ModelName: "test"},
	}))

	v1, err := store.Version(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, v0, v1)

	results, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].MovieID)
	assert.Equal(t, int64(3), results[1].MovieID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)

	require.NoError(t, store.Upsert(ctx, []registryvector.UpsertRequest{{MovieID: 2, Embedding: []float32{1, 0, 0}}}))
	results, err = store.Search(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.InDelta(t, 1.0, results[1].Score, 1e-4)
}
