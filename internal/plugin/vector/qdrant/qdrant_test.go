package qdrant_test

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/chirino/movie-service/internal/config"
	"github.com/chirino/movie-service/internal/plugin/vector/qdrant"
	registrymigrate "github.com/chirino/movie-service/internal/registry/migrate"
	registryvector "github.com/chirino/movie-service/internal/registry/vector"
	"github.com/chirino/movie-service/internal/testutil/containers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQdrantStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	addr := containers.Qdrant(t)
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.VectorType = "qdrant"
	cfg.VectorMigrateAtStart = true
	cfg.QdrantHost = host
	cfg.QdrantPort, err = strconv.Atoi(port)
	require.NoError(t, err)
	cfg.QdrantCollectionName = "movies_test"
	cfg.EmbedType = "ollama"
	cfg.OllamaEmbedDimensions = 3
	ctx := config.WithContext(context.Background(), &cfg)

	_ = qdrant.ForceImport
	require.NoError(t, registrymigrate.RunAll(ctx))
	// A second run sees the existing collection and leaves it alone.
	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registryvector.Select("qdrant")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)

	v0, err := store.Version(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Upsert(ctx, []registryvector.UpsertRequest{
		{MovieID: 11, Embedding: []float32{1, 0, 0}, Content: "Heat"},
		{MovieID: 12, Embedding: []float32{0, 1, 0}, Content: "Amelie"},
		{MovieID: 13, Embedding: []float32{0.9, 0.1, 0}, Content: "Thief"},
	}))

	v1, err := store.Version(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, v0, v1)

	results, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(11), results[0].MovieID)
	assert.Equal(t, int64(13), results[1].MovieID)
	assert.Greater(t, results[0].Score, results[1].Score)

	assert.Error(t, store.Upsert(ctx, []registryvector.UpsertRequest{{MovieID: -1, Embedding: []float32{1, 0, 0}}}))
}
