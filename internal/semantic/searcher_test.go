package semantic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chirino/movie-service/internal/model"
	"github.com/chirino/movie-service/internal/querycache"
	registrycatalog "github.com/chirino/movie-service/internal/registry/catalog"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
	registryvector "github.com/chirino/movie-service/internal/registry/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Dimension() int    { return 2 }

type fakeVectors struct {
	results  []registryvector.VectorSearchResult
	version  string
	limits   []int
	versions int
}

func (f *fakeVectors) Search(_ context.Context, _ []float32, limit int) ([]registryvector.VectorSearchResult, error) {
	f.limits = append(f.limits, limit)
	return f.results[:min(limit, len(f.results))], nil
}
func (f *fakeVectors) Upsert(context.Context, []registryvector.UpsertRequest) error { return nil }
func (f *fakeVectors) Version(context.Context) (string, error) {
	f.versions++
	return f.version, nil
}
func (f *fakeVectors) IsEnabled() bool { return true }
func (f *fakeVectors) Name() string    { return "fake" }

type fakeCatalog struct {
	movies   map[int64]model.MovieRecord
	versions int
}

func (f *fakeCatalog) Scan(context.Context, registrycatalog.BaseFilter) ([]model.MovieRecord, error) {
	return nil, nil
}
func (f *fakeCatalog) GetByIDs(_ context.Context, ids []int64) (map[int64]model.MovieRecord, error) {
	out := map[int64]model.MovieRecord{}
	for _, id := range ids {
		if m, ok := f.movies[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}
func (f *fakeCatalog) Count(context.Context) (int64, error) { return int64(len(f.movies)), nil }
func (f *fakeCatalog) Version(context.Context) (string, error) {
	f.versions++
	return "c1", nil
}
func (f *fakeCatalog) Close() error { return nil }

func newSearcher(t *testing.T, opts ...Option) (*Searcher, *fakeEmbedder, *fakeVectors) {
	t.Helper()
	cache, err := querycache.New[[]model.ScoredMovie]("semantic-test", 8)
	require.NoError(t, err)
	emb := &fakeEmbedder{}
	vec := &fakeVectors{
		version: "v1",
		results: []registryvector.VectorSearchResult{
			{MovieID: 1, Score: 0.91234},
			{MovieID: 99, Score: 0.8},
			{MovieID: 2, Score: 1.2},
		},
	}
	cat := &fakeCatalog{movies: map[int64]model.MovieRecord{
		1: {ID: 1, Title: "Heat"},
		2: {ID: 2, Title: "Thief"},
	}}
	return New(emb, vec, cat, cache, opts...), emb, vec
}

func TestSearch_ValidatesInput(t *testing.T) {
	s, emb, _ := newSearcher(t)
	ctx := context.Background()

	for _, k := range []int{0, -1, 51} {
		_, err := s.Search(ctx, "heist", k)
		var verr *registrystore.ValidationError
		require.ErrorAs(t, err, &verr, "k=%d", k)
		assert.Equal(t, "top_k", verr.Field)
	}

	_, err := s.Search(ctx, "   ", 5)
	var verr *registrystore.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "query_text", verr.Field)
	assert.Empty(t, emb.texts)
}

func TestSearch_HydratesAndSkipsUnknownMovies(t *testing.T) {
	s, _, vec := newSearcher(t)

	res, err := s.Search(context.Background(), "A Heist", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, vec.limits)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, "Heat", res.Movies[0].Title)
	assert.Equal(t, 0.912, res.Movies[0].Similarity)
	assert.Equal(t, 1.0, res.Hits[1].Similarity, "similarity is clamped to [0,1]")
	assert.Equal(t, "semantic", res.SearchType)
	assert.False(t, res.Cached)
}

func TestSearch_CachesByNormalizedText(t *testing.T) {
	s, emb, vec := newSearcher(t, WithVersionInterval(0))
	ctx := context.Background()

	_, err := s.Search(ctx, "a  heist movie", 2)
	require.NoError(t, err)
	res, err := s.Search(ctx, "  A HEIST movie ", 2)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, []string{"a heist movie"}, emb.texts)

	// A different k is a different key.
	_, err = s.Search(ctx, "a heist movie", 3)
	require.NoError(t, err)
	assert.Len(t, emb.texts, 2)

	// A new index version invalidates.
	vec.version = "v2"
	res, err = s.Search(ctx, "a heist movie", 2)
	require.NoError(t, err)
	assert.False(t, res.Cached)
}

func TestSearch_CacheHitsSkipVersionChecksWithinInterval(t *testing.T) {
	cache, err := querycache.New[[]model.ScoredMovie]("semantic-test", 8)
	require.NoError(t, err)
	vec := &fakeVectors{version: "v1", results: []registryvector.VectorSearchResult{{MovieID: 1, Score: 0.9}}}
	cat := &fakeCatalog{movies: map[int64]model.MovieRecord{1: {ID: 1, Title: "Heat"}}}
	s := New(&fakeEmbedder{}, vec, cat, cache, WithVersionInterval(time.Hour))

	for range 4 {
		_, err := s.Search(context.Background(), "heist", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, vec.versions)
	assert.Equal(t, 1, cat.versions)
	assert.Len(t, vec.limits, 1)
}

func TestSearch_EmbedderFailureIsUnavailableAndNotCached(t *testing.T) {
	s, emb, _ := newSearcher(t)
	emb.err = errors.New("connection refused")

	_, err := s.Search(context.Background(), "heist", 2)
	var uerr *registrystore.UnavailableError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "embedder", uerr.Backend)
	assert.Equal(t, 0, s.Cache().Len())
}

func TestSearch_Disabled(t *testing.T) {
	cache, err := querycache.New[[]model.ScoredMovie]("semantic-disabled", 1)
	require.NoError(t, err)
	s := New(nil, nil, &fakeCatalog{}, cache)
	assert.False(t, s.Enabled())

	_, err = s.Search(context.Background(), "heist", 2)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "space opera", NormalizeText("  Space \t OPERA\n"))
}
