package movies_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chirino/movie-service/internal/catalog"
	"github.com/chirino/movie-service/internal/model"
	"github.com/chirino/movie-service/internal/plugin/embed/local"
	"github.com/chirino/movie-service/internal/plugin/route/movies"
	"github.com/chirino/movie-service/internal/plugin/vector/chromem"
	"github.com/chirino/movie-service/internal/querycache"
	registrycatalog "github.com/chirino/movie-service/internal/registry/catalog"
	"github.com/chirino/movie-service/internal/semantic"
	"github.com/chirino/movie-service/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCatalog struct{ movies []model.MovieRecord }

func (c *memCatalog) Scan(context.Context, registrycatalog.BaseFilter) ([]model.MovieRecord, error) {
	return c.movies, nil
}
func (c *memCatalog) GetByIDs(_ context.Context, ids []int64) (map[int64]model.MovieRecord, error) {
	out := map[int64]model.MovieRecord{}
	for _, m := range c.movies {
		for _, id := range ids {
			if m.ID == id {
				out[id] = m
			}
		}
	}
	return out, nil
}
func (c *memCatalog) Count(context.Context) (int64, error)    { return int64(len(c.movies)), nil }
func (c *memCatalog) Version(context.Context) (string, error) { return "v1", nil }
func (c *memCatalog) Close() error                            { return nil }

var films = []model.MovieRecord{
	{ID: 1, Title: "Heat", Year: 1995, Genres: []string{"Crime", "Thriller"}, Rating: 8.3,
		Overview: "A crew of professional bank robbers is hunted by a driven detective.", Keywords: []string{"heist", "robbery"}},
	{ID: 2, Title: "Thief", Year: 1981, Genres: []string{"Crime"}, Rating: 7.4,
		Overview: "An expert safecracker takes one last heist.", Keywords: []string{"heist", "safecracker"}},
	{ID: 3, Title: "Amelie", Year: 2001, Genres: []string{"Romance", "Comedy"}, Rating: 7.9,
		Overview: "A shy waitress in Paris decides to change the lives of those around her.", Keywords: []string{"paris"}},
}

func newRouter(t *testing.T, withVectors bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	cat := &memCatalog{movies: films}

	queryCache, err := querycache.New[[]model.MovieRecord]("query", 8)
	require.NoError(t, err)
	searchCache, err := querycache.New[[]model.ScoredMovie]("search", 8)
	require.NoError(t, err)

	searcher := semantic.New(nil, nil, cat, searchCache)
	if withVectors {
		vectors, err := chromem.Open("")
		require.NoError(t, err)
		embedder := &local.LocalEmbedder{}
		_, err = service.NewIndexer(cat, embedder, vectors, 2).RunOnce(ctx)
		require.NoError(t, err)
		searcher = semantic.New(embedder, vectors, cat, searchCache)
	}

	r := gin.New()
	movies.MountRoutes(r, catalog.NewEngine(cat, queryCache), searcher, 2)
	return r
}

func post(t *testing.T, r http.Handler, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func TestQuery(t *testing.T) {
	r := newRouter(t, false)

	status, body := post(t, r, "/v1/movies/query", `{"genre":"crime, thriller","order_by":"rating"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 2, body["count"])
	assert.Equal(t, false, body["cached"])
	results := body["results"].([]any)
	assert.Equal(t, "Heat", results[0].(map[string]any)["title"])

	status, body = post(t, r, "/v1/movies/query", `{"genre":["Thriller","Crime"],"order_by":"RATING"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["cached"])

	status, body = post(t, r, "/v1/movies/query", ``)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 3, body["count"])

	status, body = post(t, r, "/v1/movies/query", `{"limit":500}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "limit", body["field"])

	status, _ = post(t, r, "/v1/movies/query", `{"year":"soon"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSearch(t *testing.T) {
	r := newRouter(t, true)

	status, body := post(t, r, "/v1/movies/search", `{"query_text":"bank heist robbers"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "semantic", body["search_type"])
	assert.EqualValues(t, 2, body["count"])
	first := body["movies"].([]any)[0].(map[string]any)
	assert.NotEqual(t, "Amelie", first["title"])

	status, body = post(t, r, "/v1/movies/search", `{"query_text":"  Bank HEIST robbers ","top_k":2}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["cached"])

	status, body = post(t, r, "/v1/movies/search", `{"query_text":"heist","top_k":51}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "top_k", body["field"])

	status, _ = post(t, r, "/v1/movies/search", `{"query_text":""}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSearch_Disabled(t *testing.T) {
	r := newRouter(t, false)

	status, body := post(t, r, "/v1/movies/search", `{"query_text":"heist"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "unavailable", body["code"])
}
