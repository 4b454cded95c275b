package admin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chirino/movie-service/internal/convlock"
	"github.com/chirino/movie-service/internal/plugin/route/admin"
	"github.com/chirino/movie-service/internal/querycache"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill[V any](t *testing.T, c *querycache.Cache[V], keys ...string) {
	t.Helper()
	for _, k := range keys {
		_, _, err := c.GetOrLoad(context.Background(), "v1", k, func(context.Context) (V, error) {
			var zero V
			return zero, nil
		})
		require.NoError(t, err)
	}
}

func TestCacheClearAndStats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	queries, err := querycache.New[[]int]("query", 4)
	require.NoError(t, err)
	searches, err := querycache.New[string]("search", 4)
	require.NoError(t, err)
	fill(t, queries, "a", "b", "c")
	fill(t, searches, "x")

	r := gin.New()
	admin.MountRoutes(r, convlock.New(), queries, searches)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/cache/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Caches            []querycache.Stats `json:"caches"`
		ConversationLocks int                `json:"conversation_locks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Len(t, stats.Caches, 2)
	assert.Equal(t, 3, stats.Caches[0].Size)
	assert.Equal(t, uint64(3), stats.Caches[0].Misses)
	assert.Equal(t, 0, stats.ConversationLocks)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/admin/cache/clear?reason=reindex", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var cleared struct {
		ClearedEntries int            `json:"cleared_entries"`
		Caches         map[string]int `json:"caches"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cleared))
	assert.Equal(t, 4, cleared.ClearedEntries)
	assert.Equal(t, map[string]int{"query": 3, "search": 1}, cleared.Caches)
	assert.Zero(t, queries.Len())
	assert.Zero(t, searches.Len())
}
