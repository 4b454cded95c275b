package chat_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/chirino/movie-service/internal/config"
	"github.com/chirino/movie-service/internal/convlock"
	"github.com/chirino/movie-service/internal/model"
	"github.com/chirino/movie-service/internal/plugin/cache/memory"
	"github.com/chirino/movie-service/internal/plugin/route/chat"
	"github.com/chirino/movie-service/internal/plugin/store/sqlite"
	registrymigrate "github.com/chirino/movie-service/internal/registry/migrate"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
	"github.com/chirino/movie-service/internal/service"
	"github.com/chirino/movie-service/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoAgent struct{}

func (echoAgent) Reply(_ context.Context, history []model.Turn, message string) (string, error) {
	return "echo: " + message, nil
}
func (echoAgent) Ping(context.Context) error { return nil }
func (echoAgent) Name() string               { return "echo" }

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.DBURL = filepath.Join(t.TempDir(), "sessions.db")
	ctx := config.WithContext(context.Background(), &cfg)

	_ = sqlite.ForceImport
	require.NoError(t, registrymigrate.RunAll(ctx))
	loader, err := registrystore.Select("sqlite")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cache, err := memory.New(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	chats := service.NewChatService(session.New(store, cache, session.Options{}), store, convlock.New(), echoAgent{})
	r := gin.New()
	chat.MountRoutes(r, chats)
	return r
}

func post(t *testing.T, r http.Handler, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func TestChatLifecycle(t *testing.T) {
	r := newRouter(t)

	w, first := post(t, r, "/chat", map[string]any{"message": "something like Heat"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "echo: something like Heat", first["reply"])
	assert.Equal(t, true, first["is_new_user"])
	assert.Equal(t, true, first["is_new_chat"])
	ref := map[string]any{"user_id": first["user_id"], "chat_id": first["chat_id"]}

	w, second := post(t, r, "/chat", map[string]any{"user_id": ref["user_id"], "chat_id": ref["chat_id"], "message": "older please"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, second["is_new_chat"])

	w, history := post(t, r, "/chat/history", ref)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, history["conversation_history"], 4)

	w, archived := post(t, r, "/chat/archive", ref)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "archived", archived["status"])

	w, body := post(t, r, "/chat", map[string]any{"user_id": ref["user_id"], "chat_id": ref["chat_id"], "message": "hello?"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "chat_not_active", body["code"])

	w, body = post(t, r, "/chat/archive", ref)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", body["code"])

	w, _ = post(t, r, "/chat/unarchive", ref)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChatErrors(t *testing.T) {
	r := newRouter(t)

	w, body := post(t, r, "/chat", map[string]any{"chat_id": "c1", "message": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "user_id", body["field"])

	w, body = post(t, r, "/chat", map[string]any{"user_id": "ghost", "message": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body["code"])

	w, _ = post(t, r, "/chat", map[string]any{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = post(t, r, "/chat/history", map[string]any{"user_id": "ghost", "chat_id": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
