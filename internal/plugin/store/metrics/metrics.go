package metrics

import (
	"context"
	"time"

	"github.com/chirino/movie-service/internal/model"
	"github.com/chirino/movie-service/internal/monitoring"
	"github.com/chirino/movie-service/internal/registry/store"
)

// Wrap returns a Store that records StoreLatency for every operation.
func Wrap(inner store.Store) store.Store {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.Store
}

func observe(op string, start time.Time) {
	if monitoring.StoreLatency == nil {
		return
	}
	monitoring.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	defer observe("get_user", time.Now())
	return m.inner.GetUser(ctx, userID)
}

func (m *metricsStore) CreateUser(ctx context.Context) (string, error) {
	defer observe("create_user", time.Now())
	return m.inner.CreateUser(ctx)
}

func (m *metricsStore) GetChatSession(ctx context.Context, chatID, userID string) (*model.ChatSession, error) {
	defer observe("get_chat_session", time.Now())
	return m.inner.GetChatSession(ctx, chatID, userID)
}

func (m *metricsStore) CreateChatSession(ctx context.Context, userID string) (string, error) {
	defer observe("create_chat_session", time.Now())
	return m.inner.CreateChatSession(ctx, userID)
}

func (m *metricsStore) UpdateStatus(ctx context.Context, chatID, userID string, status model.ChatStatus) (bool, error) {
	defer observe("update_status", time.Now())
	return m.inner.UpdateStatus(ctx, chatID, userID, status)
}

func (m *metricsStore) AppendTurns(ctx context.Context, threadID string, turns []model.Turn) ([]model.Turn, error) {
	defer observe("append_turns", time.Now())
	return m.inner.AppendTurns(ctx, threadID, turns)
}

func (m *metricsStore) ListTurns(ctx context.Context, threadID string) ([]model.Turn, error) {
	defer observe("list_turns", time.Now())
	return m.inner.ListTurns(ctx, threadID)
}

func (m *metricsStore) Ping(ctx context.Context) error {
	return m.inner.Ping(ctx)
}

func (m *metricsStore) Close() error {
	return m.inner.Close()
}
