// Package teststore holds behaviour tests shared by every durable store plugin.
package teststore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chirino/movie-service/internal/model"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a freshly migrated, empty store.
type Factory func(t *testing.T) (registrystore.Store, context.Context)

// Run exercises the SessionStore and ConversationStore contracts.
func Run(t *testing.T, newStore Factory) {
	t.Run("UserRoundTrip", func(t *testing.T) { testUserRoundTrip(t, newStore) })
	t.Run("ChatOwnershipScoped", func(t *testing.T) { testChatOwnershipScoped(t, newStore) })
	t.Run("UpdateStatus", func(t *testing.T) { testUpdateStatus(t, newStore) })
	t.Run("AppendAndListTurns", func(t *testing.T) { testAppendAndListTurns(t, newStore) })
	t.Run("ConcurrentThreads", func(t *testing.T) { testConcurrentThreads(t, newStore) })
	t.Run("Ping", func(t *testing.T) {
		store, ctx := newStore(t)
		assert.NoError(t, store.Ping(ctx))
	})
}

func testUserRoundTrip(t *testing.T, newStore Factory) {
	store, ctx := newStore(t)

	missing, err := store.GetUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	id, err := store.CreateUser(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	user, err := store.GetUser(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, id, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
}

func testChatOwnershipScoped(t *testing.T, newStore Factory) {
	store, ctx := newStore(t)

	owner, err := store.CreateUser(ctx)
	require.NoError(t, err)
	other, err := store.CreateUser(ctx)
	require.NoError(t, err)

	chatID, err := store.CreateChatSession(ctx, owner)
	require.NoError(t, err)

	chat, err := store.GetChatSession(ctx, chatID, owner)
	require.NoError(t, err)
	require.NotNil(t, chat)
	assert.Equal(t, owner, chat.UserID)
	assert.Equal(t, model.ChatStatusActive, chat.Status)

	foreign, err := store.GetChatSession(ctx, chatID, other)
	require.NoError(t, err)
	assert.Nil(t, foreign)
}

func testUpdateStatus(t *testing.T, newStore Factory) {
	store, ctx := newStore(t)

	owner, err := store.CreateUser(ctx)
	require.NoError(t, err)
	other, err := store.CreateUser(ctx)
	require.NoError(t, err)
	chatID, err := store.CreateChatSession(ctx, owner)
	require.NoError(t, err)

	changed, err := store.UpdateStatus(ctx, chatID, other, model.ChatStatusArchived)
	require.NoError(t, err)
	assert.False(t, changed, "status must not change through a non-owner")

	changed, err = store.UpdateStatus(ctx, chatID, owner, model.ChatStatusArchived)
	require.NoError(t, err)
	assert.True(t, changed)

	chat, err := store.GetChatSession(ctx, chatID, owner)
	require.NoError(t, err)
	assert.Equal(t, model.ChatStatusArchived, chat.Status)

	changed, err = store.UpdateStatus(ctx, "missing", owner, model.ChatStatusActive)
	require.NoError(t, err)
	assert.False(t, changed)
}

func testAppendAndListTurns(t *testing.T, newStore Factory) {
	store, ctx := newStore(t)

	empty, err := store.ListTurns(ctx, "thread-a")
	require.NoError(t, err)
	assert.Empty(t, empty)

	first, err := store.AppendTurns(ctx, "thread-a", []model.Turn{
		{Role: model.RoleUser, Content: "something like Heat"},
		{Role: model.RoleAssistant, Content: "Try Thief (1981)."},
	})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(1), first[0].Seq)
	assert.Equal(t, int64(2), first[1].Seq)

	_, err = store.AppendTurns(ctx, "thread-a", []model.Turn{{Role: model.RoleUser, Content: "more"}})
	require.NoError(t, err)

	turns, err := store.ListTurns(ctx, "thread-a")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	for i, turn := range turns {
		assert.Equal(t, int64(i+1), turn.Seq)
		assert.Equal(t, "thread-a", turn.ThreadID)
	}
	assert.Equal(t, model.RoleAssistant, turns[1].Role)
	assert.Equal(t, "more", turns[2].Content)

	other, err := store.ListTurns(ctx, "thread-b")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testConcurrentThreads(t *testing.T, newStore Factory) {
	store, ctx := newStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for _, thread := range []string{"t1", "t2", "t3", "t4"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 3 {
				if _, err := store.AppendTurns(ctx, thread, []model.Turn{{Role: model.RoleUser, Content: thread}}); err != nil {
					var conflict *registrystore.ConflictError
					if !errors.As(err, &conflict) {
						errs <- err
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	turns, err := store.ListTurns(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, turns, 3)
}
