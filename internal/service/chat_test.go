package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chirino/movie-service/internal/convlock"
	"github.com/chirino/movie-service/internal/model"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
	"github.com/chirino/movie-service/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	next  int
	users map[string]model.User
	chats map[string]model.ChatSession
	turns map[string][]model.Turn

	// afterChatRead runs once, right after the next chat session read.
	afterChatRead func()
}

func newMemStore() *memStore {
	return &memStore{
		users: map[string]model.User{},
		chats: map[string]model.ChatSession{},
		turns: map[string][]model.Turn{},
	}
}

func (m *memStore) id(prefix string) string {
	m.next++
	return fmt.Sprintf("%s-%d", prefix, m.next)
}

func (m *memStore) GetUser(_ context.Context, userID string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *memStore) CreateUser(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id("user")
	m.users[id] = model.User{ID: id, CreatedAt: time.Now()}
	return id, nil
}

func (m *memStore) GetChatSession(_ context.Context, chatID, userID string) (*model.ChatSession, error) {
	m.mu.Lock()
	c, ok := m.chats[chatID]
	hook := m.afterChatRead
	m.afterChatRead = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	if ok && c.UserID == userID {
		return &c, nil
	}
	return nil, nil
}

func (m *memStore) setStatus(chatID string, status model.ChatStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.chats[chatID]
	c.Status = status
	m.chats[chatID] = c
}

func (m *memStore) CreateChatSession(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id("chat")
	m.chats[id] = model.ChatSession{ID: id, UserID: userID, Status: model.ChatStatusActive}
	return id, nil
}

func (m *memStore) UpdateStatus(_ context.Context, chatID, userID string, status model.ChatStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok || c.UserID != userID {
		return false, nil
	}
	c.Status = status
	m.chats[chatID] = c
	return true, nil
}

func (m *memStore) AppendTurns(_ context.Context, threadID string, turns []model.Turn) ([]model.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tail := int64(len(m.turns[threadID]))
	out := make([]model.Turn, len(turns))
	for i, t := range turns {
		t.ThreadID = threadID
		t.Seq = tail + int64(i) + 1
		out[i] = t
	}
	m.turns[threadID] = append(m.turns[threadID], out...)
	return out, nil
}

func (m *memStore) ListTurns(_ context.Context, threadID string) ([]model.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Turn(nil), m.turns[threadID]...), nil
}

type echoAgent struct {
	mu       sync.Mutex
	err      error
	delay    time.Duration
	histLens []int
}

func (a *echoAgent) Reply(_ context.Context, history []model.Turn, message string) (string, error) {
	a.mu.Lock()
	a.histLens = append(a.histLens, len(history))
	err := a.err
	a.mu.Unlock()
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if err != nil {
		return "", err
	}
	return "re: " + message, nil
}
func (a *echoAgent) Ping(context.Context) error { return nil }
func (a *echoAgent) Name() string               { return "echo" }

func newChatService(t *testing.T) (*ChatService, *memStore, *echoAgent) {
	t.Helper()
	store := newMemStore()
	a := &echoAgent{}
	sessions := session.New(store, nil, session.Options{})
	return NewChatService(sessions, store, convlock.New(), a), store, a
}

func TestChat_NoIDsCreatesUserAndChat(t *testing.T) {
	svc, store, _ := newChatService(t)
	ctx := context.Background()

	resp, err := svc.Chat(ctx, ChatRequest{Message: "something like Heat"})
	require.NoError(t, err)
	assert.True(t, resp.IsNewUser)
	assert.True(t, resp.IsNewChat)
	assert.Equal(t, "re: something like Heat", resp.Reply)

	turns, _ := store.ListTurns(ctx, resp.ChatID)
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, model.RoleAssistant, turns[1].Role)
}

func TestChat_UserOnly(t *testing.T) {
	svc, store, _ := newChatService(t)
	ctx := context.Background()

	_, err := svc.Chat(ctx, ChatRequest{UserID: "ghost", Message: "hi"})
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "user", nf.Resource)

	userID, _ := store.CreateUser(ctx)
	resp, err := svc.Chat(ctx, ChatRequest{UserID: userID, Message: "hi"})
	require.NoError(t, err)
	assert.False(t, resp.IsNewUser)
	assert.True(t, resp.IsNewChat)
	assert.Equal(t, userID, resp.UserID)
}

func TestChat_ChatOnlyIsRejected(t *testing.T) {
	svc, _, _ := newChatService(t)
	_, err := svc.Chat(context.Background(), ChatRequest{ChatID: "chat-1", Message: "hi"})
	var verr *registrystore.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "user_id", verr.Field)
}

func TestChat_BothIDsContinuesConversation(t *testing.T) {
	svc, _, a := newChatService(t)
	ctx := context.Background()

	first, err := svc.Chat(ctx, ChatRequest{Message: "one"})
	require.NoError(t, err)
	second, err := svc.Chat(ctx, ChatRequest{UserID: first.UserID, ChatID: first.ChatID, Message: "two"})
	require.NoError(t, err)
	assert.False(t, second.IsNewUser)
	assert.False(t, second.IsNewChat)
	assert.Equal(t, []int{0, 2}, a.histLens)

	_, err = svc.Chat(ctx, ChatRequest{UserID: "someone-else", ChatID: first.ChatID, Message: "x"})
	var nf *registrystore.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestChat_ArchivedChatRejectsMessages(t *testing.T) {
	svc, _, _ := newChatService(t)
	ctx := context.Background()

	first, err := svc.Chat(ctx, ChatRequest{Message: "one"})
	require.NoError(t, err)
	_, err = svc.Archive(ctx, first.UserID, first.ChatID)
	require.NoError(t, err)

	_, err = svc.Chat(ctx, ChatRequest{UserID: first.UserID, ChatID: first.ChatID, Message: "two"})
	var na *registrystore.NotActiveError
	require.ErrorAs(t, err, &na)
	assert.Equal(t, model.ChatStatusArchived, na.Status)

	_, err = svc.History(ctx, first.UserID, first.ChatID)
	assert.ErrorAs(t, err, &na)
}

func TestChat_ArchiveAfterStatusCheckRejectsMessage(t *testing.T) {
	svc, store, a := newChatService(t)
	ctx := context.Background()
	first, err := svc.Chat(ctx, ChatRequest{Message: "one"})
	require.NoError(t, err)

	// The chat is archived right after the pre-lock status read.
	store.mu.Lock()
	store.afterChatRead = func() { store.setStatus(first.ChatID, model.ChatStatusArchived) }
	store.mu.Unlock()

	_, err = svc.Chat(ctx, ChatRequest{UserID: first.UserID, ChatID: first.ChatID, Message: "two"})
	var na *registrystore.NotActiveError
	require.ErrorAs(t, err, &na)
	assert.Equal(t, model.ChatStatusArchived, na.Status)

	turns, _ := store.ListTurns(ctx, first.ChatID)
	assert.Len(t, turns, 2)
	assert.Equal(t, []int{0}, a.histLens)
}

func TestArchive_WaitsForInFlightExchange(t *testing.T) {
	svc, _, _ := newChatService(t)
	ctx := context.Background()
	first, err := svc.Chat(ctx, ChatRequest{Message: "one"})
	require.NoError(t, err)

	release, err := svc.locks.Acquire(ctx, first.ChatID)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Archive(ctx, first.UserID, first.ChatID)
		done <- err
	}()
	select {
	case <-done:
		t.Fatal("archive completed while the conversation lock was held")
	case <-time.After(30 * time.Millisecond):
	}

	release()
	require.NoError(t, <-done)
}

func TestChat_EmptyMessage(t *testing.T) {
	svc, _, _ := newChatService(t)
	_, err := svc.Chat(context.Background(), ChatRequest{Message: "   "})
	var verr *registrystore.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "message", verr.Field)
}

func TestChat_AgentFailureAppendsNothing(t *testing.T) {
	svc, store, a := newChatService(t)
	ctx := context.Background()

	first, err := svc.Chat(ctx, ChatRequest{Message: "one"})
	require.NoError(t, err)

	a.err = errors.New("model offline")
	_, err = svc.Chat(ctx, ChatRequest{UserID: first.UserID, ChatID: first.ChatID, Message: "two"})
	var uerr *registrystore.UnavailableError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "agent", uerr.Backend)

	turns, _ := store.ListTurns(ctx, first.ChatID)
	assert.Len(t, turns, 2)
}

func TestChat_ConcurrentMessagesDoNotInterleave(t *testing.T) {
	svc, store, a := newChatService(t)
	ctx := context.Background()
	first, err := svc.Chat(ctx, ChatRequest{Message: "start"})
	require.NoError(t, err)
	a.delay = 5 * time.Millisecond

	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Chat(ctx, ChatRequest{UserID: first.UserID, ChatID: first.ChatID, Message: fmt.Sprintf("m%d", i)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	turns, _ := store.ListTurns(ctx, first.ChatID)
	require.Len(t, turns, 12)
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, model.RoleUser, turns[i].Role)
		assert.Equal(t, model.RoleAssistant, turns[i+1].Role)
		assert.Equal(t, "re: "+turns[i].Content, turns[i+1].Content)
	}
	// Each agent call saw every earlier exchange.
	assert.ElementsMatch(t, []int{0, 2, 4, 6, 8, 10}, a.histLens)
}

func TestArchiveUnarchive(t *testing.T) {
	svc, _, _ := newChatService(t)
	ctx := context.Background()
	first, err := svc.Chat(ctx, ChatRequest{Message: "one"})
	require.NoError(t, err)

	resp, err := svc.Archive(ctx, first.UserID, first.ChatID)
	require.NoError(t, err)
	assert.Equal(t, model.ChatStatusArchived, resp.Status)

	_, err = svc.Archive(ctx, first.UserID, first.ChatID)
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)

	resp, err = svc.Unarchive(ctx, first.UserID, first.ChatID)
	require.NoError(t, err)
	assert.Equal(t, model.ChatStatusActive, resp.Status)

	hist, err := svc.History(ctx, first.UserID, first.ChatID)
	require.NoError(t, err)
	assert.Len(t, hist.ConversationHistory, 2)

	_, err = svc.Archive(ctx, "intruder", first.ChatID)
	var nf *registrystore.NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = svc.Unarchive(ctx, "", first.ChatID)
	var verr *registrystore.ValidationError
	assert.ErrorAs(t, err, &verr)
}
