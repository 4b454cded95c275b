// Package session resolves user identity and validates chat ownership and
// status, reading through a fast expiring cache in front of the durable
// session store.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/model"
	"github.com/chirino/movie-service/internal/monitoring"
	registrycache "github.com/chirino/movie-service/internal/registry/cache"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
)

const (
	DefaultUserTTL     = time.Hour
	DefaultChatPairTTL = 15 * time.Minute

	userPresent = "1"
)

// UserKey is the fast-cache key recording that a user exists.
func UserKey(userID string) string {
	return "user:" + userID
}

// ChatPairKey is the fast-cache key holding the status of a chat owned by a user.
func ChatPairKey(userID, chatID string) string {
	return fmt.Sprintf("chat_pair:%s:%s", userID, chatID)
}

// Options tunes cache lifetimes. Zero values select the defaults.
type Options struct {
	UserTTL     time.Duration
	ChatPairTTL time.Duration
}

// Layer is the cache-aside view of users and chat sessions. Staleness of a
// cached answer is bounded by the corresponding TTL.
type Layer struct {
	store   registrystore.SessionStore
	cache   failOpenCache
	userTTL time.Duration
	pairTTL time.Duration
}

// New returns a Layer over store. cache may be nil, in which case every read
// goes to the store.
func New(store registrystore.SessionStore, cache registrycache.FastCache, opts Options) *Layer {
	if opts.UserTTL <= 0 {
		opts.UserTTL = DefaultUserTTL
	}
	if opts.ChatPairTTL <= 0 {
		opts.ChatPairTTL = DefaultChatPairTTL
	}
	return &Layer{
		store:   store,
		cache:   failOpenCache{inner: cache},
		userTTL: opts.UserTTL,
		pairTTL: opts.ChatPairTTL,
	}
}

// ResolveOrCreateUser returns userID when the user exists, or creates a new
// user when userID is empty. The second result reports whether a user was
// created. An unknown userID is a NotFoundError; no user is fabricated for it.
func (l *Layer) ResolveOrCreateUser(ctx context.Context, userID string) (string, bool, error) {
	if userID == "" {
		id, err := l.store.CreateUser(ctx)
		if err != nil {
			return "", false, fmt.Errorf("create user: %w", err)
		}
		l.cache.set(ctx, UserKey(id), userPresent, l.userTTL)
		log.Info("Created user", "userId", id)
		return id, true, nil
	}

	if _, ok := l.cache.get(ctx, UserKey(userID)); ok {
		monitoring.RecordSessionCache("user", true)
		return userID, false, nil
	}
	monitoring.RecordSessionCache("user", false)

	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return "", false, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return "", false, &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	l.cache.set(ctx, UserKey(userID), userPresent, l.userTTL)
	return userID, false, nil
}

// CreateChat opens a new active chat for an existing user.
func (l *Layer) CreateChat(ctx context.Context, userID string) (string, error) {
	chatID, err := l.store.CreateChatSession(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}
	l.cache.set(ctx, ChatPairKey(userID, chatID), string(model.ChatStatusActive), l.pairTTL)
	return chatID, nil
}

// ValidateChatPair returns the status of chatID when userID owns it. A chat
// that does not exist and a chat owned by another user both yield the same
// NotFoundError.
func (l *Layer) ValidateChatPair(ctx context.Context, userID, chatID string) (model.ChatStatus, error) {
	key := ChatPairKey(userID, chatID)
	if raw, ok := l.cache.get(ctx, key); ok {
		if status, valid := model.ParseChatStatus(raw); valid {
			monitoring.RecordSessionCache("chat_pair", true)
			return status, nil
		}
		log.Warn("Ignoring unparseable cached chat status", "key", key, "value", raw)
	}
	monitoring.RecordSessionCache("chat_pair", false)

	chat, err := l.store.GetChatSession(ctx, chatID, userID)
	if err != nil {
		return "", fmt.Errorf("get chat: %w", err)
	}
	if chat == nil {
		return "", &registrystore.NotFoundError{Resource: "chat", ID: chatID}
	}
	l.cache.set(ctx, key, string(chat.Status), l.pairTTL)
	return chat.Status, nil
}

// SetStatus moves the chat to status and reports whether a session owned by
// userID was changed. On change the cached status is overwritten so reads
// within the TTL see the new value; if that write fails the entry is evicted
// instead. false is not an error.
func (l *Layer) SetStatus(ctx context.Context, chatID, userID string, status model.ChatStatus) (bool, error) {
	if !status.Valid() {
		return false, &registrystore.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	changed, err := l.store.UpdateStatus(ctx, chatID, userID, status)
	if err != nil {
		return false, fmt.Errorf("update chat status: %w", err)
	}
	if !changed {
		return false, nil
	}
	key := ChatPairKey(userID, chatID)
	if !l.cache.set(ctx, key, string(status), l.pairTTL) && !l.cache.delete(ctx, key) {
		log.Error("Cached chat status may be stale until its TTL expires", "chatId", chatID, "userId", userID, "ttl", l.pairTTL)
	}
	log.Info("Chat status changed", "chatId", chatID, "userId", userID, "status", status)
	return true, nil
}

// Forget drops any cached state for the pair.
func (l *Layer) Forget(ctx context.Context, userID, chatID string) {
	l.cache.delete(ctx, ChatPairKey(userID, chatID))
}
