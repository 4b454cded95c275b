package store

import (
	"context"
	"fmt"

	"github.com/chirino/movie-service/internal/model"
)

// SessionStore is the durable owner of users and chat sessions.
type SessionStore interface {
	// GetUser returns the user or nil when no user has the id.
	GetUser(ctx context.Context, userID string) (*model.User, error)
	// CreateUser persists a new user and returns its id.
	CreateUser(ctx context.Context) (string, error)
	// GetChatSession returns the session with chatID owned by userID, or nil.
	// Ownership is part of the lookup, so a session owned by someone else is
	// indistinguishable from a missing one.
	GetChatSession(ctx context.Context, chatID, userID string) (*model.ChatSession, error)
	// CreateChatSession persists a new active session for userID.
	CreateChatSession(ctx context.Context, userID string) (string, error)
	// UpdateStatus sets the status of the session scoped by both ids and
	// reports whether a row was changed.
	UpdateStatus(ctx context.Context, chatID, userID string, status model.ChatStatus) (bool, error)
}

// ConversationStore is the append-only turn log keyed by thread id.
type ConversationStore interface {
	// AppendTurns appends turns to the thread, assigning consecutive sequence
	// numbers after the current tail.
	AppendTurns(ctx context.Context, threadID string, turns []model.Turn) ([]model.Turn, error)
	// ListTurns returns the thread's turns in sequence order.
	ListTurns(ctx context.Context, threadID string) ([]model.Turn, error)
}

// Store bundles the durable stores served by one backend.
type Store interface {
	SessionStore
	ConversationStore
	Ping(ctx context.Context) error
	Close() error
}

// Loader creates a store from config.
type Loader func(ctx context.Context) (Store, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
