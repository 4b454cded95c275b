package model

import "time"

// ChatStatus is the lifecycle state of a chat session.
type ChatStatus string

const (
	ChatStatusActive   ChatStatus = "active"
	ChatStatusArchived ChatStatus = "archived"
)

// ParseChatStatus returns the ChatStatus named by s.
func ParseChatStatus(s string) (ChatStatus, bool) {
	switch ChatStatus(s) {
	case ChatStatusActive:
		return ChatStatusActive, true
	case ChatStatusArchived:
		return ChatStatusArchived, true
	default:
		return "", false
	}
}

// Valid reports whether s is one of the known statuses.
func (s ChatStatus) Valid() bool {
	_, ok := ParseChatStatus(string(s))
	return ok
}

// CanTransitionTo reports whether a session in status s may move to next.
// The only transitions are active to archived and archived to active.
func (s ChatStatus) CanTransitionTo(next ChatStatus) bool {
	switch s {
	case ChatStatusActive:
		return next == ChatStatusArchived
	case ChatStatusArchived:
		return next == ChatStatusActive
	default:
		return false
	}
}

// User is a chat participant. Users are created once and never mutated.
type User struct {
	ID        string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSession is a single conversation owned by one user.
type ChatSession struct {
	ID        string     `json:"chat_id"`
	UserID    string     `json:"user_id"`
	Status    ChatStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
