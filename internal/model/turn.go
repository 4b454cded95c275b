package model

import "time"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a conversation's append-only log. Seq is strictly
// increasing within a thread.
type Turn struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Seq       int64     `json:"seq"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
