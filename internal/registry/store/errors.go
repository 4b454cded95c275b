package store

import (
	"fmt"

	"github.com/chirino/movie-service/internal/model"
)

// NotFoundError indicates the resource was not found (or user lacks access).
// Absent and not-owned resources produce the same error.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates a client-side validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ConflictError indicates a state transition that is not allowed.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// NotActiveError is returned when a chat surface is used on an archived session.
type NotActiveError struct {
	ChatID string
	Status model.ChatStatus
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("chat %s is not active (status: %s)", e.ChatID, e.Status)
}

// UnavailableError wraps a transient failure reaching a backend.
type UnavailableError struct {
	Backend string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Backend, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// QueryError wraps a failure of the catalog store to evaluate a filter set.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("catalog query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
