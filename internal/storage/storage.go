package storage

import (
	"context"
	"errors"
	"time"
)

// ErrTodoNotFound is returned when a todo doesn't exist or belongs to
// another subject
var ErrTodoNotFound = errors.New("todo not found")

// Todo is a single TODO item owned by a subject
type Todo struct {
	ID        string    `json:"id" firestore:"id"`
	Subject   string    `json:"-" firestore:"subject"`
	Text      string    `json:"text" firestore:"text"`
	Completed bool      `json:"completed" firestore:"completed"`
	CreatedAt time.Time `json:"createdAt" firestore:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updated_at"`
}

// MarkerStore is a TTL-aware key-value store used as the cross-request
// coordination point for one-time authorization codes. Markers expire on
// their own; nothing deletes them explicitly.
//
// GetMarker followed by PutMarker is not atomic. Two concurrent exchanges
// for the same code can both miss the marker and both proceed; the upstream
// authorization server is the final arbiter since it rejects the second use
// of a one-time code. This window is accepted, see the exchange flow in
// internal/auth.
type MarkerStore interface {
	// PutMarker stores value under key with the given TTL
	PutMarker(ctx context.Context, key, value string, ttl time.Duration) error

	// GetMarker returns the value for key, or ok=false when the key is
	// absent or its TTL has lapsed
	GetMarker(ctx context.Context, key string) (value string, ok bool, err error)
}

// TodoStore persists per-subject TODO items. Subjects only ever see their
// own todos; every operation is scoped by subject.
type TodoStore interface {
	CreateTodo(ctx context.Context, todo *Todo) error
	ListTodos(ctx context.Context, subject string) ([]*Todo, error)
	UpdateTodo(ctx context.Context, subject, id string, text *string, completed *bool) (*Todo, error)
	DeleteTodo(ctx context.Context, subject, id string) error
}

// Storage combines all storage capabilities needed by taskgate
type Storage interface {
	MarkerStore
	TodoStore

	// Close releases backend resources
	Close() error
}
