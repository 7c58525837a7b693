package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/taskgate/taskgate/internal/log"
)

// FirestoreStorage implements Storage on Google Cloud Firestore.
//
// Marker expiry is enforced on read by comparing expires_at against the
// current time; stale documents are left for a Firestore TTL policy on the
// expires_at field to reclaim. Marker keys are already hashed by the caller,
// so they are safe to use as document IDs.
type FirestoreStorage struct {
	client            *firestore.Client
	markersCollection string
	todosCollection   string
}

// Ensure FirestoreStorage implements the Storage interface
var _ Storage = (*FirestoreStorage)(nil)

// markerDoc is the processed-code marker document
type markerDoc struct {
	Value     string `firestore:"value"`
	ExpiresAt int64  `firestore:"expires_at"` // Unix timestamp
}

// NewFirestoreStorage creates a Firestore-backed storage instance
func NewFirestoreStorage(ctx context.Context, projectID, databaseID string) (*FirestoreStorage, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Firestore storage initialized", map[string]any{
		"project":  projectID,
		"database": databaseID,
	})

	return &FirestoreStorage{
		client:            client,
		markersCollection: "taskgate_code_markers",
		todosCollection:   "taskgate_todos",
	}, nil
}

// PutMarker stores value under key with the given TTL
func (s *FirestoreStorage) PutMarker(ctx context.Context, key, value string, ttl time.Duration) error {
	doc := markerDoc{
		Value:     value,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	if _, err := s.client.Collection(s.markersCollection).Doc(key).Set(ctx, doc); err != nil {
		return fmt.Errorf("writing marker: %w", err)
	}
	return nil
}

// GetMarker returns the value for key unless the document has expired
func (s *FirestoreStorage) GetMarker(ctx context.Context, key string) (string, bool, error) {
	snap, err := s.client.Collection(s.markersCollection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading marker: %w", err)
	}

	var doc markerDoc
	if err := snap.DataTo(&doc); err != nil {
		return "", false, fmt.Errorf("decoding marker: %w", err)
	}
	if doc.ExpiresAt <= time.Now().Unix() {
		return "", false, nil
	}
	return doc.Value, true, nil
}

// CreateTodo stores a new todo
func (s *FirestoreStorage) CreateTodo(ctx context.Context, todo *Todo) error {
	if _, err := s.client.Collection(s.todosCollection).Doc(todo.ID).Create(ctx, todo); err != nil {
		return fmt.Errorf("creating todo: %w", err)
	}
	return nil
}

// ListTodos returns all todos owned by subject, oldest first. Sorting
// happens client-side to avoid requiring a composite index.
func (s *FirestoreStorage) ListTodos(ctx context.Context, subject string) ([]*Todo, error) {
	iter := s.client.Collection(s.todosCollection).
		Where("subject", "==", subject).
		Documents(ctx)
	defer iter.Stop()

	var todos []*Todo
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing todos: %w", err)
		}

		var todo Todo
		if err := snap.DataTo(&todo); err != nil {
			log.LogWarnWithFields("storage", "Skipping undecodable todo document", map[string]any{
				"doc":   snap.Ref.ID,
				"error": err.Error(),
			})
			continue
		}
		todos = append(todos, &todo)
	}

	sortTodos(todos)
	return todos, nil
}

// UpdateTodo applies the non-nil fields to the subject's todo
func (s *FirestoreStorage) UpdateTodo(ctx context.Context, subject, id string, text *string, completed *bool) (*Todo, error) {
	todo, err := s.getOwnedTodo(ctx, subject, id)
	if err != nil {
		return nil, err
	}

	if text != nil {
		todo.Text = *text
	}
	if completed != nil {
		todo.Completed = *completed
	}
	todo.UpdatedAt = time.Now()

	if _, err := s.client.Collection(s.todosCollection).Doc(id).Set(ctx, todo); err != nil {
		return nil, fmt.Errorf("updating todo: %w", err)
	}
	return todo, nil
}

// DeleteTodo removes the subject's todo
func (s *FirestoreStorage) DeleteTodo(ctx context.Context, subject, id string) error {
	if _, err := s.getOwnedTodo(ctx, subject, id); err != nil {
		return err
	}
	if _, err := s.client.Collection(s.todosCollection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("deleting todo: %w", err)
	}
	return nil
}

// getOwnedTodo fetches a todo and verifies ownership. Ownership failures
// report not-found so a subject cannot probe for other subjects' ids.
func (s *FirestoreStorage) getOwnedTodo(ctx context.Context, subject, id string) (*Todo, error) {
	snap, err := s.client.Collection(s.todosCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrTodoNotFound
		}
		return nil, fmt.Errorf("reading todo: %w", err)
	}

	var todo Todo
	if err := snap.DataTo(&todo); err != nil {
		return nil, fmt.Errorf("decoding todo: %w", err)
	}
	if todo.Subject != subject {
		return nil, ErrTodoNotFound
	}
	return &todo, nil
}

// Close releases the Firestore client
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
