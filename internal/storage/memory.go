package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Ensure MemoryStorage implements the Storage interface
var _ Storage = (*MemoryStorage)(nil)

type markerEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStorage is the in-memory backend. Markers are expired lazily on
// read; todos live for the process lifetime.
type MemoryStorage struct {
	markersMutex sync.RWMutex
	markers      map[string]markerEntry

	todosMutex sync.RWMutex
	todos      map[string]*Todo // map[id] = todo

	// now is swappable for TTL tests
	now func() time.Time
}

// NewMemoryStorage creates a new in-memory storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		markers: make(map[string]markerEntry),
		todos:   make(map[string]*Todo),
		now:     time.Now,
	}
}

// PutMarker stores value under key with the given TTL
func (s *MemoryStorage) PutMarker(_ context.Context, key, value string, ttl time.Duration) error {
	s.markersMutex.Lock()
	defer s.markersMutex.Unlock()

	s.markers[key] = markerEntry{
		value:     value,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// GetMarker returns the value for key unless the entry has expired
func (s *MemoryStorage) GetMarker(_ context.Context, key string) (string, bool, error) {
	s.markersMutex.RLock()
	entry, exists := s.markers[key]
	s.markersMutex.RUnlock()

	if !exists {
		return "", false, nil
	}
	if s.now().After(entry.expiresAt) {
		// Expired entries are reclaimed on the read that notices them
		s.markersMutex.Lock()
		if current, ok := s.markers[key]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(s.markers, key)
		}
		s.markersMutex.Unlock()
		return "", false, nil
	}
	return entry.value, true, nil
}

// CreateTodo stores a new todo
func (s *MemoryStorage) CreateTodo(_ context.Context, todo *Todo) error {
	s.todosMutex.Lock()
	defer s.todosMutex.Unlock()

	copied := *todo
	s.todos[todo.ID] = &copied
	return nil
}

// ListTodos returns all todos owned by subject, oldest first
func (s *MemoryStorage) ListTodos(_ context.Context, subject string) ([]*Todo, error) {
	s.todosMutex.RLock()
	defer s.todosMutex.RUnlock()

	var result []*Todo
	for _, todo := range s.todos {
		if todo.Subject == subject {
			copied := *todo
			result = append(result, &copied)
		}
	}
	sortTodos(result)
	return result, nil
}

// UpdateTodo applies the non-nil fields to the subject's todo
func (s *MemoryStorage) UpdateTodo(_ context.Context, subject, id string, text *string, completed *bool) (*Todo, error) {
	s.todosMutex.Lock()
	defer s.todosMutex.Unlock()

	todo, exists := s.todos[id]
	if !exists || todo.Subject != subject {
		return nil, ErrTodoNotFound
	}
	if text != nil {
		todo.Text = *text
	}
	if completed != nil {
		todo.Completed = *completed
	}
	todo.UpdatedAt = s.now()

	copied := *todo
	return &copied, nil
}

// DeleteTodo removes the subject's todo
func (s *MemoryStorage) DeleteTodo(_ context.Context, subject, id string) error {
	s.todosMutex.Lock()
	defer s.todosMutex.Unlock()

	todo, exists := s.todos[id]
	if !exists || todo.Subject != subject {
		return ErrTodoNotFound
	}
	delete(s.todos, id)
	return nil
}

// Close is a no-op for the memory backend
func (s *MemoryStorage) Close() error {
	return nil
}

func sortTodos(todos []*Todo) {
	sort.Slice(todos, func(i, j int) bool {
		return todos[i].CreatedAt.Before(todos[j].CreatedAt)
	})
}
