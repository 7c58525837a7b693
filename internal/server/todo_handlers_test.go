package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgate/taskgate/internal/authctx"
	"github.com/taskgate/taskgate/internal/storage"
)

func todoRequestAs(t *testing.T, subject, method, target, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(authctx.WithSubject(req.Context(), subject))
}

func decodeTodo(t *testing.T, body string) *storage.Todo {
	t.Helper()
	var todo storage.Todo
	require.NoError(t, json.Unmarshal([]byte(body), &todo))
	return &todo
}

func TestTodoCreateAndList(t *testing.T) {
	handlers := NewTodoHandlers(storage.NewMemoryStorage())

	rec := httptest.NewRecorder()
	handlers.CreateHandler(rec, todoRequestAs(t, "user-1", http.MethodPost, "/api/todos", `{"text":"  buy milk  "}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeTodo(t, rec.Body.String())
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "buy milk", created.Text, "text is trimmed")
	assert.False(t, created.Completed)

	rec = httptest.NewRecorder()
	handlers.ListHandler(rec, todoRequestAs(t, "user-1", http.MethodGet, "/api/todos", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Todos []*storage.Todo `json:"todos"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Todos, 1)
	assert.Equal(t, created.ID, listed.Todos[0].ID)
}

func TestTodoListEmpty(t *testing.T) {
	handlers := NewTodoHandlers(storage.NewMemoryStorage())

	rec := httptest.NewRecorder()
	handlers.ListHandler(rec, todoRequestAs(t, "user-1", http.MethodGet, "/api/todos", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"todos":[]}`, rec.Body.String())
}

func TestTodoCreateMissingText(t *testing.T) {
	handlers := NewTodoHandlers(storage.NewMemoryStorage())

	for _, body := range []string{"", "{}", `{"text":""}`, `{"text":"   "}`} {
		rec := httptest.NewRecorder()
		handlers.CreateHandler(rec, todoRequestAs(t, "user-1", http.MethodPost, "/api/todos", body))

		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.JSONEq(t, `{"error":"Missing todo text"}`, rec.Body.String())
	}
}

func TestTodoUpdate(t *testing.T) {
	store := storage.NewMemoryStorage()
	handlers := NewTodoHandlers(store)

	rec := httptest.NewRecorder()
	handlers.CreateHandler(rec, todoRequestAs(t, "user-1", http.MethodPost, "/api/todos", `{"text":"buy milk"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeTodo(t, rec.Body.String()).ID

	req := todoRequestAs(t, "user-1", http.MethodPut, "/api/todos/"+id, `{"completed":true}`)
	req.SetPathValue("id", id)

	rec = httptest.NewRecorder()
	handlers.UpdateHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeTodo(t, rec.Body.String())
	assert.True(t, updated.Completed)
	assert.Equal(t, "buy milk", updated.Text)
}

func TestTodoUpdateNothingToUpdate(t *testing.T) {
	handlers := NewTodoHandlers(storage.NewMemoryStorage())

	req := todoRequestAs(t, "user-1", http.MethodPut, "/api/todos/some-id", `{}`)
	req.SetPathValue("id", "some-id")

	rec := httptest.NewRecorder()
	handlers.UpdateHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Nothing to update"}`, rec.Body.String())
}

func TestTodoUpdateNotFound(t *testing.T) {
	handlers := NewTodoHandlers(storage.NewMemoryStorage())

	req := todoRequestAs(t, "user-1", http.MethodPut, "/api/todos/missing", `{"completed":true}`)
	req.SetPathValue("id", "missing")

	rec := httptest.NewRecorder()
	handlers.UpdateHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Todo not found"}`, rec.Body.String())
}

func TestTodoDelete(t *testing.T) {
	handlers := NewTodoHandlers(storage.NewMemoryStorage())

	rec := httptest.NewRecorder()
	handlers.CreateHandler(rec, todoRequestAs(t, "user-1", http.MethodPost, "/api/todos", `{"text":"buy milk"}`))
	id := decodeTodo(t, rec.Body.String()).ID

	req := todoRequestAs(t, "user-1", http.MethodDelete, "/api/todos/"+id, "")
	req.SetPathValue("id", id)

	rec = httptest.NewRecorder()
	handlers.DeleteHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handlers.ListHandler(rec, todoRequestAs(t, "user-1", http.MethodGet, "/api/todos", ""))
	assert.JSONEq(t, `{"todos":[]}`, rec.Body.String())
}

func TestTodoSubjectScoping(t *testing.T) {
	store := storage.NewMemoryStorage()
	handlers := NewTodoHandlers(store)

	rec := httptest.NewRecorder()
	handlers.CreateHandler(rec, todoRequestAs(t, "alice", http.MethodPost, "/api/todos", `{"text":"alice's todo"}`))
	id := decodeTodo(t, rec.Body.String()).ID

	// Another subject cannot see or touch it
	rec = httptest.NewRecorder()
	handlers.ListHandler(rec, todoRequestAs(t, "bob", http.MethodGet, "/api/todos", ""))
	assert.JSONEq(t, `{"todos":[]}`, rec.Body.String())

	req := todoRequestAs(t, "bob", http.MethodDelete, "/api/todos/"+id, "")
	req.SetPathValue("id", id)
	rec = httptest.NewRecorder()
	handlers.DeleteHandler(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTodoHandlersRequireSubject(t *testing.T) {
	handlers := NewTodoHandlers(storage.NewMemoryStorage())

	tests := []struct {
		name    string
		handler http.HandlerFunc
		method  string
	}{
		{"list", handlers.ListHandler, http.MethodGet},
		{"create", handlers.CreateHandler, http.MethodPost},
		{"update", handlers.UpdateHandler, http.MethodPut},
		{"delete", handlers.DeleteHandler, http.MethodDelete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(tt.method, "/api/todos", strings.NewReader("{}")))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
