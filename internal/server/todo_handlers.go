package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskgate/taskgate/internal/authctx"
	jsonwriter "github.com/taskgate/taskgate/internal/json"
	"github.com/taskgate/taskgate/internal/storage"
)

// TodoHandlers is the session-gated REST surface over the todo store.
// Every operation is scoped to the subject resolved by the session
// middleware.
type TodoHandlers struct {
	store storage.TodoStore
}

// NewTodoHandlers creates todo handlers over the given store
func NewTodoHandlers(store storage.TodoStore) *TodoHandlers {
	return &TodoHandlers{store: store}
}

type todoRequest struct {
	Text      *string `json:"text"`
	Completed *bool   `json:"completed"`
}

// ListHandler returns the subject's todos, oldest first
func (h *TodoHandlers) ListHandler(w http.ResponseWriter, r *http.Request) {
	subject, ok := authctx.Subject(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Unauthorized")
		return
	}

	todos, err := h.store.ListTodos(r.Context(), subject)
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "Failed to list todos")
		return
	}
	if todos == nil {
		todos = []*storage.Todo{}
	}
	_ = jsonwriter.Write(w, map[string]any{"todos": todos})
}

// CreateHandler adds a todo for the subject
func (h *TodoHandlers) CreateHandler(w http.ResponseWriter, r *http.Request) {
	subject, ok := authctx.Subject(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req todoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == nil || strings.TrimSpace(*req.Text) == "" {
		jsonwriter.WriteBadRequest(w, "Missing todo text")
		return
	}

	now := time.Now()
	todo := &storage.Todo{
		ID:        uuid.NewString(),
		Subject:   subject,
		Text:      strings.TrimSpace(*req.Text),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateTodo(r.Context(), todo); err != nil {
		jsonwriter.WriteInternalServerError(w, "Failed to create todo")
		return
	}
	_ = jsonwriter.WriteResponse(w, http.StatusCreated, todo)
}

// UpdateHandler applies a partial update to the subject's todo
func (h *TodoHandlers) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	subject, ok := authctx.Subject(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Unauthorized")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		jsonwriter.WriteBadRequest(w, "Missing todo id")
		return
	}

	var req todoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Text == nil && req.Completed == nil {
		jsonwriter.WriteBadRequest(w, "Nothing to update")
		return
	}

	todo, err := h.store.UpdateTodo(r.Context(), subject, id, req.Text, req.Completed)
	if err != nil {
		if errors.Is(err, storage.ErrTodoNotFound) {
			jsonwriter.WriteNotFound(w, "Todo not found")
			return
		}
		jsonwriter.WriteInternalServerError(w, "Failed to update todo")
		return
	}
	_ = jsonwriter.Write(w, todo)
}

// DeleteHandler removes the subject's todo
func (h *TodoHandlers) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	subject, ok := authctx.Subject(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Unauthorized")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		jsonwriter.WriteBadRequest(w, "Missing todo id")
		return
	}

	if err := h.store.DeleteTodo(r.Context(), subject, id); err != nil {
		if errors.Is(err, storage.ErrTodoNotFound) {
			jsonwriter.WriteNotFound(w, "Todo not found")
			return
		}
		jsonwriter.WriteInternalServerError(w, "Failed to delete todo")
		return
	}
	_ = jsonwriter.Write(w, map[string]any{"success": true})
}
