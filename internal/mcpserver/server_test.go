package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgate/taskgate/internal/auth"
	"github.com/taskgate/taskgate/internal/authctx"
	"github.com/taskgate/taskgate/internal/storage"
)

func newTestServer() *Server {
	return New("taskgate", "test", "http://localhost:8080", storage.NewMemoryStorage())
}

func subjectContext(subject string) context.Context {
	return authctx.WithSubject(context.Background(), subject)
}

func toolRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Arguments: args,
		},
	}
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	content, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return content.Text
}

func TestAddTodo(t *testing.T) {
	s := newTestServer()

	result, err := s.handleAddTodo(subjectContext("user-1"), toolRequest(map[string]interface{}{
		"text": "buy milk",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var todo storage.Todo
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &todo))
	assert.NotEmpty(t, todo.ID)
	assert.Equal(t, "buy milk", todo.Text)
	assert.False(t, todo.Completed)

	todos, err := s.store.ListTodos(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, todos, 1)
}

func TestAddTodoMissingText(t *testing.T) {
	s := newTestServer()

	for _, args := range []map[string]interface{}{
		{},
		{"text": ""},
		{"text": "   "},
	} {
		result, err := s.handleAddTodo(subjectContext("user-1"), toolRequest(args))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, textContent(t, result), "text argument is required")
	}
}

func TestListTodos(t *testing.T) {
	s := newTestServer()

	result, err := s.handleListTodos(subjectContext("user-1"), toolRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "[]", textContent(t, result))

	_, err = s.handleAddTodo(subjectContext("user-1"), toolRequest(map[string]interface{}{"text": "a"}))
	require.NoError(t, err)

	result, err = s.handleListTodos(subjectContext("user-1"), toolRequest(nil))
	require.NoError(t, err)

	var todos []*storage.Todo
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &todos))
	require.Len(t, todos, 1)
	assert.Equal(t, "a", todos[0].Text)

	// Other subjects see an empty list
	result, err = s.handleListTodos(subjectContext("user-2"), toolRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", textContent(t, result))
}

func TestCompleteTodo(t *testing.T) {
	s := newTestServer()

	result, err := s.handleAddTodo(subjectContext("user-1"), toolRequest(map[string]interface{}{"text": "a"}))
	require.NoError(t, err)
	var created storage.Todo
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &created))

	result, err = s.handleCompleteTodo(subjectContext("user-1"), toolRequest(map[string]interface{}{
		"id": created.ID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var completed storage.Todo
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &completed))
	assert.True(t, completed.Completed)
}

func TestCompleteTodoNotFound(t *testing.T) {
	s := newTestServer()

	result, err := s.handleCompleteTodo(subjectContext("user-1"), toolRequest(map[string]interface{}{
		"id": "missing",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textContent(t, result), "Failed to complete todo")
}

func TestDeleteTodo(t *testing.T) {
	s := newTestServer()

	result, err := s.handleAddTodo(subjectContext("user-1"), toolRequest(map[string]interface{}{"text": "a"}))
	require.NoError(t, err)
	var created storage.Todo
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &created))

	result, err = s.handleDeleteTodo(subjectContext("user-1"), toolRequest(map[string]interface{}{
		"id": created.ID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.JSONEq(t, `{"success":true}`, textContent(t, result))

	todos, err := s.store.ListTodos(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, todos)
}

func TestToolsRequireAuthentication(t *testing.T) {
	s := newTestServer()
	ctx := context.Background()

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"add_todo":      s.handleAddTodo,
		"list_todos":    s.handleListTodos,
		"complete_todo": s.handleCompleteTodo,
		"delete_todo":   s.handleDeleteTodo,
	}

	for name, handler := range handlers {
		result, err := handler(ctx, toolRequest(map[string]interface{}{"text": "a", "id": "x"}))
		require.NoError(t, err, name)
		assert.True(t, result.IsError, name)
		assert.Contains(t, textContent(t, result), "not authenticated", name)
	}
}

func TestPropagateAuthCopiesProps(t *testing.T) {
	props := authctx.Props{
		Claims:      &auth.Claims{Subject: "user-1"},
		AccessToken: "tok-abc",
	}

	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	r = r.WithContext(authctx.WithProps(r.Context(), props))

	ctx := propagateAuth(context.Background(), r)

	got, ok := authctx.GetProps(ctx)
	require.True(t, ok)
	assert.Equal(t, "tok-abc", got.AccessToken)

	subject, ok := authctx.Subject(ctx)
	require.True(t, ok)
	assert.Equal(t, "user-1", subject)
}

func TestPropagateAuthWithoutProps(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)

	ctx := propagateAuth(context.Background(), r)
	_, ok := authctx.GetProps(ctx)
	assert.False(t, ok)
}
