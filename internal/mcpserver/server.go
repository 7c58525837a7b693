// Package mcpserver exposes the todo store as MCP tools for automated
// agents. The HTTP transports sit behind the bearer middleware; tool
// handlers consume the identity it attached to the request context.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/taskgate/taskgate/internal/authctx"
	"github.com/taskgate/taskgate/internal/log"
	"github.com/taskgate/taskgate/internal/storage"
)

// Server hosts the MCP todo tools over streamable HTTP and SSE transports
type Server struct {
	mcpServer  *mcpserver.MCPServer
	streamable *mcpserver.StreamableHTTPServer
	sse        *mcpserver.SSEServer
	store      storage.TodoStore
}

// New builds the MCP server with its tools registered. baseURL is the
// public URL advertised to SSE clients for the message endpoint.
func New(name, version, baseURL string, store storage.TodoStore) *Server {
	s := &Server{store: store}

	s.mcpServer = mcpserver.NewMCPServer(name, version,
		mcpserver.WithToolCapabilities(true),
	)
	s.registerTools()

	// Both transports forward the inbound request's auth context into the
	// tool handler context
	s.streamable = mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath("/mcp"),
		mcpserver.WithHTTPContextFunc(propagateAuth),
	)
	s.sse = mcpserver.NewSSEServer(s.mcpServer,
		mcpserver.WithStaticBasePath("/sse"),
		mcpserver.WithBaseURL(baseURL),
		mcpserver.WithSSEContextFunc(propagateAuth),
	)

	return s
}

func propagateAuth(ctx context.Context, r *http.Request) context.Context {
	if props, ok := authctx.GetProps(r.Context()); ok {
		return authctx.WithProps(ctx, props)
	}
	return ctx
}

// StreamableHandler returns the streamable HTTP transport
func (s *Server) StreamableHandler() http.Handler {
	return s.streamable
}

// SSEHandler returns the SSE transport
func (s *Server) SSEHandler() http.Handler {
	return s.sse
}

// Shutdown stops both transports
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.streamable.Shutdown(ctx); err != nil {
		return err
	}
	return s.sse.Shutdown(ctx)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("add_todo",
		mcp.WithDescription("Add a new TODO item for the authenticated user"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The TODO text"),
		),
	), s.handleAddTodo)

	s.mcpServer.AddTool(mcp.NewTool("list_todos",
		mcp.WithDescription("List the authenticated user's TODO items"),
	), s.handleListTodos)

	s.mcpServer.AddTool(mcp.NewTool("complete_todo",
		mcp.WithDescription("Mark a TODO item as completed"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The TODO id"),
		),
	), s.handleCompleteTodo)

	s.mcpServer.AddTool(mcp.NewTool("delete_todo",
		mcp.WithDescription("Delete a TODO item"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The TODO id"),
		),
	), s.handleDeleteTodo)
}

func (s *Server) handleAddTodo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject, ok := authctx.Subject(ctx)
	if !ok {
		return mcp.NewToolResultError("not authenticated"), nil
	}

	text, err := request.RequireString("text")
	if err != nil || strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("text argument is required"), nil
	}

	now := time.Now()
	todo := &storage.Todo{
		ID:        uuid.NewString(),
		Subject:   subject,
		Text:      strings.TrimSpace(text),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTodo(ctx, todo); err != nil {
		log.LogErrorWithFields("mcp", "add_todo failed", map[string]any{
			"subject": subject,
			"error":   err.Error(),
		})
		return mcp.NewToolResultError(fmt.Sprintf("Failed to add todo: %v", err)), nil
	}

	return toolResultJSON(todo)
}

func (s *Server) handleListTodos(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject, ok := authctx.Subject(ctx)
	if !ok {
		return mcp.NewToolResultError("not authenticated"), nil
	}

	todos, err := s.store.ListTodos(ctx, subject)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list todos: %v", err)), nil
	}
	if todos == nil {
		todos = []*storage.Todo{}
	}
	return toolResultJSON(todos)
}

func (s *Server) handleCompleteTodo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject, ok := authctx.Subject(ctx)
	if !ok {
		return mcp.NewToolResultError("not authenticated"), nil
	}

	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id argument is required"), nil
	}

	completed := true
	todo, err := s.store.UpdateTodo(ctx, subject, id, nil, &completed)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to complete todo: %v", err)), nil
	}
	return toolResultJSON(todo)
}

func (s *Server) handleDeleteTodo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject, ok := authctx.Subject(ctx)
	if !ok {
		return mcp.NewToolResultError("not authenticated"), nil
	}

	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id argument is required"), nil
	}

	if err := s.store.DeleteTodo(ctx, subject, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to delete todo: %v", err)), nil
	}
	return mcp.NewToolResultText(`{"success":true}`), nil
}

func toolResultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
