package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskgate/taskgate/internal/auth"
	"github.com/taskgate/taskgate/internal/authserver"
	"github.com/taskgate/taskgate/internal/config"
	"github.com/taskgate/taskgate/internal/log"
	"github.com/taskgate/taskgate/internal/mcpserver"
	"github.com/taskgate/taskgate/internal/oauth"
	"github.com/taskgate/taskgate/internal/server"
	"github.com/taskgate/taskgate/internal/storage"
)

// Taskgate is the assembled gateway application
type Taskgate struct {
	config     config.Config
	httpServer *server.HTTPServer
	mcpServer  *mcpserver.Server
	storage    storage.Storage
}

// NewTaskgate builds the gateway with all dependencies wired
func NewTaskgate(ctx context.Context, cfg config.Config, version string) (*Taskgate, error) {
	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("setting up storage: %w", err)
	}

	upstream := authserver.New(cfg)
	validator := auth.NewValidator(upstream)
	exchanger := auth.NewExchanger(store, upstream)

	authHandlers := server.NewAuthHandlers(exchanger, cfg.AuthServerURL)
	todoHandlers := server.NewTodoHandlers(store)
	mcpSrv := mcpserver.New("taskgate", version, cfg.BaseURL, store)

	handler := buildHTTPHandler(validator, authHandlers, todoHandlers, mcpSrv)
	httpServer := server.NewHTTPServer(handler, cfg.Addr)

	return &Taskgate{
		config:     cfg,
		httpServer: httpServer,
		mcpServer:  mcpSrv,
		storage:    store,
	}, nil
}

// buildHTTPHandler registers all routes and wraps them with the common
// middleware stack
func buildHTTPHandler(
	validator server.CredentialValidator,
	authHandlers *server.AuthHandlers,
	todoHandlers *server.TodoHandlers,
	mcpSrv *mcpserver.Server,
) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /health", &server.HealthHandler{})

	// Discovery: the bare protected-resource path plus the
	// transport-suffixed variants some clients guess, all identical
	mux.HandleFunc("GET "+oauth.ProtectedResourcePath, authHandlers.ProtectedResourceMetadataHandler)
	mux.HandleFunc("GET "+oauth.ProtectedResourcePath+"/{transport}", authHandlers.ProtectedResourceMetadataHandler)
	mux.HandleFunc("GET "+oauth.AuthorizationServerPath, authHandlers.AuthorizationServerMetadataHandler)

	// Auth surface
	mux.HandleFunc("POST /api/auth/callback", authHandlers.CallbackHandler)
	mux.HandleFunc("POST /api/auth/logout", authHandlers.LogoutHandler)

	sessionGate := server.NewSessionMiddleware(validator)
	mux.Handle("GET /api/auth/validate", sessionGate(http.HandlerFunc(authHandlers.ValidateHandler)))

	// Web API, session-gated
	mux.Handle("GET /api/todos", sessionGate(http.HandlerFunc(todoHandlers.ListHandler)))
	mux.Handle("POST /api/todos", sessionGate(http.HandlerFunc(todoHandlers.CreateHandler)))
	mux.Handle("PUT /api/todos/{id}", sessionGate(http.HandlerFunc(todoHandlers.UpdateHandler)))
	mux.Handle("DELETE /api/todos/{id}", sessionGate(http.HandlerFunc(todoHandlers.DeleteHandler)))

	// MCP endpoint, bearer-gated
	bearerGate := server.NewBearerMiddleware(validator)
	mux.Handle("/mcp", bearerGate(mcpSrv.StreamableHandler()))
	mux.Handle("/sse", bearerGate(mcpSrv.SSEHandler()))
	mux.Handle("/sse/", bearerGate(mcpSrv.SSEHandler()))

	return server.ChainMiddleware(mux,
		server.NewRecoverMiddleware("taskgate"),
		server.NewLoggerMiddleware("http"),
	)
}

// Run starts the gateway and blocks until a shutdown signal or server error
func (t *Taskgate) Run() error {
	log.LogInfoWithFields("taskgate", "Starting gateway", map[string]any{
		"addr": t.config.Addr,
	})

	errChan := make(chan error, 1)
	go func() {
		if err := t.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
	}

	log.LogInfoWithFields("taskgate", "Starting graceful shutdown", map[string]any{
		"reason": shutdownReason,
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := t.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("taskgate", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
	}
	if err := t.mcpServer.Shutdown(shutdownCtx); err != nil {
		log.LogErrorWithFields("taskgate", "MCP server shutdown error", map[string]any{
			"error": err.Error(),
		})
	}
	if err := t.storage.Close(); err != nil {
		log.LogErrorWithFields("taskgate", "Storage close error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("taskgate", "Shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}

// setupStorage creates the configured storage backend
func setupStorage(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	if cfg.Storage == config.StorageFirestore {
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":  cfg.GCPProject,
			"database": cfg.FirestoreDatabase,
		})
		return storage.NewFirestoreStorage(ctx, cfg.GCPProject, cfg.FirestoreDatabase)
	}

	log.LogInfoWithFields("storage", "Using in-memory storage", nil)
	return storage.NewMemoryStorage(), nil
}
