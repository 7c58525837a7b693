package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/taskgate/taskgate/internal/auth"
	"github.com/taskgate/taskgate/internal/authctx"
	"github.com/taskgate/taskgate/internal/cookie"
	jsonwriter "github.com/taskgate/taskgate/internal/json"
	"github.com/taskgate/taskgate/internal/log"
	"github.com/taskgate/taskgate/internal/oauth"
	"github.com/taskgate/taskgate/internal/urlutil"
)

// CredentialValidator resolves a presented credential to identity claims
type CredentialValidator interface {
	Validate(ctx context.Context, credential string) (*auth.Claims, error)
}

// MiddlewareFunc is a function that wraps an http.Handler
type MiddlewareFunc func(http.Handler) http.Handler

// ChainMiddleware chains multiple middleware functions
func ChainMiddleware(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	for _, mw := range middlewares {
		h = mw(h)
	}
	return h
}

// NewSessionMiddleware gates the cookie-authenticated web API. A missing
// cookie or any validator failure collapses to a plain 401 with no
// challenge header; the resolved subject is injected into the request
// context on success. The cookie itself is never mutated here.
func NewSessionMiddleware(validator CredentialValidator) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionValue, err := cookie.GetSession(r)
			if err != nil {
				jsonwriter.WriteUnauthorized(w, "Unauthorized")
				return
			}

			claims, err := validator.Validate(r.Context(), sessionValue)
			if err != nil {
				log.LogDebugWithFields("session_auth", "Session validation failed", map[string]any{
					"credential": auth.MaskCredential(sessionValue),
					"error":      err.Error(),
				})
				jsonwriter.WriteUnauthorized(w, "Unauthorized")
				return
			}

			ctx := authctx.WithSubject(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewBearerMiddleware gates the MCP endpoint. Auth failures answer 401 with
// a WWW-Authenticate challenge whose resource_metadata parameter points at
// this origin's protected-resource discovery document, which is what lets a
// compliant client self-discover how to obtain a token. On success the
// verified claims and raw access token ride the request context into the
// endpoint handlers.
func NewBearerMiddleware(validator CredentialValidator) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metadataURI := oauth.ProtectedResourceMetadataURI(urlutil.RequestOrigin(r))

			token, ok := bearerToken(r)
			if !ok {
				log.LogDebugWithFields("bearer_auth", "Missing bearer token", map[string]any{
					"path": r.URL.Path,
				})
				jsonwriter.WriteBearerUnauthorized(w, "Unauthorized", metadataURI)
				return
			}

			claims, err := validator.Validate(r.Context(), token)
			if err != nil {
				log.LogDebugWithFields("bearer_auth", "Bearer validation failed", map[string]any{
					"credential": auth.MaskCredential(token),
					"error":      err.Error(),
				})
				jsonwriter.WriteBearerUnauthorized(w, "Unauthorized", metadataURI)
				return
			}

			ctx := authctx.WithProps(r.Context(), authctx.Props{
				Claims:      claims,
				AccessToken: token,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// responseWriterDelegator wraps http.ResponseWriter to capture status and
// bytes written while delegating optional interfaces through Unwrap
type responseWriterDelegator struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriterDelegator {
	return &responseWriterDelegator{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (r *responseWriterDelegator) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseWriterDelegator) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter so interface detection via
// http.ResponseController keeps working
func (r *responseWriterDelegator) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Flush implements http.Flusher, needed by the SSE transport
func (r *responseWriterDelegator) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

var _ http.ResponseWriter = (*responseWriterDelegator)(nil)
var _ http.Flusher = (*responseWriterDelegator)(nil)

// NewLoggerMiddleware adds request/response logging
func NewLoggerMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       wrapped.written,
				"remote_addr": r.RemoteAddr,
			}
			if r.URL.RawQuery != "" {
				fields["query"] = r.URL.RawQuery
			}

			log.LogInfoWithFields(prefix, "request", fields)
		})
	}
}

// NewRecoverMiddleware recovers from handler panics
func NewRecoverMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Logf("<%s> Recovered from panic: %v", prefix, err)
					jsonwriter.WriteInternalServerError(w, "Internal Server Error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
