package json

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/taskgate/taskgate/internal/log"
)

// ErrorResponse is the standard JSON error body
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteResponse writes a JSON response with the given status code
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		return err
	}
	return nil
}

// Write writes a JSON response with 200 OK status
func Write(w http.ResponseWriter, data any) error {
	return WriteResponse(w, http.StatusOK, data)
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	if err := WriteResponse(w, statusCode, ErrorResponse{Error: message}); err != nil {
		// Fallback to plain text error if JSON encoding fails
		http.Error(w, message, statusCode)
	}
}

// WriteUnauthorized writes a 401 response with no challenge header.
// Used on the session-cookie surface, where a WWW-Authenticate header
// would be meaningless to the browser client.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message)
}

// WriteBearerUnauthorized writes a 401 response with a WWW-Authenticate
// challenge per RFC 9728 Section 5.1.
//
// The resource_metadata parameter points at the protected resource metadata
// endpoint so that a compliant client can discover the authorization server
// on its own. URI and error values are escaped per RFC 9110 quoted-string
// rules.
func WriteBearerUnauthorized(w http.ResponseWriter, message string, resourceMetadataURI string) {
	challenge := fmt.Sprintf(
		`Bearer error="Unauthorized", error_description=%q, resource_metadata="%s"`,
		message, escapeQuotedString(resourceMetadataURI),
	)
	w.Header().Set("WWW-Authenticate", challenge)
	WriteError(w, http.StatusUnauthorized, message)
}

// escapeQuotedString escapes backslash and double-quote characters for use
// in an RFC 9110 quoted-string
func escapeQuotedString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return s
}

func WriteInternalServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}
