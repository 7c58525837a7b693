package cookie

import (
	"net/http"
	"time"

	"github.com/taskgate/taskgate/internal/log"
)

// SessionCookie is the name of the session cookie holding the upstream token
const SessionCookie = "taskgate_session"

// DefaultMaxAge caps the session lifetime when the authorization server
// does not report an expiry
const DefaultMaxAge = 7 * 24 * time.Hour

// SetSession sets the session cookie scoped to the whole origin. The Secure
// flag follows the inbound request: a cookie set over plain HTTP (local
// development) must not be Secure or the browser drops it.
func SetSession(w http.ResponseWriter, r *http.Request, value string, maxAge time.Duration) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Session cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   secure,
		"sameSite": "Lax",
	})
}

// ClearSession removes the session cookie
func ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   SessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	log.LogTraceWithFields("cookie", "Session cookie cleared", nil)
}

// GetSession retrieves the session cookie value
func GetSession(r *http.Request) (string, error) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}
