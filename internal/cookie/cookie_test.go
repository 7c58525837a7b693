package cookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetSession(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/callback", nil)

	SetSession(rec, req, "ses_42", time.Hour)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, SessionCookie, c.Name)
	assert.Equal(t, "ses_42", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 3600, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.False(t, c.Secure, "plain http request gets a non-Secure cookie")
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

func TestSetSessionSecureBehindProxy(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/callback", nil)
	req.Header.Set("X-Forwarded-Proto", "https")

	SetSession(rec, req, "ses_42", time.Hour)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].Secure)
}

func TestSetSessionDefaultMaxAge(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/callback", nil)

	SetSession(rec, req, "ses_42", 0)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, int(DefaultMaxAge.Seconds()), cookies[0].MaxAge)
}

func TestClearSession(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearSession(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestGetSession(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)

	_, err := GetSession(req)
	assert.ErrorIs(t, err, http.ErrNoCookie)

	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "ses_42"})
	value, err := GetSession(req)
	require.NoError(t, err)
	assert.Equal(t, "ses_42", value)
}
