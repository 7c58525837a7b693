package authserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgate/taskgate/internal/config"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		AuthServerURL: baseURL,
		ClientID:      "taskgate-client",
		ClientSecret:  config.Secret("shh-secret"),
	}
}

func TestVerifySession(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/verify-session", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]any{"user_id": "user-1"})
	}))
	defer srv.Close()

	c := NewWithHTTPClient(testConfig(srv.URL), srv.Client())

	body, err := c.VerifySession(context.Background(), "ses_12345")
	require.NoError(t, err)

	assert.Equal(t, "Bearer shh-secret", gotAuth, "verification authenticates with the service's own secret")
	assert.Equal(t, "ses_12345", gotBody["sessionId"])
	assert.Equal(t, "user-1", body["user_id"])
}

func TestVerifySessionNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewWithHTTPClient(testConfig(srv.URL), srv.Client())

	_, err := c.VerifySession(context.Background(), "ses_12345")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/auth/userinfo", r.URL.Path)
		require.Equal(t, "Bearer opaque-token", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]any{"sub": "user-2", "email": "u@example.com"})
	}))
	defer srv.Close()

	c := NewWithHTTPClient(testConfig(srv.URL), srv.Client())

	body, err := c.UserInfo(context.Background(), "opaque-token")
	require.NoError(t, err)
	assert.Equal(t, "user-2", body["sub"])
}

func TestExchangeCodeUsesDiscoveredEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var gotForm map[string]string
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token_endpoint": srv.URL + "/custom/token",
		})
	})
	mux.HandleFunc("/custom/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"code":          r.PostForm.Get("code"),
			"redirect_uri":  r.PostForm.Get("redirect_uri"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     "id-1",
		})
	})

	c := NewWithHTTPClient(testConfig(srv.URL), srv.Client())

	token, err := c.ExchangeCode(context.Background(), "abc123", "https://app.example.com/")
	require.NoError(t, err)

	assert.Equal(t, "access-1", token.AccessToken)
	assert.Equal(t, "id-1", token.Extra("id_token"))
	assert.Equal(t, map[string]string{
		"grant_type":    "authorization_code",
		"code":          "abc123",
		"redirect_uri":  "https://app.example.com/",
		"client_id":     "taskgate-client",
		"client_secret": "shh-secret",
	}, gotForm)
}

func TestExchangeCodeFallsBackToConventionalEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// No discovery handler registered: the well-known fetch 404s and the
	// conventional path must be used
	tokenEndpointHit := false
	mux.HandleFunc("/api/auth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenEndpointHit = true
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-2",
			"token_type":   "Bearer",
		})
	})

	c := NewWithHTTPClient(testConfig(srv.URL), srv.Client())

	token, err := c.ExchangeCode(context.Background(), "abc123", "https://app.example.com/")
	require.NoError(t, err)
	assert.True(t, tokenEndpointHit)
	assert.Equal(t, "access-2", token.AccessToken)
}

func TestExchangeCodeUpstreamRejection(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/api/auth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_grant",
			"error_description": "code already redeemed",
		})
	})

	c := NewWithHTTPClient(testConfig(srv.URL), srv.Client())

	_, err := c.ExchangeCode(context.Background(), "abc123", "https://app.example.com/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
}
