package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/taskgate/taskgate/internal/log"
	"github.com/taskgate/taskgate/internal/storage"
)

const (
	// markerTTL bounds how long an exchanged code is remembered. After it
	// lapses a second attempt is no longer blocked locally; the
	// authorization server still rejects the reused one-time code.
	markerTTL = 300 * time.Second

	// markerSentinel is the fixed value stored under a processed code
	markerSentinel = "processed"
)

// UpstreamExchanger performs the actual authorization-code grant against
// the authorization server's token endpoint
type UpstreamExchanger interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth2.Token, error)
}

// ExchangeResult is the outcome of a successful code exchange
type ExchangeResult struct {
	// AccessToken and IDToken echo the upstream response
	AccessToken string
	IDToken     string

	// ExpiresIn is the reported token lifetime in seconds, 0 when the
	// server reported none
	ExpiresIn int64

	// SessionValue is the strongest token from the response, chosen in
	// priority order session_id, session_token, access_token, id_token.
	// It becomes the session cookie value.
	SessionValue string
}

// Exchanger converts one-time authorization codes into sessions, guarding
// against replays with a TTL marker in the injected store.
//
// The guard is check-then-set, not atomic: two concurrent requests with the
// same code can both miss the marker and both attempt the exchange. The
// authorization server arbitrates that race by rejecting the second use of
// the code, so the window is bounded and accepted rather than closed with
// extra synchronization.
type Exchanger struct {
	markers  storage.MarkerStore
	upstream UpstreamExchanger
}

// NewExchanger creates an exchanger over the given marker store and
// upstream client
func NewExchanger(markers storage.MarkerStore, upstream UpstreamExchanger) *Exchanger {
	return &Exchanger{markers: markers, upstream: upstream}
}

// Exchange performs the replay-guarded code-for-token exchange. Returns
// ErrCodeAlreadyUsed when the code was exchanged within the marker window
// and *ExchangeError when the authorization server rejects the grant.
func (e *Exchanger) Exchange(ctx context.Context, code, redirectURI string) (*ExchangeResult, error) {
	key := markerKey(code)

	_, seen, err := e.markers.GetMarker(ctx, key)
	if err != nil {
		return nil, &ExchangeError{Message: fmt.Sprintf("checking code marker: %v", err)}
	}
	if seen {
		log.LogWarnWithFields("auth", "Authorization code replay blocked", map[string]any{
			"code": MaskCredential(code),
		})
		return nil, ErrCodeAlreadyUsed
	}

	// Mark before exchanging. This closes most of the replay window; a
	// concurrent duplicate that raced past the check above is rejected by
	// the authorization server itself.
	if err := e.markers.PutMarker(ctx, key, markerSentinel, markerTTL); err != nil {
		return nil, &ExchangeError{Message: fmt.Sprintf("writing code marker: %v", err)}
	}

	normalized, err := normalizeRedirectURI(redirectURI)
	if err != nil {
		return nil, &ExchangeError{Message: fmt.Sprintf("invalid redirect URI: %v", err)}
	}

	token, err := e.upstream.ExchangeCode(ctx, code, normalized)
	if err != nil {
		log.LogErrorWithFields("auth", "Token exchange failed", map[string]any{
			"code":  MaskCredential(code),
			"error": err.Error(),
		})
		return nil, &ExchangeError{Message: exchangeErrorMessage(err)}
	}

	result := &ExchangeResult{
		AccessToken: token.AccessToken,
		IDToken:     extraString(token, "id_token"),
		ExpiresIn:   expiresIn(token),
	}

	// Prefer the session forms over raw tokens as the cookie value; the
	// validator resolves whichever shape ends up stored
	for _, candidate := range []string{
		extraString(token, "session_id"),
		extraString(token, "session_token"),
		token.AccessToken,
		result.IDToken,
	} {
		if candidate != "" {
			result.SessionValue = candidate
			break
		}
	}
	if result.SessionValue == "" {
		return nil, &ExchangeError{Message: "token response contained no usable token"}
	}

	return result, nil
}

// markerKey derives the marker lookup key from the code. Hashing keeps raw
// codes out of the store and yields safe document ids.
func markerKey(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// normalizeRedirectURI canonicalizes the redirect URI string. The value must
// exactly match what was registered upstream or the exchange is rejected.
func normalizeRedirectURI(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("redirect URI %q is not absolute", redirectURI)
	}
	return u.String(), nil
}

// exchangeErrorMessage pulls the most specific message out of an oauth2
// retrieve error: error_description, then error, then the raw body.
func exchangeErrorMessage(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorDescription != "" {
			return retrieveErr.ErrorDescription
		}
		if retrieveErr.ErrorCode != "" {
			return retrieveErr.ErrorCode
		}
		if len(retrieveErr.Body) > 0 {
			return string(retrieveErr.Body)
		}
	}
	return err.Error()
}

func extraString(token *oauth2.Token, key string) string {
	if v, ok := token.Extra(key).(string); ok {
		return v
	}
	return ""
}

func expiresIn(token *oauth2.Token) int64 {
	switch v := token.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	}
	if !token.Expiry.IsZero() {
		if remaining := time.Until(token.Expiry); remaining > 0 {
			return int64(remaining.Seconds())
		}
	}
	return 0
}
