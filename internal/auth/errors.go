package auth

import "errors"

// ErrUnauthenticated means no credential was presented at all
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrTokenExpired means a JWT credential carried an exp claim in the past.
// It is never masked by later strategies, so callers can distinguish an
// expired token from a credential of the wrong shape.
var ErrTokenExpired = errors.New("token expired")

// ErrValidationFailed means a credential was presented but no strategy
// could resolve it to a subject
var ErrValidationFailed = errors.New("token validation failed")

// ErrCodeAlreadyUsed means an authorization code was presented a second
// time within the marker window
var ErrCodeAlreadyUsed = errors.New("authorization code already used")

// ExchangeError reports a failed token exchange, carrying the message the
// authorization server returned
type ExchangeError struct {
	Message string
}

func (e *ExchangeError) Error() string {
	return "token exchange failed: " + e.Message
}
