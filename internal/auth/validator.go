package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taskgate/taskgate/internal/log"
)

// sessionIDPattern matches opaque session identifiers issued by the
// authorization server's session-based flow
var sessionIDPattern = regexp.MustCompile(`^ses_\d+$`)

// Upstream is the authorization-server surface the validator needs. Both
// calls are blocking, single-attempt, and bounded only by the transport's
// own timeout.
type Upstream interface {
	// VerifySession resolves an opaque ses_* identifier server-to-server,
	// authenticated with the gateway's own client secret
	VerifySession(ctx context.Context, sessionID string) (map[string]any, error)

	// UserInfo resolves an opaque bearer token by presenting it to the
	// userinfo endpoint
	UserInfo(ctx context.Context, token string) (map[string]any, error)
}

// strategy resolves one credential shape to claims. applies is a cheap
// syntactic gate; resolve may go to the network.
type strategy struct {
	name    string
	applies func(credential string) bool
	resolve func(ctx context.Context, credential string) (*Claims, error)
}

// Validator resolves a credential of unknown shape to identity claims.
//
// The authorization server hands out three incompatible credential shapes
// depending on which flow produced them: an opaque ses_* session id, a JWT,
// or an opaque bearer token. One validator accepts all three so callers
// never need to know which flow issued the credential they hold.
type Validator struct {
	strategies []strategy
}

// NewValidator builds the validator cascade over the given upstream client.
// Strategies run in a fixed order, first success wins:
//
//  1. session-id shape, verified server-to-server
//  2. JWT shape, payload decoded locally (not signature-verified)
//  3. opaque bearer, resolved via the userinfo endpoint
//
// The session-id pattern check runs before everything else, so a ses_*
// credential never reaches JWT decoding. A JWT with a past exp short-circuits
// the whole cascade with ErrTokenExpired; a JWT with no recognizable subject
// falls through to the userinfo strategy instead.
func NewValidator(upstream Upstream) *Validator {
	v := &Validator{}
	v.strategies = []strategy{
		{
			name:    "session_id",
			applies: sessionIDPattern.MatchString,
			resolve: func(ctx context.Context, credential string) (*Claims, error) {
				return resolveSessionID(ctx, upstream, credential)
			},
		},
		{
			name:    "jwt",
			applies: looksLikeJWT,
			resolve: resolveJWT,
		},
		{
			name:    "bearer",
			applies: func(string) bool { return true },
			resolve: func(ctx context.Context, credential string) (*Claims, error) {
				return resolveUserInfo(ctx, upstream, credential)
			},
		},
	}
	return v
}

// Validate resolves credential to claims, trying each applicable strategy
// in order. Returns ErrUnauthenticated for an empty credential,
// ErrTokenExpired when a JWT carried a past exp, and the last strategy's
// failure otherwise.
func (v *Validator) Validate(ctx context.Context, credential string) (*Claims, error) {
	if credential == "" {
		return nil, ErrUnauthenticated
	}

	lastErr := ErrValidationFailed
	for _, s := range v.strategies {
		if !s.applies(credential) {
			continue
		}

		claims, err := s.resolve(ctx, credential)
		if err == nil {
			log.LogDebugWithFields("auth", "Credential validated", map[string]any{
				"strategy":   s.name,
				"subject":    claims.Subject,
				"credential": MaskCredential(credential),
			})
			return claims, nil
		}

		// Expiry is a definitive answer about this credential, not a
		// shape mismatch. It must not be masked by a later strategy.
		if errors.Is(err, ErrTokenExpired) {
			return nil, err
		}

		log.LogDebugWithFields("auth", "Strategy failed, trying next", map[string]any{
			"strategy":   s.name,
			"credential": MaskCredential(credential),
			"error":      err.Error(),
		})
		lastErr = err
	}

	return nil, lastErr
}

func looksLikeJWT(credential string) bool {
	return len(strings.Split(credential, ".")) == 3
}

func resolveSessionID(ctx context.Context, upstream Upstream, sessionID string) (*Claims, error) {
	body, err := upstream.VerifySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: session verification: %w", ErrValidationFailed, err)
	}

	// The verification endpoint has returned the subject in several
	// different places across server versions
	subject := subjectFrom(body, "user_id", "user.id", "sub", "userId", "session.user_id")
	if subject == "" {
		return nil, fmt.Errorf("%w: session verification response has no subject", ErrValidationFailed)
	}

	return &Claims{Subject: subject, Raw: body}, nil
}

func resolveJWT(_ context.Context, credential string) (*Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return nil, fmt.Errorf("%w: decoding jwt payload: %w", ErrValidationFailed, err)
	}

	// Decode only, no signature verification: the upstream authorization
	// server is trusted as the source of these tokens
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: reading exp claim: %w", ErrValidationFailed, err)
	}
	if exp != nil && exp.Before(time.Now()) {
		return nil, ErrTokenExpired
	}

	subject := subjectFrom(map[string]any(claims), "sub", "user_id", "userId", "email")
	if subject == "" {
		return nil, fmt.Errorf("%w: jwt payload has no subject", ErrValidationFailed)
	}

	result := &Claims{Subject: subject, Raw: map[string]any(claims)}
	if exp != nil {
		result.ExpiresAt = exp.Time
	}
	return result, nil
}

func resolveUserInfo(ctx context.Context, upstream Upstream, token string) (*Claims, error) {
	body, err := upstream.UserInfo(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo: %w", ErrValidationFailed, err)
	}

	subject := subjectFrom(body, "sub", "user_id", "id", "email")
	if subject == "" {
		return nil, fmt.Errorf("%w: userinfo response has no subject", ErrValidationFailed)
	}

	return &Claims{Subject: subject, Raw: body}, nil
}
