// Package authctx threads verified identity through the request pipeline as
// explicit context values, scoped to a single request's execution.
package authctx

import (
	"context"

	"github.com/taskgate/taskgate/internal/auth"
)

type contextKey string

const (
	subjectKey contextKey = "auth.subject"
	propsKey   contextKey = "auth.props"
)

// Props carries the verified claims and the raw access token into the MCP
// endpoint handlers, which consume them as their own authentication context
type Props struct {
	Claims      *auth.Claims
	AccessToken string
}

// WithSubject attaches the session-authenticated subject to the context
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// Subject retrieves the session-authenticated subject
func Subject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey).(string)
	return subject, ok
}

// WithProps attaches bearer-authenticated identity to the context
func WithProps(ctx context.Context, props Props) context.Context {
	ctx = context.WithValue(ctx, propsKey, props)
	if props.Claims != nil {
		ctx = WithSubject(ctx, props.Claims.Subject)
	}
	return ctx
}

// GetProps retrieves bearer-authenticated identity from the context
func GetProps(ctx context.Context) (Props, bool) {
	props, ok := ctx.Value(propsKey).(Props)
	return props, ok
}
