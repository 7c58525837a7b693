package auth

import (
	"fmt"
	"strings"
	"time"
)

// Claims is the identity resolved from a credential. Subject is always
// present; ExpiresAt is set when the credential carried an expiry. Raw holds
// the full claim set as returned by the resolving strategy, passed through
// without schema validation.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	Raw       map[string]any
}

// subjectFrom extracts the first non-empty subject from the claim map,
// trying each key path in order. A path may be dotted ("user.id") to
// descend into nested objects.
func subjectFrom(claims map[string]any, paths ...string) string {
	for _, path := range paths {
		if s := stringAt(claims, path); s != "" {
			return s
		}
	}
	return ""
}

func stringAt(claims map[string]any, path string) string {
	current := any(claims)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = m[part]
		if !ok {
			return ""
		}
	}
	return asString(current)
}

// asString renders a claim value as a subject string. Numeric user ids
// arrive as float64 after JSON decoding.
func asString(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		if value == float64(int64(value)) {
			return fmt.Sprintf("%d", int64(value))
		}
		return fmt.Sprintf("%v", value)
	case int64:
		return fmt.Sprintf("%d", value)
	default:
		return ""
	}
}

// MaskCredential shortens a credential for logging so failures can be
// diagnosed without printing full secrets
func MaskCredential(credential string) string {
	if len(credential) <= 8 {
		return "***"
	}
	return credential[:8] + "..."
}
