// Package oauth builds the OAuth discovery metadata documents served by the
// gateway. Two non-interoperable specification generations are covered:
// RFC 9728 protected-resource metadata for current clients, and RFC 8414
// authorization-server metadata at the legacy well-known path for clients
// that predate protected-resource discovery.
package oauth

import (
	"github.com/taskgate/taskgate/internal/urlutil"
)

// ProtectedResourcePath is the well-known path for RFC 9728 metadata. Some
// clients guess transport-suffixed variants of it ("/mcp", "/sse"), so the
// responder serves those too.
const ProtectedResourcePath = "/.well-known/oauth-protected-resource"

// AuthorizationServerPath is the legacy RFC 8414 well-known path
const AuthorizationServerPath = "/.well-known/oauth-authorization-server"

// ProtectedResourceMetadata builds the RFC 9728 document for this resource.
// origin is the serving origin derived from the inbound request; issuer is
// the configured upstream authorization server.
func ProtectedResourceMetadata(origin, issuer string) map[string]any {
	return map[string]any{
		"resource":               origin,
		"resource_documentation": urlutil.MustJoinPath(origin, "docs"),
		"authorization_servers": []string{
			issuer,
		},
		"bearer_methods_supported": []string{
			"header",
		},
		"scopes_supported": []string{},
	}
}

// ProtectedResourceMetadataURI returns the challenge URI advertised in
// WWW-Authenticate headers
func ProtectedResourceMetadataURI(origin string) string {
	return urlutil.MustJoinPath(origin, ProtectedResourcePath)
}

// AuthorizationServerMetadata builds the RFC 8414 document describing the
// upstream authorization server. Endpoints are derived by appending the
// conventional paths to the configured issuer, never hardcoded.
func AuthorizationServerMetadata(issuer string) map[string]any {
	return map[string]any{
		"issuer":                 issuer,
		"authorization_endpoint": urlutil.MustJoinPath(issuer, "authorize"),
		"token_endpoint":         urlutil.MustJoinPath(issuer, "token"),
		"registration_endpoint":  urlutil.MustJoinPath(issuer, "register"),
		"response_types_supported": []string{
			"code",
		},
		"grant_types_supported": []string{
			"authorization_code",
			"refresh_token",
		},
		"code_challenge_methods_supported": []string{
			"S256",
		},
		"token_endpoint_auth_methods_supported": []string{
			"none",
			"client_secret_post",
		},
		"scopes_supported": []string{
			"openid",
			"profile",
			"email",
			"offline_access",
		},
	}
}
