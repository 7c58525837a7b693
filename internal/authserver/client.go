// Package authserver is the HTTP client for the upstream OAuth 2.1
// authorization server: session verification, userinfo, token-endpoint
// discovery, and the authorization-code grant. All calls are blocking and
// single-attempt; callers needing bounded latency pass a context deadline.
package authserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/taskgate/taskgate/internal/config"
	"github.com/taskgate/taskgate/internal/log"
	"github.com/taskgate/taskgate/internal/urlutil"
)

// conventional paths on the authorization server
const (
	verifySessionPath = "/api/auth/verify-session"
	userInfoPath      = "/api/auth/userinfo"
	tokenPath         = "/api/auth/token"
	discoveryPath     = "/.well-known/oauth-authorization-server"
)

// Client talks to the upstream authorization server
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// New creates a client from the gateway configuration
func New(cfg config.Config) *Client {
	return &Client{
		baseURL:      cfg.AuthServerURL,
		clientID:     cfg.ClientID,
		clientSecret: string(cfg.ClientSecret),
		httpClient:   http.DefaultClient,
	}
}

// NewWithHTTPClient creates a client with an explicit HTTP client, used by
// tests to point at a fake server
func NewWithHTTPClient(cfg config.Config, httpClient *http.Client) *Client {
	c := New(cfg)
	c.httpClient = httpClient
	return c
}

// VerifySession resolves an opaque ses_* identifier by POSTing it to the
// session-verification endpoint, authenticated with the gateway's own
// client secret as bearer auth.
func (c *Client) VerifySession(ctx context.Context, sessionID string) (map[string]any, error) {
	body, err := json.Marshal(map[string]string{"sessionId": sessionID})
	if err != nil {
		return nil, fmt.Errorf("encoding session verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		urlutil.MustJoinPath(c.baseURL, verifySessionPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building session verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.clientSecret)

	return c.doJSON(req, "session verification")
}

// UserInfo resolves an opaque bearer token by presenting it to the
// userinfo endpoint
func (c *Client) UserInfo(ctx context.Context, token string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		urlutil.MustJoinPath(c.baseURL, userInfoPath), nil)
	if err != nil {
		return nil, fmt.Errorf("building userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return c.doJSON(req, "userinfo")
}

// ExchangeCode performs the form-encoded authorization_code grant against
// the resolved token endpoint. The endpoint published in the authorization
// server's discovery document wins; the conventional path is the fallback
// when discovery is unreachable or silent.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	conf := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.resolveTokenEndpoint(ctx),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	// Route the grant through our own HTTP client
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return conf.Exchange(ctx, code)
}

// resolveTokenEndpoint fetches the discovery document and returns its
// token_endpoint, falling back to the conventional path on any failure
func (c *Client) resolveTokenEndpoint(ctx context.Context) string {
	fallback := urlutil.MustJoinPath(c.baseURL, tokenPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		urlutil.MustJoinPath(c.baseURL, discoveryPath), nil)
	if err != nil {
		return fallback
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.LogDebugWithFields("authserver", "Discovery fetch failed, using conventional token endpoint", map[string]any{
			"error": err.Error(),
		})
		return fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fallback
	}

	var doc struct {
		TokenEndpoint string `json:"token_endpoint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil || doc.TokenEndpoint == "" {
		return fallback
	}
	return doc.TokenEndpoint
}

// doJSON executes the request and decodes a 2xx JSON body into a generic
// claim map. Non-2xx responses are errors carrying a bounded body excerpt.
func (c *Client) doJSON(req *http.Request, operation string) (map[string]any, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s returned status %d: %s", operation, resp.StatusCode, excerpt)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", operation, err)
	}
	return body, nil
}
