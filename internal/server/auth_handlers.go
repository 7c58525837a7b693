package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/taskgate/taskgate/internal/auth"
	"github.com/taskgate/taskgate/internal/authctx"
	"github.com/taskgate/taskgate/internal/cookie"
	jsonwriter "github.com/taskgate/taskgate/internal/json"
	"github.com/taskgate/taskgate/internal/log"
	"github.com/taskgate/taskgate/internal/oauth"
	"github.com/taskgate/taskgate/internal/urlutil"
)

// AuthHandlers provides the auth HTTP surface: the code-exchange callback,
// logout, session validation, and the discovery metadata documents
type AuthHandlers struct {
	exchanger *auth.Exchanger
	issuer    string
}

// NewAuthHandlers creates auth handlers over the exchanger and the
// configured authorization-server issuer URL
func NewAuthHandlers(exchanger *auth.Exchanger, issuer string) *AuthHandlers {
	return &AuthHandlers{
		exchanger: exchanger,
		issuer:    issuer,
	}
}

type callbackRequest struct {
	Code string `json:"code"`
}

type callbackResponse struct {
	AccessToken string `json:"accessToken"`
	IDToken     string `json:"idToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// CallbackHandler converts a one-time authorization code into a session.
// The redirect URI sent with the grant is this origin, which is what the
// frontend registered upstream.
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		jsonwriter.WriteBadRequest(w, "Missing authorization code")
		return
	}

	redirectURI := urlutil.RequestOrigin(r) + "/"
	result, err := h.exchanger.Exchange(r.Context(), req.Code, redirectURI)
	if err != nil {
		if errors.Is(err, auth.ErrCodeAlreadyUsed) {
			jsonwriter.WriteBadRequest(w, "Authorization code already used")
			return
		}

		var exchangeErr *auth.ExchangeError
		if errors.As(err, &exchangeErr) {
			jsonwriter.WriteBadRequest(w, exchangeErr.Message)
			return
		}
		jsonwriter.WriteBadRequest(w, err.Error())
		return
	}

	maxAge := cookie.DefaultMaxAge
	if result.ExpiresIn > 0 {
		maxAge = time.Duration(result.ExpiresIn) * time.Second
	}
	cookie.SetSession(w, r, result.SessionValue, maxAge)

	log.LogInfoWithFields("auth", "Authorization code exchanged", map[string]any{
		"expiresIn": result.ExpiresIn,
	})

	_ = jsonwriter.Write(w, callbackResponse{
		AccessToken: result.AccessToken,
		IDToken:     result.IDToken,
		ExpiresIn:   result.ExpiresIn,
	})
}

// LogoutHandler clears the session cookie
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	cookie.ClearSession(w)
	_ = jsonwriter.Write(w, map[string]any{"success": true})
}

// ValidateHandler reports the authenticated subject. It sits behind the
// session middleware, so reaching it means the cookie validated.
func (h *AuthHandlers) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	subject, ok := authctx.Subject(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Unauthorized")
		return
	}
	_ = jsonwriter.Write(w, map[string]any{"valid": true, "userId": subject})
}

// ProtectedResourceMetadataHandler serves RFC 9728 metadata. The same
// document answers the bare well-known path and the transport-suffixed
// variants some clients guess.
func (h *AuthHandlers) ProtectedResourceMetadataHandler(w http.ResponseWriter, r *http.Request) {
	origin := urlutil.RequestOrigin(r)
	_ = jsonwriter.Write(w, oauth.ProtectedResourceMetadata(origin, h.issuer))
}

// AuthorizationServerMetadataHandler serves RFC 8414 metadata at the legacy
// well-known path for clients of the older specification generation
func (h *AuthHandlers) AuthorizationServerMetadataHandler(w http.ResponseWriter, r *http.Request) {
	_ = jsonwriter.Write(w, oauth.AuthorizationServerMetadata(h.issuer))
}
