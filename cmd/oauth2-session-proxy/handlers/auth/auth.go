// Package auth serves the browser-facing login endpoints
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/wrale/oauth2-session-store/cmd/oauth2-session-proxy/handlers/common"
	"github.com/wrale/oauth2-session-store/internal/authflow"
)

// Flow is the login flow behind the handlers
type Flow interface {
	Login(ctx context.Context, req authflow.LoginRequest) (string, error)
	Callback(ctx context.Context, code, state string) (*authflow.CallbackResult, error)
	Logout(ctx context.Context) string
	User(ctx context.Context) (*authflow.User, error)
}

// Config contains handler configuration options
type Config struct {
	Flow   Flow
	Logger *slog.Logger
}

// Handler serves login, register, callback, logout and user requests
type Handler struct {
	flow   Flow
	logger *slog.Logger
}

// New creates the login handlers
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		flow:   cfg.Flow,
		logger: logger,
	}
}

// UserResponse describes the signed-in user of the device
type UserResponse struct {
	Subject   string         `json:"sub,omitempty"`
	TokenType string         `json:"token_type"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Claims    map[string]any `json:"claims,omitempty"`
}

// Login redirects to the provider's sign-in page. return_to and prompt are
// interpreted; every other query parameter is passed through.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.startLogin(w, r, "")
}

// Register redirects to the provider's sign-up page
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	h.startLogin(w, r, authflow.PromptCreate)
}

func (h *Handler) startLogin(w http.ResponseWriter, r *http.Request, prompt string) {
	query := r.URL.Query()
	req := authflow.LoginRequest{
		ReturnTo: query.Get("return_to"),
		Prompt:   prompt,
		Params:   make(map[string]string),
	}
	if req.Prompt == "" {
		req.Prompt = query.Get("prompt")
	}
	for key := range query {
		if key == "return_to" || key == "prompt" {
			continue
		}
		req.Params[key] = query.Get(key)
	}

	authURL, err := h.flow.Login(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "starting login failed", "error", err)
		common.WriteError(w, http.StatusInternalServerError, common.ErrorCodeServerError,
			"Unable to start login")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes a login started by Login or Register
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if code := query.Get("error"); code != "" {
		h.providerError(w, r, code, query)
		return
	}

	result, err := h.flow.Callback(r.Context(), query.Get("code"), query.Get("state"))
	if err != nil {
		switch {
		case errors.Is(err, authflow.ErrMissingCode):
			common.WriteError(w, http.StatusBadRequest, common.ErrorCodeInvalidRequest,
				"The code parameter is required")
		case errors.Is(err, authflow.ErrInvalidState), errors.Is(err, authflow.ErrStateNotFound):
			common.WriteError(w, http.StatusBadRequest, common.ErrorCodeInvalidState,
				"The login request is invalid, expired or already completed")
		case errors.Is(err, authflow.ErrNonceMismatch):
			common.WriteError(w, http.StatusBadRequest, common.ErrorCodeInvalidState,
				"The id token was not issued for this login")
		case errors.Is(err, authflow.ErrExchange):
			h.logger.WarnContext(r.Context(), "code exchange failed", "error", err)
			common.WriteError(w, http.StatusBadGateway, common.ErrorCodeServerError,
				"The provider rejected the authorization code")
		default:
			h.logger.ErrorContext(r.Context(), "completing login failed", "error", err)
			common.WriteError(w, http.StatusInternalServerError, common.ErrorCodeServerError,
				"Unable to complete login")
		}
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, result.RedirectTo, http.StatusFound)
}

// providerError handles an error returned to the callback. An expired
// magic link restarts the login with the parameters the provider sent back.
func (h *Handler) providerError(w http.ResponseWriter, r *http.Request, code string, query url.Values) {
	if code != authflow.ErrorLoginLinkExpired {
		common.WriteError(w, http.StatusBadRequest, code, query.Get("error_description"))
		return
	}

	params, err := authflow.DecodeReauthState(query.Get("reauth_state"))
	if err != nil {
		common.WriteError(w, http.StatusBadRequest, common.ErrorCodeInvalidRequest,
			"The reauth_state parameter is invalid")
		return
	}

	target := url.URL{Path: "/login", RawQuery: params.Encode()}
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// Logout ends the device's session and redirects to the provider's logout
// page, or to the site root when none is configured
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, h.flow.Logout(r.Context()), http.StatusFound)
}

// User reports the signed-in user of the device
func (h *Handler) User(w http.ResponseWriter, r *http.Request) {
	user, err := h.flow.User(r.Context())
	if err != nil {
		if errors.Is(err, authflow.ErrNotAuthenticated) {
			common.WriteError(w, http.StatusUnauthorized, common.ErrorCodeUnauthenticated,
				"No active session for this device")
			return
		}
		h.logger.ErrorContext(r.Context(), "loading user failed", "error", err)
		common.WriteError(w, http.StatusInternalServerError, common.ErrorCodeServerError, "")
		return
	}

	resp := UserResponse{
		Subject:   user.Subject(),
		TokenType: user.Token.Type(),
		Claims:    user.Claims,
	}
	if !user.Token.Expiry.IsZero() {
		expiry := user.Token.Expiry.UTC()
		resp.ExpiresAt = &expiry
	}
	common.WriteJSON(w, resp)
}
