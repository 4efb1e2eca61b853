// Package authflow runs the OAuth authorization code flow with PKCE on top of
// the session manager: it stores the state, code verifier and nonce of each
// login as short-lived artifacts and the resulting token per device.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/wrale/oauth2-session-store/internal/session"
	"github.com/wrale/oauth2-session-store/internal/storage"
)

// TokenKey is the device-scoped key holding the token of a completed login
const TokenKey = "token"

// PromptCreate asks the provider to show its sign-up page
const PromptCreate = "create"

// LoginRequest describes a login to start
type LoginRequest struct {
	// ReturnTo is the local path to send the user to after the callback
	ReturnTo string

	// Prompt is passed through as the prompt parameter when set
	Prompt string

	// Params are extra authorization request parameters
	Params map[string]string
}

// CallbackResult is the outcome of a completed login
type CallbackResult struct {
	RedirectTo string
	Token      *oauth2.Token
}

// Flow orchestrates login, callback and logout
type Flow struct {
	sessions       *session.Manager
	oauth          *oauth2.Config
	secret         []byte
	logoutURL      string
	logoutReturnTo string
	httpClient     *http.Client
	now            func() time.Time
	logger         *slog.Logger
}

// NewFlow creates a flow storing its artifacts through sessions. When a
// request context carries a scoped manager (session.Middleware), that
// manager is used instead.
func NewFlow(sessions *session.Manager, oauth *oauth2.Config, opts ...Option) (*Flow, error) {
	f := &Flow{
		sessions: sessions,
		oauth:    oauth,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if f.oauth == nil {
		return nil, errors.New("oauth config is required")
	}
	if len(f.secret) == 0 {
		secret, err := randomToken(stateBytes)
		if err != nil {
			return nil, fmt.Errorf("generating state secret: %w", err)
		}
		f.secret = []byte(secret)
		f.logger.Warn("no state secret configured, using a per-process secret")
	}
	return f, nil
}

func (f *Flow) manager(ctx context.Context) *session.Manager {
	if m, ok := session.FromContext(ctx); ok {
		return m
	}
	return f.sessions
}

func (f *Flow) clientContext(ctx context.Context) context.Context {
	if f.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
}

func stateKey(state string) string    { return session.UserPrefix + state + ":state" }
func verifierKey(state string) string { return session.UserPrefix + state + ":code_verifier" }
func nonceKey(state string) string    { return session.UserPrefix + state + ":nonce" }

// Login stores the artifacts of a new login and returns the authorization URL
func (f *Flow) Login(ctx context.Context, req LoginRequest) (string, error) {
	state, err := newState(f.secret)
	if err != nil {
		return "", fmt.Errorf("creating state: %w", err)
	}
	nonce, err := randomToken(16)
	if err != nil {
		return "", fmt.Errorf("creating nonce: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	m := f.manager(ctx)
	m.SetItems(ctx, stateKey(state), storage.Value{"return_to": safeReturnTo(req.ReturnTo)})
	m.SetItems(ctx, verifierKey(state), storage.Value{"code_verifier": verifier})
	m.SetItems(ctx, nonceKey(state), storage.Value{"nonce": nonce})

	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("nonce", nonce),
	}
	if req.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", req.Prompt))
	}
	for k, v := range req.Params {
		switch k {
		case "state", "nonce", "code_challenge", "code_challenge_method", "client_id", "redirect_uri", "response_type":
			continue
		}
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	f.logger.DebugContext(ctx, "login started", "prompt", req.Prompt)
	return f.oauth.AuthCodeURL(state, opts...), nil
}

// Callback completes a login. The state is consumed on the first attempt,
// so a replayed callback fails with ErrStateNotFound.
func (f *Flow) Callback(ctx context.Context, code, state string) (*CallbackResult, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	if err := verifyState(f.secret, state); err != nil {
		return nil, err
	}

	m := f.manager(ctx)
	saved, ok := m.Get(ctx, stateKey(state))
	if !ok {
		return nil, ErrStateNotFound
	}

	verifier := takeField(ctx, m, verifierKey(state), "code_verifier")
	nonce := takeField(ctx, m, nonceKey(state), "nonce")
	if verifier == "" {
		return nil, ErrStateNotFound
	}

	token, err := f.oauth.Exchange(f.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	if idToken, _ := token.Extra("id_token").(string); idToken != "" {
		if err := checkNonce(idToken, nonce); err != nil {
			return nil, err
		}
	}

	m.SetItems(ctx, TokenKey, tokenValue(token))
	m.Set(ctx, token.AccessToken)

	redirectTo, _ := saved["return_to"].(string)
	f.logger.InfoContext(ctx, "login completed", "device_id", m.DeviceID(ctx))
	return &CallbackResult{RedirectTo: safeReturnTo(redirectTo), Token: token}, nil
}

// takeField reads and removes an artifact, returning one of its fields
func takeField(ctx context.Context, m *session.Manager, key, field string) string {
	v, ok := m.Get(ctx, key)
	if !ok {
		return ""
	}
	m.Delete(ctx, key)
	s, _ := v[field].(string)
	return s
}

// Logout drops the device's session data and empties the flat slot, and
// returns where to send the user: the provider logout page when configured.
// The flat slot is shared by every device, not per device, so it is emptied
// even when it holds the token of another device's later login.
func (f *Flow) Logout(ctx context.Context) string {
	m := f.manager(ctx)
	m.ClearDeviceData(ctx)
	m.Set(ctx, "")

	if f.logoutURL == "" {
		return "/"
	}
	u, err := url.Parse(f.logoutURL)
	if err != nil {
		f.logger.WarnContext(ctx, "invalid logout url", "error", err)
		return "/"
	}
	if f.logoutReturnTo != "" {
		q := u.Query()
		q.Set("redirect", f.logoutReturnTo)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// User returns the stored token of the current device and the claims of its
// id token. An expired token counts as absent.
func (f *Flow) User(ctx context.Context) (*User, error) {
	m := f.manager(ctx)
	v, ok := m.Get(ctx, TokenKey)
	if !ok {
		return nil, ErrNotAuthenticated
	}

	token := tokenFromValue(v)
	if token.AccessToken == "" {
		return nil, ErrNotAuthenticated
	}
	if !token.Expiry.IsZero() && !f.now().Before(token.Expiry) {
		m.Delete(ctx, TokenKey)
		return nil, ErrNotAuthenticated
	}

	user := &User{Token: token, Claims: map[string]any{}}
	if idToken, _ := v["id_token"].(string); idToken != "" {
		claims, err := parseClaims(idToken)
		if err != nil {
			f.logger.WarnContext(ctx, "stored id token unreadable", "error", err)
		} else {
			user.Claims = claims
		}
	}
	return user, nil
}

// CheckHealth verifies the session backend
func (f *Flow) CheckHealth(ctx context.Context) error {
	return f.manager(ctx).CheckHealth(ctx)
}

// safeReturnTo keeps local paths only
func safeReturnTo(s string) string {
	if !strings.HasPrefix(s, "/") || strings.HasPrefix(s, "//") || strings.HasPrefix(s, "/\\") {
		return "/"
	}
	return s
}
