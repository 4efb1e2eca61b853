package authflow

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/wrale/oauth2-session-store/internal/session"
	"github.com/wrale/oauth2-session-store/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider is a token endpoint that checks PKCE and issues an id token
// carrying the nonce of the last login.
type fakeProvider struct {
	*httptest.Server

	mu        sync.Mutex
	challenge string
	nonce     string
	reject    bool
	exchanges int
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serveToken))
	t.Cleanup(p.Close)
	return p
}

func (p *fakeProvider) serveToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.exchanges++

	sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
	if p.reject || base64.RawURLEncoding.EncodeToString(sum[:]) != p.challenge {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": "user@example.com",
		"nonce": p.nonce,
	}).SignedString([]byte("provider-key"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  "access-" + r.PostForm.Get("code"),
		"token_type":    "Bearer",
		"refresh_token": "refresh-1",
		"expires_in":    3600,
		"id_token":      idToken,
	})
}

func (p *fakeProvider) set(challenge, nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.challenge = challenge
	p.nonce = nonce
}

func (p *fakeProvider) setNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nonce = nonce
}

func (p *fakeProvider) setReject() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reject = true
}

func (p *fakeProvider) exchangeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchanges
}

func (p *fakeProvider) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURL:  "http://app.test/callback",
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.URL + "/authorize",
			TokenURL:  p.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func newTestManager(t *testing.T, opts ...session.InitOption) *session.Manager {
	t.Helper()
	m := session.NewManager(
		session.WithLogger(discardLogger()),
		session.WithFactory(storage.NewFactory(
			storage.WithFactoryLogger(discardLogger()),
			storage.WithEnvDefaults(storage.Config{}),
		)),
		session.WithDefaultConfig(storage.Config{Type: storage.TypeMemory}),
		session.WithDeviceContext(func(context.Context) (string, string, bool) { return "", "", false }),
	)
	opts = append([]session.InitOption{session.WithDeviceID("dev1")}, opts...)
	if err := m.Initialize(context.Background(), opts...); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return m
}

func newTestFlow(t *testing.T, m *session.Manager, p *fakeProvider, opts ...Option) *Flow {
	t.Helper()
	opts = append([]Option{
		WithLogger(discardLogger()),
		WithStateSecret([]byte("test-secret")),
		WithHTTPClient(p.Client()),
	}, opts...)
	f, err := NewFlow(m, p.oauthConfig(), opts...)
	if err != nil {
		t.Fatalf("NewFlow() error = %v", err)
	}
	return f
}

// startLogin begins a login and primes the provider with its PKCE challenge
// and nonce, returning the state
func startLogin(t *testing.T, f *Flow, p *fakeProvider, req LoginRequest) string {
	t.Helper()
	authURL, err := f.Login(context.Background(), req)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parsing auth url: %v", err)
	}
	q := u.Query()
	p.set(q.Get("code_challenge"), q.Get("nonce"))
	return q.Get("state")
}
