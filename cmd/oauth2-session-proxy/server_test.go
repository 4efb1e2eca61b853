package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/wrale/oauth2-session-store/cmd/oauth2-session-proxy/handlers/auth"
	"github.com/wrale/oauth2-session-store/internal/authflow"
	"github.com/wrale/oauth2-session-store/internal/session"
	"github.com/wrale/oauth2-session-store/internal/storage"
)

// tokenEndpoint issues an id token for the nonce of the last login
type tokenEndpoint struct {
	*httptest.Server

	mu    sync.Mutex
	nonce string
}

func newTokenEndpoint(t *testing.T) *tokenEndpoint {
	t.Helper()
	p := &tokenEndpoint{}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		nonce := p.nonce
		p.mu.Unlock()

		idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":   "user-1",
			"nonce": nonce,
		}).SignedString([]byte("provider-key"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	}))
	t.Cleanup(p.Close)
	return p
}

func (p *tokenEndpoint) setNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nonce = nonce
}

type testEnv struct {
	app      *httptest.Server
	provider *tokenEndpoint
	redis    *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	provider := newTokenEndpoint(t)

	storageCfg := storage.Config{Type: storage.TypeRedis, RedisURL: "redis://" + mr.Addr() + "/0"}
	sessions := session.NewManager(
		session.WithLogger(logger),
		session.WithFactory(storage.NewFactory(
			storage.WithFactoryLogger(logger),
			storage.WithEnvDefaults(storage.Config{}),
		)),
		session.WithDefaultConfig(storageCfg),
	)
	if err := sessions.Initialize(t.Context()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { _ = sessions.Close() })

	flow, err := authflow.NewFlow(sessions, &oauth2.Config{
		ClientID:    "client-1",
		RedirectURL: "https://app.test/callback",
		Scopes:      []string{"openid"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   provider.URL + "/authorize",
			TokenURL:  provider.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	},
		authflow.WithLogger(logger),
		authflow.WithStateSecret([]byte("test-secret")),
		authflow.WithHTTPClient(provider.Client()),
		authflow.WithLogoutURL("https://id.example.com/logout", "https://app.test"),
	)
	if err != nil {
		t.Fatalf("NewFlow() error = %v", err)
	}

	app := httptest.NewTLSServer(newServer(sessions, flow, logger).router)
	t.Cleanup(app.Close)

	return &testEnv{app: app, provider: provider, redis: mr}
}

// browser returns a client that keeps cookies and does not follow redirects
func (e *testEnv) browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}
	client := *e.app.Client()
	client.Jar = jar
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &client
}

func get(t *testing.T, client *http.Client, target, userAgent string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, target, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET %s error = %v", target, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func location(t *testing.T, resp *http.Response) *url.URL {
	t.Helper()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %v, want %v", resp.StatusCode, http.StatusFound)
	}
	u, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parsing Location: %v", err)
	}
	return u
}

func TestServer_LoginRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	browser := env.browser(t)
	const ua = "test-browser/1.0"

	authURL := location(t, get(t, browser, env.app.URL+"/login?return_to=%2Fdashboard", ua))
	query := authURL.Query()
	if authURL.Path != "/authorize" || query.Get("state") == "" {
		t.Fatalf("login redirected to %s", authURL)
	}
	env.provider.setNonce(query.Get("nonce"))

	stateKey := "user:" + query.Get("state") + ":state"
	if !env.redis.Exists(stateKey) {
		t.Fatalf("state key %q not stored, keys = %v", stateKey, env.redis.Keys())
	}

	callback := env.app.URL + "/callback?" + url.Values{
		"code":  {"code-1"},
		"state": {query.Get("state")},
	}.Encode()
	if got := location(t, get(t, browser, callback, ua)); got.Path != "/dashboard" {
		t.Errorf("callback redirected to %s, want /dashboard", got)
	}
	if env.redis.Exists(stateKey) {
		t.Errorf("state key %q survived the callback", stateKey)
	}

	var deviceCookie *http.Cookie
	for _, c := range browser.Jar.Cookies(mustParse(t, env.app.URL)) {
		if c.Name == session.DeviceCookie {
			deviceCookie = c
		}
	}
	if deviceCookie == nil {
		t.Fatal("device cookie not set")
	}

	resp := get(t, browser, env.app.URL+"/user", ua)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/user status = %v, want %v", resp.StatusCode, http.StatusOK)
	}
	var user auth.UserResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		t.Fatalf("decoding /user: %v", err)
	}
	if user.Subject != "user-1" {
		t.Errorf("/user sub = %q, want user-1", user.Subject)
	}

	// The cookie pins the device even when the fingerprint changes
	if resp := get(t, browser, env.app.URL+"/user", "other-browser/2.0"); resp.StatusCode != http.StatusOK {
		t.Errorf("/user with device cookie status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	// A different client has its own device namespace
	if resp := get(t, env.browser(t), env.app.URL+"/user", "other-browser/2.0"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("/user from another device status = %v, want %v", resp.StatusCode, http.StatusUnauthorized)
	}

	// Replaying the callback fails
	if resp := get(t, browser, callback, ua); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("replayed callback status = %v, want %v", resp.StatusCode, http.StatusBadRequest)
	}

	logout := location(t, get(t, browser, env.app.URL+"/logout", ua))
	if logout.Host != "id.example.com" || logout.Query().Get("redirect") != "https://app.test" {
		t.Errorf("logout redirected to %s", logout)
	}
	if resp := get(t, browser, env.app.URL+"/user", ua); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("/user after logout status = %v, want %v", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)

	resp := get(t, env.app.Client(), env.app.URL+"/health", "probe")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/health status = %v, want %v", resp.StatusCode, http.StatusOK)
	}
	var body struct {
		Status  string                    `json:"status"`
		Details map[string]map[string]any `json:"details"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding /health: %v", err)
	}
	if body.Status != "healthy" || body.Details["session_storage"]["type"] != storage.TypeRedis {
		t.Errorf("/health body = %+v", body)
	}

	env.redis.SetError("LOADING")
	if resp := get(t, env.app.Client(), env.app.URL+"/health", "probe"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/health with failing redis status = %v, want %v", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestServer_RegisterAsksForSignUp(t *testing.T) {
	env := newTestEnv(t)

	authURL := location(t, get(t, env.browser(t), env.app.URL+"/register", "ua"))
	if got := authURL.Query().Get("prompt"); got != authflow.PromptCreate {
		t.Errorf("prompt = %q, want %q", got, authflow.PromptCreate)
	}
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", raw, err)
	}
	return u
}
