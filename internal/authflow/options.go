package authflow

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Flow
type Option func(*Flow)

// WithLogger sets the flow logger
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithStateSecret sets the key used to sign state parameters. Instances
// sharing a backend must share the secret.
func WithStateSecret(secret []byte) Option {
	return func(f *Flow) {
		f.secret = secret
	}
}

// WithLogoutURL sets the provider logout endpoint and the address the
// provider returns to afterwards
func WithLogoutURL(logoutURL, returnTo string) Option {
	return func(f *Flow) {
		f.logoutURL = logoutURL
		f.logoutReturnTo = returnTo
	}
}

// WithHTTPClient sets the client used to reach the token endpoint
func WithHTTPClient(client *http.Client) Option {
	return func(f *Flow) {
		f.httpClient = client
	}
}

// withClock replaces the time source used for token expiry checks
func withClock(now func() time.Time) Option {
	return func(f *Flow) {
		f.now = now
	}
}
