package storage

import (
	"log/slog"
	"time"
)

type options struct {
	logger   *slog.Logger
	stateTTL time.Duration
	flatKey  string
	now      func() time.Time
}

func newOptions(opts []Option) options {
	o := options{
		logger:   slog.Default(),
		stateTTL: DefaultStateTTL,
		flatKey:  DefaultFlatKey,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a backend
type Option func(*options)

// WithLogger sets the logger used to report degraded operations
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStateTTL sets the expiry applied to state, nonce and code verifier keys.
// A non-positive TTL disables expiry.
func WithStateTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.stateTTL = ttl
	}
}

// WithFlatKey overrides the name of the flat slot
func WithFlatKey(key string) Option {
	return func(o *options) {
		if key != "" {
			o.flatKey = key
		}
	}
}

// withClock replaces the time source of the in-memory backend
func withClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
