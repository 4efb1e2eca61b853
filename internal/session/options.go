package session

import (
	"context"
	"log/slog"

	"github.com/wrale/oauth2-session-store/internal/httpctx"
	"github.com/wrale/oauth2-session-store/internal/storage"
)

// DeviceContextFunc reports the client address and User-Agent of the request
// carried by ctx. ok is false outside a request.
type DeviceContextFunc func(ctx context.Context) (ip, userAgent string, ok bool)

// Option configures a Manager
type Option func(*core)

// WithLogger sets the manager logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *core) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFactory sets the factory used to build backends from a Config
func WithFactory(f *storage.Factory) Option {
	return func(c *core) {
		if f != nil {
			c.factory = f
		}
	}
}

// WithDefaultConfig sets the config used when Initialize is called without
// a store or config, and by auto-initialization. Without it the manager
// reads REDIS_URL and STATE_TTL.
func WithDefaultConfig(cfg storage.Config) Option {
	return func(c *core) {
		c.defaults = cfg
		c.defaultsSet = true
	}
}

// WithDeviceContext replaces the request information source used for
// device fingerprinting. The default reads httpctx.
func WithDeviceContext(fn DeviceContextFunc) Option {
	return func(c *core) {
		if fn != nil {
			c.deviceContext = fn
		}
	}
}

var defaultDeviceContext DeviceContextFunc = httpctx.ClientInfo

type initOptions struct {
	store    storage.Store
	cfg      *storage.Config
	deviceID string
}

// InitOption configures a single Initialize call
type InitOption func(*initOptions)

// WithStore installs a pre-built backend, bypassing the factory
func WithStore(store storage.Store) InitOption {
	return func(o *initOptions) {
		o.store = store
	}
}

// WithConfig builds the backend from cfg through the factory
func WithConfig(cfg storage.Config) InitOption {
	return func(o *initOptions) {
		o.cfg = &cfg
	}
}

// WithDeviceID assigns the device identifier explicitly
func WithDeviceID(id string) InitOption {
	return func(o *initOptions) {
		o.deviceID = id
	}
}
