package storage

import (
	"context"
	"log/slog"
	"sync"
)

// Constructor builds a backend from cfg
type Constructor func(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error)

// Factory resolves a Config into a backend. Create never fails: when the
// requested backend cannot be built it falls back to Redis, and when Redis
// cannot be built either it falls back to the in-process backend.
type Factory struct {
	mu         sync.RWMutex
	registered map[string]Constructor
	redis      Constructor
	env        Config
	envSet     bool
	logger     *slog.Logger
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithFactoryLogger sets the factory logger, also handed to constructors
func WithFactoryLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithEnvDefaults sets the connection defaults used when a Config leaves
// them unset. Without it the factory reads REDIS_URL and STATE_TTL.
func WithEnvDefaults(cfg Config) FactoryOption {
	return func(f *Factory) {
		f.env = cfg
		f.envSet = true
	}
}

// withRedisConstructor replaces the networked constructor
func withRedisConstructor(c Constructor) FactoryOption {
	return func(f *Factory) {
		f.redis = c
	}
}

// NewFactory creates a factory with no registered backends
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		registered: make(map[string]Constructor),
		redis:      newRedisBackend,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(f)
	}

	if !f.envSet {
		env, err := ConfigFromEnv()
		if err != nil {
			f.logger.Warn("storage environment invalid, using defaults", "error", err)
		}
		f.env = env
	}
	return f
}

// Register adds a named backend constructor. A later registration under the
// same name replaces the earlier one.
func (f *Factory) Register(name string, c Constructor) {
	f.logger.Info("registering storage backend", "type", name)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[name] = c
}

// Create builds the backend for cfg, applying the fallback order
func (f *Factory) Create(ctx context.Context, cfg Config) Store {
	cfg = cfg.withDefaults(f.env)

	f.mu.RLock()
	registered, ok := f.registered[cfg.Type]
	f.mu.RUnlock()

	switch {
	case ok:
		store, err := registered(ctx, cfg, f.logger)
		if err == nil && store != nil {
			return store
		}
		f.logger.WarnContext(ctx, "registered storage failed, falling back to redis", "type", cfg.Type, "error", err)
		return f.redisOrMemory(ctx, cfg)

	case cfg.Type == TypeMemory:
		return f.memory(cfg)

	case cfg.Type == TypeRedis:
		return f.redisOrMemory(ctx, cfg)

	default:
		if cfg.Type != "" {
			f.logger.WarnContext(ctx, "unsupported storage type, trying redis", "type", cfg.Type)
		}
		return f.redisOrMemory(ctx, cfg)
	}
}

func (f *Factory) redisOrMemory(ctx context.Context, cfg Config) Store {
	store, err := f.redis(ctx, cfg, f.logger)
	if err == nil && store != nil {
		return store
	}
	f.logger.WarnContext(ctx, "redis storage failed, falling back to memory", "error", err)
	return f.memory(cfg)
}

func (f *Factory) memory(cfg Config) Store {
	return NewMemoryStore(WithLogger(f.logger), WithStateTTL(cfg.StateTTL))
}

func newRedisBackend(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	store, err := NewRedisStore(ctx, cfg.RedisURL, WithLogger(logger), WithStateTTL(cfg.StateTTL))
	if err != nil {
		return nil, err
	}
	return store, nil
}
