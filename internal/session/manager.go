// Package session namespaces storage keys by device and owns the lifecycle of
// the active storage backend.
//
// Logical keys fall into three scope classes, checked in order:
//
//	global:...   shared by every device, stored as is
//	user:...     device independent, stored as is
//	anything     stored as device:{device id}:{key}
//
// A Manager holds one active backend at a time. Routine reads and writes go
// straight to that backend; a single lock guards backend (re)configuration
// and device identifier derivation.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wrale/oauth2-session-store/internal/storage"
	"github.com/wrale/oauth2-session-store/internal/validation"
)

// Key scope prefixes
const (
	GlobalPrefix = "global:"
	UserPrefix   = "user:"
	DevicePrefix = "device:"
)

// KindCustom is reported by StorageType for a backend installed with
// WithStore whose kind cannot be determined.
const KindCustom = "custom"

type backend struct {
	store storage.Store
	kind  string
}

// core is the state shared by a manager and the managers scoped from it
type core struct {
	mu      sync.Mutex
	current atomic.Pointer[backend]

	factory       *storage.Factory
	defaults      storage.Config
	defaultsSet   bool
	deviceContext DeviceContextFunc
	logger        *slog.Logger
}

// Manager routes logical keys to the active backend.
//
// The device identifier is derived on first use and cached for the life of
// the Manager, until Reset. A server handling many clients should give each
// request its own identifier with Scoped or Middleware.
type Manager struct {
	shared *core

	// guarded by shared.mu
	deviceID string
}

// NewManager creates a manager with no backend. The backend is built on
// first use or by Initialize.
func NewManager(opts ...Option) *Manager {
	c := &core{
		deviceContext: defaultDeviceContext,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.factory == nil {
		c.factory = storage.NewFactory(storage.WithFactoryLogger(c.logger))
	}
	if !c.defaultsSet {
		cfg, err := storage.ConfigFromEnv()
		if err != nil {
			c.logger.Warn("session storage environment invalid, using defaults", "error", err)
		}
		c.defaults = cfg
	}

	return &Manager{shared: c}
}

var defaultManager = sync.OnceValue(func() *Manager {
	return NewManager()
})

// Default returns the process-wide manager, configured from the environment
func Default() *Manager {
	return defaultManager()
}

// Scoped returns a manager that shares m's backend but derives and caches
// its own device identifier.
func (m *Manager) Scoped() *Manager {
	return &Manager{shared: m.shared}
}

// Initialize replaces the active backend. With WithStore the given backend is
// installed as is; with WithConfig it is built by the factory; with neither
// the default config is used. The previous backend is closed if it holds a
// resource. An assigned device identifier survives unless WithDeviceID
// supplies a new one.
func (m *Manager) Initialize(ctx context.Context, opts ...InitOption) error {
	var o initOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.deviceID != "" {
		if err := validation.ValidateDeviceID(o.deviceID); err != nil {
			return fmt.Errorf("initializing session storage: %w", err)
		}
	}

	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	m.initLocked(ctx, o)
	return nil
}

func (m *Manager) initLocked(ctx context.Context, o initOptions) {
	next := &backend{store: o.store}
	if next.store != nil {
		next.kind = kindOf(next.store, "")
	} else {
		cfg := m.shared.defaults
		if o.cfg != nil {
			cfg = *o.cfg
		}
		next.store = m.shared.factory.Create(ctx, cfg)
		next.kind = kindOf(next.store, cfg.Type)
	}

	if prev := m.shared.current.Swap(next); prev != nil && prev.store != next.store {
		m.closeStore(ctx, prev.store)
	}
	if o.deviceID != "" {
		m.deviceID = o.deviceID
	}

	m.shared.logger.InfoContext(ctx, "session storage initialized", "type", next.kind)
}

// ensureLocked returns the active backend, building the default one first if
// none is installed. The caller holds shared.mu.
func (m *Manager) ensureLocked(ctx context.Context) *backend {
	if b := m.shared.current.Load(); b != nil {
		return b
	}
	m.initLocked(ctx, initOptions{})
	return m.shared.current.Load()
}

func (m *Manager) active(ctx context.Context) *backend {
	if b := m.shared.current.Load(); b != nil {
		return b
	}

	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	return m.ensureLocked(ctx)
}

func (m *Manager) closeStore(ctx context.Context, store storage.Store) {
	closer, ok := store.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		m.shared.logger.WarnContext(ctx, "closing previous session storage failed", "error", err)
	}
}

// DeviceID returns the cached device identifier, deriving it on first call
func (m *Manager) DeviceID(ctx context.Context) string {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()

	if m.deviceID == "" {
		b := m.ensureLocked(ctx)
		m.deviceID = m.deriveDeviceID(ctx, b.store)
	}
	return m.deviceID
}

// namespacedKey maps a logical key to its physical key
func (m *Manager) namespacedKey(ctx context.Context, key string) string {
	if strings.HasPrefix(key, GlobalPrefix) || strings.HasPrefix(key, UserPrefix) {
		return key
	}
	return devicePrefix(m.DeviceID(ctx)) + key
}

func devicePrefix(deviceID string) string {
	return DevicePrefix + deviceID + ":"
}

func (m *Manager) checkKey(ctx context.Context, op, key string) bool {
	if err := validation.ValidateKey(key); err != nil {
		m.shared.logger.WarnContext(ctx, "session key rejected", "op", op, "error", err)
		return false
	}
	return true
}

// Get returns the value stored under the logical key
func (m *Manager) Get(ctx context.Context, key string) (storage.Value, bool) {
	if !m.checkKey(ctx, "get", key) {
		return nil, false
	}
	b := m.active(ctx)
	return b.store.Get(ctx, m.namespacedKey(ctx, key))
}

// SetItems stores value under the logical key
func (m *Manager) SetItems(ctx context.Context, key string, value storage.Value) {
	if !m.checkKey(ctx, "set", key) {
		return
	}
	b := m.active(ctx)
	b.store.Set(ctx, m.namespacedKey(ctx, key), value)
}

// Delete removes the logical key
func (m *Manager) Delete(ctx context.Context, key string) {
	if !m.checkKey(ctx, "delete", key) {
		return
	}
	b := m.active(ctx)
	b.store.Delete(ctx, m.namespacedKey(ctx, key))
}

// Set writes raw to the backend's flat slot. The slot is outside the
// namespacing scheme and shared by every device.
func (m *Manager) Set(ctx context.Context, raw string) {
	m.active(ctx).store.SetFlat(ctx, raw)
}

// ClearDeviceData deletes every key in the current device's namespace.
//
// How thoroughly this works depends on the backend. A backend with a native
// prefix scan (Redis) clears the namespace server side. The in-process
// backend is cleared by walking its key set. Any other backend supports
// neither, and the call only logs: the device's keys stay until they expire
// or are overwritten. Calling it before a backend is installed does nothing.
func (m *Manager) ClearDeviceData(ctx context.Context) {
	b := m.shared.current.Load()
	if b == nil {
		return
	}
	prefix := devicePrefix(m.DeviceID(ctx))

	switch s := b.store.(type) {
	case storage.PrefixClearer:
		s.ClearPrefix(ctx, prefix)
	case storage.Introspector:
		for _, key := range s.Keys() {
			if strings.HasPrefix(key, prefix) {
				b.store.Delete(ctx, key)
			}
		}
	default:
		m.shared.logger.DebugContext(ctx, "session storage cannot enumerate keys, device data left in place",
			"type", b.kind, "prefix", prefix)
	}
}

// Reset drops the active backend and the cached device identifier, then
// installs a fresh in-process backend.
func (m *Manager) Reset(ctx context.Context) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()

	m.deviceID = ""
	m.initLocked(ctx, initOptions{cfg: &storage.Config{Type: storage.TypeMemory}})
}

// Close releases the active backend. A later operation installs a new one.
func (m *Manager) Close() error {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()

	b := m.shared.current.Swap(nil)
	if b == nil {
		return nil
	}
	if closer, ok := b.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// StorageType reports the kind of the active backend, or "" before one is
// installed.
func (m *Manager) StorageType() string {
	if b := m.shared.current.Load(); b != nil {
		return b.kind
	}
	return ""
}

// CheckHealth reports whether the active backend is reachable
func (m *Manager) CheckHealth(ctx context.Context) error {
	b := m.active(ctx)
	hc, ok := b.store.(storage.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.CheckHealth(ctx); err != nil {
		return fmt.Errorf("session storage %s: %w", b.kind, err)
	}
	return nil
}

func kindOf(store storage.Store, requested string) string {
	switch store.(type) {
	case *storage.RedisStore:
		return storage.TypeRedis
	case *storage.MemoryStore:
		return storage.TypeMemory
	}
	if requested != "" && requested != storage.TypeRedis && requested != storage.TypeMemory {
		return requested
	}
	return KindCustom
}
