package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wrale/oauth2-session-store/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// noClient reports no request, forcing random device ids
func noClient(context.Context) (string, string, bool) {
	return "", "", false
}

// fixedClient reports the same client for every call
func fixedClient(ip, ua string) DeviceContextFunc {
	return func(context.Context) (string, string, bool) {
		return ip, ua, true
	}
}

func newTestManager(opts ...Option) *Manager {
	base := []Option{
		WithLogger(discardLogger()),
		WithFactory(storage.NewFactory(
			storage.WithFactoryLogger(discardLogger()),
			storage.WithEnvDefaults(storage.Config{RedisURL: "redis://127.0.0.1:1/0"}),
		)),
		WithDefaultConfig(storage.Config{Type: storage.TypeMemory}),
		WithDeviceContext(noClient),
	}
	return NewManager(append(base, opts...)...)
}

func newMemoryStore() *storage.MemoryStore {
	return storage.NewMemoryStore(storage.WithLogger(discardLogger()))
}

func newRedisStore(t *testing.T) (*storage.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return storage.NewRedisStoreFromClient(rdb, storage.WithLogger(discardLogger())), mr
}

func mustInitialize(t *testing.T, m *Manager, opts ...InitOption) {
	t.Helper()
	if err := m.Initialize(context.Background(), opts...); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
}

// plainStore implements only the storage contract, without capabilities
type plainStore struct {
	mu   sync.Mutex
	data map[string]storage.Value
	flat string
}

func newPlainStore() *plainStore {
	return &plainStore{data: make(map[string]storage.Value)}
}

func (s *plainStore) Get(_ context.Context, key string) (storage.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *plainStore) Set(_ context.Context, key string, value storage.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *plainStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

func (s *plainStore) SetFlat(_ context.Context, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flat = value
}

func (s *plainStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

// closingStore counts Close calls
type closingStore struct {
	*plainStore
	closed int
}

func (s *closingStore) Close() error {
	s.closed++
	return nil
}
