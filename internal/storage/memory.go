package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process backend. Its contents live as long as the
// process and it is the fallback when no other backend can be built.
//
// It applies the same TTL and single-read rules as the networked backend. It
// exposes its key set through Introspector but has no native prefix clearing.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	flat     string
	stateTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewMemoryStore creates an empty in-process backend
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := newOptions(opts)
	return &MemoryStore{
		entries:  make(map[string]memoryEntry),
		stateTTL: o.stateTTL,
		now:      o.now,
		logger:   o.logger,
	}
}

// Get returns the value for key. Consumable keys are removed by the read.
func (s *MemoryStore) Get(ctx context.Context, key string) (Value, bool) {
	data, err := s.get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "memory get failed", "key", key, "error", err)
		}
		return nil, false
	}

	value, err := decodeValue(data)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "memory get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return value, true
}

func (s *MemoryStore) get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if entry.expired(s.now()) {
		delete(s.entries, key)
		return nil, ErrNotFound
	}
	if IsConsumable(key) {
		delete(s.entries, key)
	}
	return entry.data, nil
}

// Set stores value under key, applying the state TTL to TTL artifacts
func (s *MemoryStore) Set(ctx context.Context, key string, value Value) {
	data, err := encodeValue(value)
	if err != nil {
		s.logger.WarnContext(ctx, "memory set failed", "key", key, "error", err)
		return
	}

	entry := memoryEntry{data: data}
	if IsTTLArtifact(key) && s.stateTTL > 0 {
		entry.expiresAt = s.now().Add(s.stateTTL)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
}

// Delete removes key
func (s *MemoryStore) Delete(ctx context.Context, key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// SetFlat stores value in the flat slot
func (s *MemoryStore) SetFlat(ctx context.Context, value string) {
	s.mu.Lock()
	s.flat = value
	s.mu.Unlock()
}

// Flat returns the content of the flat slot
func (s *MemoryStore) Flat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flat
}

// Keys lists the live keys. Expired entries are dropped as a side effect.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	keys := make([]string, 0, len(s.entries))
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// CheckHealth always succeeds for the in-process backend
func (s *MemoryStore) CheckHealth(ctx context.Context) error {
	return nil
}

var (
	_ Store         = (*MemoryStore)(nil)
	_ Introspector  = (*MemoryStore)(nil)
	_ HealthChecker = (*MemoryStore)(nil)
)
