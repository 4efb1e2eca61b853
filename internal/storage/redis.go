package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisURL is used when no connection URL is configured
	DefaultRedisURL = "redis://redis:6379/0"

	// Client-side bounds for every Redis round trip.
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second

	pingTimeout = 5 * time.Second
	scanCount   = 500
)

// RedisStore is the networked backend. Keys are stored exactly as received,
// values as UTF-8 JSON text.
//
// Consumable keys are read with GET and DEL inside one MULTI/EXEC so that
// concurrent readers observe a state value at most once.
type RedisStore struct {
	CookieChannel

	client   redis.UniversalClient
	stateTTL time.Duration
	flatKey  string
	logger   *slog.Logger
}

// NewRedisStore connects to the server at redisURL and verifies the
// connection. The URL carries host, port and database index, for example
// redis://cache:6379/2. An unreachable server yields ErrConnect.
func NewRedisStore(ctx context.Context, redisURL string, opts ...Option) (*RedisStore, error) {
	if redisURL == "" {
		redisURL = DefaultRedisURL
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	redisOpts.DialTimeout = DefaultDialTimeout
	redisOpts.ReadTimeout = DefaultReadTimeout
	redisOpts.WriteTimeout = DefaultWriteTimeout

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	return NewRedisStoreFromClient(client, opts...), nil
}

// NewRedisStoreFromClient wraps an existing client without checking it
func NewRedisStoreFromClient(client redis.UniversalClient, opts ...Option) *RedisStore {
	o := newOptions(opts)
	return &RedisStore{
		CookieChannel: NewCookieChannel(o.logger),
		client:        client,
		stateTTL:      o.stateTTL,
		flatKey:       o.flatKey,
		logger:        o.logger,
	}
}

// Get returns the value stored under key
func (s *RedisStore) Get(ctx context.Context, key string) (Value, bool) {
	data, err := s.get(ctx, key)
	if err == nil {
		var value Value
		value, err = decodeValue(data)
		if err == nil {
			return value, true
		}
	}

	if !errors.Is(err, ErrNotFound) {
		s.logger.WarnContext(ctx, "redis get failed", "key", key, "error", err)
	}
	return nil, false
}

func (s *RedisStore) get(ctx context.Context, key string) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	if IsConsumable(key) {
		data, err = s.pop(ctx, key)
	} else {
		data, err = s.client.Get(ctx, key).Bytes()
	}
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

// pop reads and deletes key in a single transaction
func (s *RedisStore) pop(ctx context.Context, key string) ([]byte, error) {
	var getCmd *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		getCmd = pipe.Get(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("popping key: %w", err)
	}
	return getCmd.Bytes()
}

// Set stores value under key. TTL artifacts expire after the state TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value Value) {
	if err := s.set(ctx, key, value); err != nil {
		s.logger.WarnContext(ctx, "redis set failed", "key", key, "error", err)
	}
}

func (s *RedisStore) set(ctx context.Context, key string, value Value) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if IsTTLArtifact(key) && s.stateTTL > 0 {
		ttl = s.stateTTL
	}
	return s.client.Set(ctx, key, string(data), ttl).Err()
}

// Delete removes key
func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.WarnContext(ctx, "redis delete failed", "key", key, "error", err)
	}
}

// SetFlat stores value under the flat slot key
func (s *RedisStore) SetFlat(ctx context.Context, value string) {
	if err := s.client.Set(ctx, s.flatKey, value, 0).Err(); err != nil {
		s.logger.WarnContext(ctx, "redis set flat failed", "key", s.flatKey, "error", err)
	}
}

// ClearPrefix deletes every key starting with prefix.
//
// The scan is not atomic: a key written under prefix while the scan runs may
// survive. Short-lived artifacts still expire through their TTL.
func (s *RedisStore) ClearPrefix(ctx context.Context, prefix string) {
	if err := s.clearPrefix(ctx, prefix); err != nil {
		s.logger.WarnContext(ctx, "redis clear prefix failed", "prefix", prefix, "error", err)
	}
}

func (s *RedisStore) clearPrefix(ctx context.Context, prefix string) error {
	pattern := escapePattern(prefix) + "*"
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return fmt.Errorf("scanning keys: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("deleting keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// CheckHealth verifies Redis connectivity
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close releases the client connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// escapePattern escapes glob metacharacters for SCAN MATCH
func escapePattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var (
	_ Store         = (*RedisStore)(nil)
	_ PrefixClearer = (*RedisStore)(nil)
	_ CookieStore   = (*RedisStore)(nil)
	_ HealthChecker = (*RedisStore)(nil)
)
