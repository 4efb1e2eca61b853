// Package storage implements the key-value backends used to persist short-lived
// authentication artifacts and per-device session data.
//
// Every backend satisfies Store. Store operations never return errors: backend
// failures are logged and degrade to an absent value (Get) or a no-op (Set,
// Delete, SetFlat). Callers must treat persistence as best-effort.
//
// Keys reaching a backend are already namespaced by the session manager. Keys
// whose name ends in "state", "nonce" or "code_verifier" are short-lived
// artifacts and expire after the configured TTL; keys ending in "state" are
// consumed on read.
package storage

import (
	"context"
	"time"
)

// DefaultStateTTL bounds the lifetime of state, nonce and code verifier values.
const DefaultStateTTL = 600 * time.Second

// DefaultFlatKey is the well-known slot used by SetFlat.
const DefaultFlatKey = "kinde:core:flat_data"

// Value is a structured payload. It is stored as JSON text.
type Value map[string]any

// Store is the storage contract all backends satisfy.
type Store interface {
	// Get returns the value stored under key, or false when it is absent,
	// expired, undecodable or the backend failed.
	Get(ctx context.Context, key string) (Value, bool)

	// Set stores value under key.
	Set(ctx context.Context, key string, value Value)

	// Delete removes key.
	Delete(ctx context.Context, key string)

	// SetFlat stores a single opaque value in the backend's flat slot.
	SetFlat(ctx context.Context, value string)
}

// PrefixClearer is implemented by backends that can delete every key sharing
// a prefix with a native scan.
type PrefixClearer interface {
	ClearPrefix(ctx context.Context, prefix string)
}

// Introspector is implemented by backends whose key set can be listed
// directly. Only in-process backends provide it.
type Introspector interface {
	Keys() []string
}

// CookieStore is implemented by backends that can carry values through the
// client-side cookie channel of the in-flight request.
type CookieStore interface {
	// CookieSet queues value as a cookie named key.
	CookieSet(ctx context.Context, key string, value any)

	// CookieGet decodes the cookie named key into out. It reports false when
	// the cookie is absent or cannot be decoded.
	CookieGet(ctx context.Context, key string, out any) bool
}

// HealthChecker is implemented by backends that can report their health.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}
