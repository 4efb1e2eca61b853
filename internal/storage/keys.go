package storage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// IsTTLArtifact reports whether key holds a short-lived OAuth artifact that
// must expire after the state TTL. Matching is a case-insensitive suffix match.
func IsTTLArtifact(key string) bool {
	lowered := strings.ToLower(key)
	return strings.HasSuffix(lowered, "state") ||
		strings.HasSuffix(lowered, "nonce") ||
		strings.HasSuffix(lowered, "code_verifier")
}

// IsConsumable reports whether reading key must atomically delete it.
// Only state keys qualify; nonce and code_verifier keys expire by TTL but
// survive a read, and callers delete them once used.
func IsConsumable(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), "state")
}

func encodeValue(value Value) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshaling value: %w", err)
	}
	return data, nil
}

func decodeValue(data []byte) (Value, error) {
	var value Value
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if value == nil {
		// JSON null
		return nil, ErrNotFound
	}
	return value, nil
}
