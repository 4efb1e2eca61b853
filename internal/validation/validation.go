// Package validation checks identifiers that cross a trust boundary: device
// identifiers read back from cookies, storage keys, and OAuth state tokens
// echoed by the authorization server.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation settings
const (
	MaxDeviceIDLength = 64  // Longest accepted device identifier
	MinStateLength    = 16  // Shortest accepted OAuth state token
	MaxStateLength    = 512 // Longest accepted OAuth state token
)

var (
	// Device identifiers are hex fingerprints or UUIDs in practice; the
	// charset is kept wide enough to accept either plus URL-safe ids.
	deviceIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

	// State tokens are base64url without padding, optionally followed by a
	// "." and a base64url signature.
	stateRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)?$`)
)

// ValidationError represents a rejected identifier
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
}

// ValidateDeviceID checks a device identifier before it is used in a key
// prefix. The ":" separator is rejected so that one device can never address
// another device's namespace.
func ValidateDeviceID(id string) error {
	if id == "" {
		return &ValidationError{Field: "device id", Value: id, Message: "must not be empty"}
	}
	if len(id) > MaxDeviceIDLength {
		return &ValidationError{
			Field:   "device id",
			Value:   id,
			Message: fmt.Sprintf("length must be at most %d characters", MaxDeviceIDLength),
		}
	}
	if !deviceIDRegex.MatchString(id) {
		return &ValidationError{
			Field:   "device id",
			Value:   id,
			Message: "may only contain letters, digits, '-' and '_'",
		}
	}
	return nil
}

// ValidateKey checks a logical storage key. Backends are binary safe, so
// any non-empty key is accepted.
func ValidateKey(key string) error {
	if key == "" {
		return &ValidationError{Field: "key", Value: key, Message: "must not be empty"}
	}
	return nil
}

// ValidateState checks an OAuth state token received on a callback
func ValidateState(state string) error {
	state = strings.TrimSpace(state)
	if len(state) < MinStateLength || len(state) > MaxStateLength {
		return &ValidationError{
			Field:   "state",
			Value:   state,
			Message: fmt.Sprintf("length must be between %d and %d characters", MinStateLength, MaxStateLength),
		}
	}
	if !stateRegex.MatchString(state) {
		return &ValidationError{Field: "state", Value: state, Message: "must be base64url encoded"}
	}
	return nil
}
