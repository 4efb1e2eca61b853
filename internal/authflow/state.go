package authflow

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/wrale/oauth2-session-store/internal/validation"
)

const stateBytes = 32

// randomToken returns n random bytes, base64url encoded without padding
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// newState creates a random state parameter signed with secret
func newState(secret []byte) (string, error) {
	token, err := randomToken(stateBytes)
	if err != nil {
		return "", err
	}
	return token + "." + sign(secret, token), nil
}

// verifyState checks the format and signature of a state parameter
func verifyState(secret []byte, state string) error {
	if err := validation.ValidateState(state); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	token, sig, ok := strings.Cut(state, ".")
	if !ok {
		return ErrInvalidState
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return ErrInvalidState
	}

	h := hmac.New(sha256.New, secret)
	h.Write([]byte(token))
	if !hmac.Equal(h.Sum(nil), got) {
		return ErrInvalidState
	}
	return nil
}

func sign(secret []byte, token string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
