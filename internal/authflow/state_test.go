package authflow

import (
	"errors"
	"strings"
	"testing"
)

func TestState(t *testing.T) {
	secret := []byte("test-secret")

	state, err := newState(secret)
	if err != nil {
		t.Fatalf("newState() error = %v", err)
	}
	if err := verifyState(secret, state); err != nil {
		t.Errorf("verifyState() error = %v for fresh state", err)
	}

	other, err := newState(secret)
	if err != nil {
		t.Fatalf("newState() error = %v", err)
	}
	if other == state {
		t.Error("newState() returned the same state twice")
	}

	token, sig, _ := strings.Cut(state, ".")
	flipped := "A" + token[1:]
	if token[0] == 'A' {
		flipped = "B" + token[1:]
	}
	tests := []struct {
		name  string
		state string
	}{
		{name: "wrong secret", state: token + "." + sign([]byte("other"), token)},
		{name: "swapped token", state: flipped + "." + sig},
		{name: "unsigned", state: token},
		{name: "bad signature encoding", state: token + ".!!!"},
		{name: "empty", state: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := verifyState(secret, tt.state); !errors.Is(err, ErrInvalidState) {
				t.Errorf("verifyState() error = %v, want ErrInvalidState", err)
			}
		})
	}
}
