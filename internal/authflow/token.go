package authflow

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/wrale/oauth2-session-store/internal/storage"
)

// User is the signed-in state of a device
type User struct {
	Token  *oauth2.Token
	Claims map[string]any
}

// Subject returns the sub claim of the id token, if any
func (u *User) Subject() string {
	s, _ := u.Claims["sub"].(string)
	return s
}

func tokenValue(t *oauth2.Token) storage.Value {
	v := storage.Value{
		"access_token": t.AccessToken,
		"token_type":   t.TokenType,
	}
	if t.RefreshToken != "" {
		v["refresh_token"] = t.RefreshToken
	}
	if !t.Expiry.IsZero() {
		v["expiry"] = t.Expiry.UTC().Format(time.RFC3339)
	}
	if idToken, _ := t.Extra("id_token").(string); idToken != "" {
		v["id_token"] = idToken
	}
	return v
}

func tokenFromValue(v storage.Value) *oauth2.Token {
	t := &oauth2.Token{}
	t.AccessToken, _ = v["access_token"].(string)
	t.TokenType, _ = v["token_type"].(string)
	t.RefreshToken, _ = v["refresh_token"].(string)
	if s, ok := v["expiry"].(string); ok {
		if exp, err := time.Parse(time.RFC3339, s); err == nil {
			t.Expiry = exp
		}
	}
	return t
}

// parseClaims reads the claims of an id token without verifying its
// signature. The token arrives over the back channel from the token endpoint.
func parseClaims(idToken string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("parsing id token: %w", err)
	}
	return claims, nil
}

// checkNonce ensures the id token carries the nonce sent with the login
func checkNonce(idToken, want string) error {
	claims, err := parseClaims(idToken)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNonceMismatch, err)
	}
	got, _ := claims["nonce"].(string)
	if want == "" || got != want {
		return ErrNonceMismatch
	}
	return nil
}
