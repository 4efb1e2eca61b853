package authflow

import "errors"

// Errors returned by the login flow
var (
	// ErrMissingCode indicates the callback carried no authorization code
	ErrMissingCode = errors.New("missing authorization code")

	// ErrInvalidState indicates a malformed or forged state parameter
	ErrInvalidState = errors.New("invalid state")

	// ErrStateNotFound indicates the state was already used or has expired
	ErrStateNotFound = errors.New("state not found or already used")

	// ErrExchange indicates the token endpoint rejected the authorization code
	ErrExchange = errors.New("code exchange failed")

	// ErrNonceMismatch indicates the id token was not issued for this login
	ErrNonceMismatch = errors.New("id token nonce mismatch")

	// ErrNotAuthenticated indicates no usable token is stored for the device
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidReauthState indicates an undecodable reauth_state parameter
	ErrInvalidReauthState = errors.New("invalid reauth state")
)
