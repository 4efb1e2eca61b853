// Package test provides a configurable login flow for handler tests
package test

import (
	"context"

	"github.com/wrale/oauth2-session-store/internal/authflow"
)

// MockFlow implements the login flow used by the handlers. Unset funcs
// return zero values.
type MockFlow struct {
	CheckHealthFunc func(ctx context.Context) error
	LoginFunc       func(ctx context.Context, req authflow.LoginRequest) (string, error)
	CallbackFunc    func(ctx context.Context, code, state string) (*authflow.CallbackResult, error)
	LogoutFunc      func(ctx context.Context) string
	UserFunc        func(ctx context.Context) (*authflow.User, error)
}

// CheckHealth implements the health checker
func (m *MockFlow) CheckHealth(ctx context.Context) error {
	if m.CheckHealthFunc != nil {
		return m.CheckHealthFunc(ctx)
	}
	return nil
}

// Login implements the login flow
func (m *MockFlow) Login(ctx context.Context, req authflow.LoginRequest) (string, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	return "", nil
}

// Callback implements the login flow
func (m *MockFlow) Callback(ctx context.Context, code, state string) (*authflow.CallbackResult, error) {
	if m.CallbackFunc != nil {
		return m.CallbackFunc(ctx, code, state)
	}
	return &authflow.CallbackResult{RedirectTo: "/"}, nil
}

// Logout implements the login flow
func (m *MockFlow) Logout(ctx context.Context) string {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx)
	}
	return "/"
}

// User implements the login flow
func (m *MockFlow) User(ctx context.Context) (*authflow.User, error) {
	if m.UserFunc != nil {
		return m.UserFunc(ctx)
	}
	return nil, authflow.ErrNotAuthenticated
}
