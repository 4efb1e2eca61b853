package session

import (
	"context"
	"net/http"
)

type managerKey struct{}

// NewContext returns a copy of ctx carrying m
func NewContext(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, managerKey{}, m)
}

// FromContext returns the manager carried by ctx, if any
func FromContext(ctx context.Context) (*Manager, bool) {
	m, ok := ctx.Value(managerKey{}).(*Manager)
	return m, ok && m != nil
}

// Middleware attaches a manager scoped from root to every request, so each
// client derives its own device identifier against the shared backend. It
// must run inside httpctx.Middleware for fingerprinting and the device
// cookie to see the request.
func Middleware(root *Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := NewContext(r.Context(), root.Scoped())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
