// Package httpctx carries the in-flight HTTP request into context so storage
// and session code can read the client address, User-Agent and cookies, and
// queue cookies for the response, without depending on a web framework.
package httpctx

import (
	"context"
	"net"
	"net/http"
	"sync"
)

// requestStateKey is the context key for the request state.
type requestStateKey struct{}

type requestState struct {
	request   *http.Request
	clientIP  string
	userAgent string

	mu        sync.Mutex
	pending   map[string]string
	order     []string
	committed bool
}

func newRequestState(r *http.Request) *requestState {
	return &requestState{
		request:   r,
		clientIP:  clientIP(r),
		userAgent: r.UserAgent(),
		pending:   make(map[string]string),
	}
}

// WithRequest stores r in ctx. Cookies queued on the returned context are
// only delivered when the request is served through Middleware.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if r == nil {
		return ctx
	}
	return context.WithValue(ctx, requestStateKey{}, newRequestState(r))
}

func stateFromContext(ctx context.Context) *requestState {
	if ctx == nil {
		return nil
	}
	st, _ := ctx.Value(requestStateKey{}).(*requestState)
	return st
}

// ClientInfo returns the client IP and User-Agent of the request in ctx.
// ok is false when ctx carries no request.
func ClientInfo(ctx context.Context) (ip, userAgent string, ok bool) {
	st := stateFromContext(ctx)
	if st == nil {
		return "", "", false
	}
	return st.clientIP, st.userAgent, true
}

// Cookie returns the value of the named cookie. Cookies queued during the
// request shadow the ones the client sent.
func Cookie(ctx context.Context, name string) (string, bool) {
	st := stateFromContext(ctx)
	if st == nil {
		return "", false
	}

	st.mu.Lock()
	value, ok := st.pending[name]
	st.mu.Unlock()
	if ok {
		return value, true
	}

	c, err := st.request.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

// SetCookie queues a cookie for the response. It reports false when ctx
// carries no request or the response header was already written.
func SetCookie(ctx context.Context, name, value string) bool {
	st := stateFromContext(ctx)
	if st == nil {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.committed {
		return false
	}
	if _, exists := st.pending[name]; !exists {
		st.order = append(st.order, name)
	}
	st.pending[name] = value
	return true
}

// flush writes queued cookies to h and marks the header committed
func (st *requestState) flush(h http.Header) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.committed {
		return
	}
	st.committed = true

	for _, name := range st.order {
		c := &http.Cookie{
			Name:     name,
			Value:    st.pending[name],
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		}
		if v := c.String(); v != "" {
			h.Add("Set-Cookie", v)
		}
	}
}

// Middleware binds each request to its context and delivers queued cookies
// before the response header is committed.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := newRequestState(r)
		ctx := context.WithValue(r.Context(), requestStateKey{}, st)
		cw := &cookieWriter{ResponseWriter: w, state: st}

		next.ServeHTTP(cw, r.WithContext(ctx))

		// Nothing written yet: net/http sends the header after we return.
		st.flush(w.Header())
	})
}

type cookieWriter struct {
	http.ResponseWriter
	state *requestState
}

func (w *cookieWriter) WriteHeader(code int) {
	w.state.flush(w.ResponseWriter.Header())
	w.ResponseWriter.WriteHeader(code)
}

func (w *cookieWriter) Write(b []byte) (int, error) {
	w.state.flush(w.ResponseWriter.Header())
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController
func (w *cookieWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// clientIP is RemoteAddr without its port. Proxy headers are not read here;
// a server behind a proxy rewrites RemoteAddr first (chi middleware.RealIP).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
