package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wrale/oauth2-session-store/cmd/oauth2-session-proxy/handlers/auth"
	"github.com/wrale/oauth2-session-store/cmd/oauth2-session-proxy/handlers/health"
	"github.com/wrale/oauth2-session-store/internal/authflow"
	"github.com/wrale/oauth2-session-store/internal/httpctx"
	"github.com/wrale/oauth2-session-store/internal/session"
)

type server struct {
	router   *chi.Mux
	sessions *session.Manager
	auth     *auth.Handler
	health   *health.Handler
	logger   *slog.Logger
}

func newServer(sessions *session.Manager, flow *authflow.Flow, logger *slog.Logger) *server {
	srv := &server{
		router:   chi.NewRouter(),
		sessions: sessions,
		auth:     auth.New(auth.Config{Flow: flow, Logger: logger}),
		health:   health.New(sessions).WithVersion(Version),
		logger:   logger,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.RealIP)
	srv.router.Use(requestLogger(logger))
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(middleware.Timeout(30 * time.Second))

	srv.routes()

	return srv
}

func (s *server) routes() {
	s.router.Method(http.MethodGet, "/health", s.health)

	// Login endpoints see the request and a per-client session manager
	s.router.Group(func(r chi.Router) {
		r.Use(httpctx.Middleware)
		r.Use(session.Middleware(s.sessions))

		r.Get("/login", s.auth.Login)
		r.Get("/register", s.auth.Register)
		r.Get("/callback", s.auth.Callback)
		r.Get("/logout", s.auth.Logout)
		r.Post("/logout", s.auth.Logout)
		r.Get("/user", s.auth.User)
	})
}

// requestLogger logs one line per request through slog
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.InfoContext(r.Context(), "request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"remote", r.RemoteAddr,
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
