// Package main runs the OAuth login proxy backed by device-scoped session
// storage
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/oauth2"

	"github.com/wrale/oauth2-session-store/internal/authflow"
	"github.com/wrale/oauth2-session-store/internal/session"
	"github.com/wrale/oauth2-session-store/internal/storage"
)

// Version is set by the build process
var Version = "dev"

func main() {
	if err := run(context.Background(), os.Stderr); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment, loading .env first in development
func loadConfig() (Config, error) {
	if os.Getenv("ENVIRONMENT") == "development" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("loading .env: %w", err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg Config, out io.Writer) (*slog.Logger, error) {
	level, err := cfg.logLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(out, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(out, opts)), nil
}

func newOAuthConfig(cfg Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		RedirectURL:  cfg.callbackURL(),
		Scopes:       cfg.OAuthScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.OAuthAuthURL,
			TokenURL: cfg.OAuthTokenURL,
		},
	}
}

func run(ctx context.Context, logOut io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, logOut)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	storageCfg := cfg.storageConfig()
	sessions := session.NewManager(
		session.WithLogger(logger),
		session.WithFactory(storage.NewFactory(storage.WithFactoryLogger(logger))),
		session.WithDefaultConfig(storageCfg),
	)
	if err := sessions.Initialize(ctx, session.WithConfig(storageCfg)); err != nil {
		return fmt.Errorf("initializing sessions: %w", err)
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			logger.Warn("closing session storage failed", "error", err)
		}
	}()

	flowOpts := []authflow.Option{authflow.WithLogger(logger)}
	if cfg.StateSecret != "" {
		flowOpts = append(flowOpts, authflow.WithStateSecret([]byte(cfg.StateSecret)))
	}
	if cfg.OAuthLogoutURL != "" {
		flowOpts = append(flowOpts, authflow.WithLogoutURL(cfg.OAuthLogoutURL, cfg.BaseURL))
	}
	flow, err := authflow.NewFlow(sessions, newOAuthConfig(cfg), flowOpts...)
	if err != nil {
		return fmt.Errorf("creating login flow: %w", err)
	}

	srv := newServer(sessions, flow, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Port, "storage", sessions.StorageType(), "version", Version)
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("starting server: %w", err)

	case sig := <-shutdown:
		logger.Info("starting shutdown", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			if err := httpServer.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
	}
	return nil
}
