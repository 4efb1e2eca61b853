package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wrale/oauth2-session-store/internal/storage"
)

// Config holds server configuration loaded from environment variables
type Config struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	BaseURL     string `envconfig:"BASE_URL" required:"true"`
	Environment string `envconfig:"ENVIRONMENT" default:"production"`

	StorageType string `envconfig:"STORAGE_TYPE" default:"redis"`
	RedisURL    string `envconfig:"REDIS_URL" default:"redis://redis:6379/0"`
	StateTTL    int    `envconfig:"STATE_TTL" default:"600"`

	OAuthClientID     string   `envconfig:"OAUTH_CLIENT_ID" required:"true"`
	OAuthClientSecret string   `envconfig:"OAUTH_CLIENT_SECRET"`
	OAuthAuthURL      string   `envconfig:"OAUTH_AUTH_URL" required:"true"`
	OAuthTokenURL     string   `envconfig:"OAUTH_TOKEN_URL" required:"true"`
	OAuthLogoutURL    string   `envconfig:"OAUTH_LOGOUT_URL"`
	OAuthScopes       []string `envconfig:"OAUTH_SCOPES" default:"openid,profile,email,offline"`
	StateSecret       string   `envconfig:"STATE_SECRET"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// storageConfig maps the server settings onto a session storage config
func (c Config) storageConfig() storage.Config {
	return storage.Config{
		Type:     strings.ToLower(c.StorageType),
		RedisURL: c.RedisURL,
		StateTTL: time.Duration(c.StateTTL) * time.Second,
	}
}

// callbackURL is the redirect URI registered with the provider
func (c Config) callbackURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/callback"
}

func (c Config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}
