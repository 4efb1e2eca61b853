package storage

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Built-in backend types
const (
	TypeRedis  = "redis"
	TypeMemory = "memory"
)

// Option keys recognised in Config.Options
const (
	OptionRedisURL = "redis_url"
	OptionStateTTL = "state_ttl_seconds"
)

// Config selects and configures a backend
type Config struct {
	// Type is a built-in type, a registered name, or empty for the default
	Type string

	// RedisURL locates the networked backend
	RedisURL string

	// StateTTL bounds the lifetime of state, nonce and code verifier keys
	StateTTL time.Duration

	// Options carries settings for registered backends. redis_url and
	// state_ttl_seconds are honoured when the typed fields are unset.
	Options map[string]string
}

// EnvConfig holds the environment-level storage defaults
type EnvConfig struct {
	RedisURL string `envconfig:"REDIS_URL" default:"redis://redis:6379/0"`
	StateTTL int    `envconfig:"STATE_TTL" default:"600"`
}

// ConfigFromEnv builds a Redis config from REDIS_URL and STATE_TTL
func ConfigFromEnv() (Config, error) {
	var env EnvConfig
	if err := envconfig.Process("", &env); err != nil {
		return Config{}, fmt.Errorf("loading storage environment: %w", err)
	}
	return Config{
		Type:     TypeRedis,
		RedisURL: env.RedisURL,
		StateTTL: time.Duration(env.StateTTL) * time.Second,
	}, nil
}

// withDefaults fills unset connection settings from Options, then from fallback
func (c Config) withDefaults(fallback Config) Config {
	if c.RedisURL == "" {
		c.RedisURL = c.Options[OptionRedisURL]
	}
	if c.RedisURL == "" {
		c.RedisURL = fallback.RedisURL
	}
	if c.RedisURL == "" {
		c.RedisURL = DefaultRedisURL
	}

	if c.StateTTL <= 0 {
		if secs, err := strconv.Atoi(c.Options[OptionStateTTL]); err == nil && secs > 0 {
			c.StateTTL = time.Duration(secs) * time.Second
		}
	}
	if c.StateTTL <= 0 {
		c.StateTTL = fallback.StateTTL
	}
	if c.StateTTL <= 0 {
		c.StateTTL = DefaultStateTTL
	}
	return c
}
