package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"

	"github.com/wrale/oauth2-session-store/internal/httpctx"
)

// CookieChannel stores values in client-side cookies of the in-flight
// request. Values are JSON encoded, then base64 encoded.
type CookieChannel struct {
	logger *slog.Logger
}

// NewCookieChannel creates a cookie channel that reports failures to logger
func NewCookieChannel(logger *slog.Logger) CookieChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return CookieChannel{logger: logger}
}

// CookieSet queues value as cookie key on the response
func (c CookieChannel) CookieSet(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.log().WarnContext(ctx, "cookie set failed", "key", key, "error", err)
		return
	}

	if !httpctx.SetCookie(ctx, key, base64.StdEncoding.EncodeToString(data)) {
		c.log().DebugContext(ctx, "cookie set skipped, no writable request", "key", key)
	}
}

// CookieGet decodes cookie key into out
func (c CookieChannel) CookieGet(ctx context.Context, key string, out any) bool {
	raw, ok := httpctx.Cookie(ctx, key)
	if !ok || raw == "" {
		return false
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		c.log().WarnContext(ctx, "cookie get failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.log().WarnContext(ctx, "cookie get failed", "key", key, "error", err)
		return false
	}
	return true
}

func (c CookieChannel) log() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

var _ CookieStore = CookieChannel{}
