package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/wrale/oauth2-session-store/internal/storage"
	"github.com/wrale/oauth2-session-store/internal/validation"
)

// DeviceCookie is the cookie that carries the device identifier between requests
const DeviceCookie = "_device_id"

// fingerprintLength is the number of hex characters kept from the hash.
// 32 bits is enough to separate devices behind one proxy, not to resist an
// attacker guessing ids.
const fingerprintLength = 8

// deriveDeviceID picks the device identifier in priority order: the device
// cookie, a fingerprint of client IP and User-Agent, then a random UUID. When
// the backend can write cookies the result is stored back in the device
// cookie for later requests.
func (m *Manager) deriveDeviceID(ctx context.Context, store storage.Store) string {
	cookies, hasCookies := store.(storage.CookieStore)

	if hasCookies {
		var id string
		if cookies.CookieGet(ctx, DeviceCookie, &id) {
			err := validation.ValidateDeviceID(id)
			if err == nil {
				return id
			}
			m.shared.logger.WarnContext(ctx, "ignoring device cookie", "error", err)
		}
	}

	id, source := "", "random"
	if ip, ua, ok := m.shared.deviceContext(ctx); ok && ip != "" && ua != "" {
		id, source = fingerprint(ip, ua), "fingerprint"
	} else {
		id = uuid.NewString()
	}
	m.shared.logger.DebugContext(ctx, "device id derived", "source", source)

	if hasCookies {
		cookies.CookieSet(ctx, DeviceCookie, id)
	}
	return id
}

// fingerprint returns the leading hex characters of sha256(ip + userAgent)
func fingerprint(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + userAgent))
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}
