package authflow

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ErrorLoginLinkExpired is the callback error sent when a magic login link
// has expired. The callback then carries reauth_state.
const ErrorLoginLinkExpired = "login_link_expired"

// DecodeReauthState decodes the base64 JSON object of a reauth_state
// parameter into login parameters.
func DecodeReauthState(s string) (url.Values, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReauthState, err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReauthState, err)
	}

	params := url.Values{}
	for k, v := range fields {
		switch v := v.(type) {
		case string:
			params.Set(k, v)
		case nil:
		default:
			params.Set(k, fmt.Sprint(v))
		}
	}
	return params, nil
}
