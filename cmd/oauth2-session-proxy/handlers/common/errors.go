package common

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Error codes used in JSON error responses
const (
	ErrorCodeInvalidRequest  = "invalid_request"
	ErrorCodeInvalidState    = "invalid_state"
	ErrorCodeAccessDenied    = "access_denied"
	ErrorCodeUnauthenticated = "unauthenticated"
	ErrorCodeServerError     = "server_error"
)

// ErrorResponse is the body of every JSON error
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// SetJSONHeaders sets the headers for a JSON response. Session responses are
// never cacheable.
func SetJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
}

// WriteError sends an error response with the given status
func WriteError(w http.ResponseWriter, status int, code string, description string) {
	SetJSONHeaders(w)

	response := ErrorResponse{
		Error:            code,
		ErrorDescription: strings.TrimSpace(description),
	}

	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		WriteJSONError(w, err)
		return
	}
}

// WriteJSON sends v with status 200
func WriteJSON(w http.ResponseWriter, v any) {
	SetJSONHeaders(w)
	body, err := json.Marshal(v)
	if err != nil {
		WriteJSONError(w, err)
		return
	}
	_, _ = w.Write(append(body, '\n'))
}

// WriteJSONError handles JSON encoding failures with a standardized response
func WriteJSONError(w http.ResponseWriter, err error) {
	SetJSONHeaders(w)
	w.WriteHeader(http.StatusInternalServerError)

	// Written by hand since encoding just failed
	errResponse := []byte(`{"error":"server_error","error_description":"Failed to encode response"}`)
	if _, writeErr := w.Write(errResponse); writeErr != nil {
		return
	}
}
