package health

import (
	"context"
	"encoding/json"
	"net/http"
)

// Checker reports whether a component can serve requests
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// typed is implemented by checkers that can name their backend
type typed interface {
	StorageType() string
}

// Handler processes health check requests
type Handler struct {
	storage Checker
	version string
}

// Response represents the health check response.
type Response struct {
	Status  string         `json:"status"`
	Version string         `json:"version,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// New creates a health check handler for the session storage
func New(storage Checker) *Handler {
	return &Handler{
		storage: storage,
		version: "unknown",
	}
}

// WithVersion sets the version for health check responses
func (h *Handler) WithVersion(version string) *Handler {
	h.version = version
	return h
}

// ServeHTTP handles health check requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	response := Response{
		Status:  "healthy",
		Version: h.version,
		Details: make(map[string]any),
	}

	detail := map[string]any{"status": "healthy"}
	if err := h.storage.CheckHealth(r.Context()); err != nil {
		response.Status = "unhealthy"
		detail["status"] = "unhealthy"
		detail["message"] = err.Error()
	}
	if t, ok := h.storage.(typed); ok {
		if kind := t.StorageType(); kind != "" {
			detail["type"] = kind
		}
	}
	response.Details["session_storage"] = detail

	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, `{"error":"server_error","error_description":"Error encoding response"}`,
			http.StatusInternalServerError)
		return
	}
}
