package web

// errors.go provides unified error response handling for the web layer.
// Errors are logged with full technical detail server-side; clients only
// ever see sanitized JSON messages.

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/glucolog/glucolog/internal/glucose"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
)

// errorResponse is the JSON structure for API error responses.
type errorResponse struct {
	Error string `json:"error"`
}

// apiResponse is the success envelope used by operations that report a
// message plus payload (import).
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// writeError writes a JSON error response with the given message.
// The message must already be safe to show to clients.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	slog.Warn("request failed",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"message", message,
		"request_id", middleware.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// respondServiceError translates a service/repository error into an HTTP
// response. Not-found maps to 404, validation failures to 400, and
// anything else to a generic 500 that leaks no internals.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, glucose.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "glucose level not found")
	case errors.Is(err, glucose.ErrInvalidRecord):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		slog.Error("internal error",
			"path", r.URL.Path,
			"method", r.Method,
			"error", err.Error(),
			"request_id", middleware.GetReqID(r.Context()),
		)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON encodes v as JSON with the given status code.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
