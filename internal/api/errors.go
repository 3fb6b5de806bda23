// Package api provides HTTP handlers and standardized error handling
// for the audit ingest server.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/vigil/internal/middleware"
)

// Error codes returned by the API.
const (
	// ErrCodeValidation covers input that parsed but failed validation.
	ErrCodeValidation = "validation_error"

	// ErrCodeNotFound covers lookups of resources that do not exist.
	ErrCodeNotFound = "not_found"

	// ErrCodeInternal covers unexpected server-side failures.
	ErrCodeInternal = "internal_error"

	// ErrCodeBadRequest covers requests that could not be parsed at all.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeUnknownAction covers action kinds outside the taxonomy.
	ErrCodeUnknownAction = "unknown_action"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes the standard JSON error body and records the error
// code on the response context so the logging middleware can attach it
// to the access log line.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	ctx = middleware.SetErrorCode(ctx, code)
	middleware.UpdateResponseContext(w, ctx)

	data, err := json.Marshal(ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
