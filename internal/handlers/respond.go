// Package handlers implements the HTTP layer: request decoding, service
// calls, and error-to-status mapping.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"mirza-mirror/internal/contextutil"
	"mirza-mirror/internal/importer"
	"mirza-mirror/internal/service"
	"mirza-mirror/internal/storage"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// handleError maps storage and service errors to HTTP status codes.
func handleError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		logger.WarnContext(ctx, "validation error", "error", err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Validation error: %s", validationErr.Error()))
		return
	}

	switch {
	case errors.Is(err, storage.ErrInvalidInput),
		errors.Is(err, importer.ErrUnsupportedSource),
		errors.Is(err, importer.ErrUnsupportedFormat),
		errors.Is(err, importer.ErrNoMessages):
		logger.WarnContext(ctx, "invalid request", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, storage.ErrConflictRetry):
		writeError(w, http.StatusConflict, "Conflicting concurrent update, retry")
	case errors.Is(err, service.ErrExternalService):
		logger.ErrorContext(ctx, "external service error", "error", err)
		writeError(w, http.StatusBadGateway, "External service error")
	default:
		logger.ErrorContext(ctx, "internal error", "error", err)
		writeError(w, http.StatusInternalServerError, defaultMsg)
	}
}
