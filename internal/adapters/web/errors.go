package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"invoice-agent/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

const notConnectedMessage = "QuickBooks is not connected. Connect your QuickBooks account and try again."

// writeServiceError maps service errors onto HTTP statuses. Anything not in
// the taxonomy is logged and reported generically.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, core.ErrNotAuthenticated):
		writeError(w, r, notConnectedMessage, "NOT_AUTHENTICATED", http.StatusUnauthorized)
	case errors.Is(err, core.ErrValidation):
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
	case errors.Is(err, core.ErrProvider), errors.Is(err, core.ErrNotFound):
		writeError(w, r, err.Error(), "PROVIDER_ERROR", http.StatusBadGateway)
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestIDFromContext(r.Context()),
		)
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}
