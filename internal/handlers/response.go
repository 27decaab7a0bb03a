package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"journal-sync/internal/contextutil"
	"journal-sync/internal/errs"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleServiceError maps service errors to appropriate HTTP status codes and responses.
func handleServiceError(w http.ResponseWriter, ctx context.Context, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)

	var validationErr *errs.ValidationError
	if errors.As(err, &validationErr) {
		logger.WarnContext(ctx, "validation error", "error", err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Validation error: %s", validationErr.Error()))
		return
	}

	var parseErr *errs.ParseError
	if errors.As(err, &parseErr) {
		logger.WarnContext(ctx, "parse error", "error", err)
		writeError(w, http.StatusBadRequest, parseErr.Error())
		return
	}

	switch {
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "Resource not found")
		return
	case errors.Is(err, errs.ErrConflict):
		logger.WarnContext(ctx, "conflict", "error", err)
		writeError(w, http.StatusConflict, "Conflict with existing record")
		return
	case errors.Is(err, errs.ErrRetriesExhausted):
		logger.ErrorContext(ctx, "store busy", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Store is busy, try again")
		return
	case errors.Is(err, context.Canceled):
		logger.InfoContext(ctx, "request canceled")
		return
	}

	logger.ErrorContext(ctx, "service error", "error", err)
	writeError(w, http.StatusInternalServerError, defaultMsg)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}

func writeJSON(w http.ResponseWriter, ctx context.Context, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
