package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
//   writeJSON(w, http.StatusOK, data)
//   writeError(w, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "conflict", "message": "payment request abc123 is already approved"}
//
// Validation errors also name the offending field:
//   {"error": "validation_error", "message": "reason is required", "field": "reason"}

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/guildgate/internal/apperror"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Set for validation errors
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status go out before the body. Once Encode writes, any header
// change is silently ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to an HTTP status and error code.
//
// The service layer does not know about HTTP. It returns apperror sentinels
// (possibly wrapped several times) and errors.Is walks the chain:
//
//	service returns: fmt.Errorf("service/payment: reviewing x: %w", apperror.StateConflict(...))
//	which wraps:     AppError{Err: ErrConflict, Message: "..."}
//	errors.Is walks: outer error → AppError → ErrConflict ✓ match!
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, apperror.ErrSignature):
		return http.StatusUnauthorized, "invalid_signature"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrExternal):
		return http.StatusBadGateway, "external_service_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// Only *AppError messages reach the client. Anything else is a 500 with a
// generic message: raw errors may carry SQL or file paths.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, code := errorStatus(err)
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a JSON body into dst. Malformed bodies become validation
// errors so writeError renders them as 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("", "request body is required")
		}
		return apperror.ValidationFailed("", fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// queryLimit parses ?limit=, returning 0 when absent.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed("limit", "limit must be a non-negative integer")
	}
	return n, nil
}

// logFailure logs errors that will surface as a 5xx. Client errors are not
// logged here; services already log the transitions they reject.
func logFailure(logger *slog.Logger, r *http.Request, msg string, err error) {
	if status, _ := errorStatus(err); status < http.StatusInternalServerError {
		return
	}
	logger.Error(msg,
		slog.String("requestID", chimiddleware.GetReqID(r.Context())),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}
