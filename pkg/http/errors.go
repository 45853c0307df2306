package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error      string `json:"error"`                  // Machine-readable error code
	Message    string `json:"message"`                // Human-readable message
	RetryAfter int    `json:"retry_after,omitempty"`  // Seconds, rate-limit responses only
	RequestRef string `json:"request_ref,omitempty"`  // Opaque correlation id, 5xx only
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error:   errorCode,
		Message: message,
	}

	// Log encoding errors but don't expose them to client
	_ = json.NewEncoder(w).Encode(resp)
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

// WriteTooManyRequests writes a 429 with a Retry-After header and hint.
// This is the one failure class allowed to carry detail back to the client.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Content-Type", "application/json")
	if retryAfterSeconds > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSeconds))
	}
	w.WriteHeader(http.StatusTooManyRequests)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many attempts. Please try again later.",
		RetryAfter: retryAfterSeconds,
	})
}

// WriteInternalError writes a generic 500 carrying only an opaque
// correlation id; the id is returned so the caller can log it alongside
// the underlying error for server-side lookup.
func WriteInternalError(w http.ResponseWriter) string {
	ref := uuid.New().String()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:      "internal_error",
		Message:    "Internal server error",
		RequestRef: ref,
	})

	return ref
}
