package apierr

import (
	"context"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/onnwee/caseace-cache/internal/logger"
)

// ErrorCode represents a structured error code
type ErrorCode string

// Error code constants organized by category
const (
	// AUTH_ - Admin token errors
	ErrAuthMissing  ErrorCode = "AUTH_MISSING"
	ErrAuthInvalid  ErrorCode = "AUTH_INVALID"
	ErrAuthDisabled ErrorCode = "AUTH_DISABLED"

	// CACHE_ - Cache administration errors
	ErrCacheInvalidPattern ErrorCode = "CACHE_INVALID_PATTERN"
	ErrCacheKeyNotFound    ErrorCode = "CACHE_KEY_NOT_FOUND"
	ErrCacheUnknownDomain  ErrorCode = "CACHE_UNKNOWN_DOMAIN"

	// STORAGE_ - Persisted store errors
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// SYSTEM_ - System and server errors
	ErrSystemInternal    ErrorCode = "SYSTEM_INTERNAL"
	ErrSystemUnavailable ErrorCode = "SYSTEM_UNAVAILABLE"

	// VALIDATION_ - Request validation errors
	ErrValidationInvalidJSON  ErrorCode = "VALIDATION_INVALID_JSON"
	ErrValidationMissingField ErrorCode = "VALIDATION_MISSING_FIELD"

	// RATE_LIMIT_ - Rate limiting errors
	ErrRateLimitGlobal ErrorCode = "RATE_LIMIT_GLOBAL"
	ErrRateLimitIP     ErrorCode = "RATE_LIMIT_IP"
)

// Error represents a structured API error
type Error struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	status    int
}

// ErrorResponse is the top-level error response wrapper
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// New creates a new API error
func New(code ErrorCode, message string, status int) *Error {
	return &Error{Code: code, Message: message, status: status}
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to the error
func (e *Error) WithRequestID(requestID string) *Error {
	e.RequestID = requestID
	return e
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Status returns the HTTP status code
func (e *Error) Status() int {
	return e.status
}

// WriteError writes a structured error response
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	if encErr := json.NewEncoder(w).Encode(ErrorResponse{Error: err}); encErr != nil {
		logger.Debug("Failed to write error response", "error", encErr)
	}
}

// AuthMissing creates an authentication missing error
func AuthMissing() *Error {
	return New(ErrAuthMissing, "Authentication required", http.StatusUnauthorized)
}

// AuthInvalid creates an invalid authentication error
func AuthInvalid() *Error {
	return New(ErrAuthInvalid, "Invalid authentication credentials", http.StatusUnauthorized)
}

// AuthDisabled is returned when no admin token is configured.
func AuthDisabled() *Error {
	return New(ErrAuthDisabled, "Admin API is disabled", http.StatusServiceUnavailable)
}

// CacheInvalidPattern reports a pattern that does not compile.
func CacheInvalidPattern(pattern, reason string) *Error {
	return New(ErrCacheInvalidPattern, "Invalid invalidation pattern: "+reason, http.StatusBadRequest).
		WithDetails(map[string]any{"pattern": pattern})
}

// CacheKeyNotFound creates a key not found error
func CacheKeyNotFound(key string) *Error {
	return New(ErrCacheKeyNotFound, "Cache key not found", http.StatusNotFound).
		WithDetails(map[string]any{"key": key})
}

// CacheUnknownDomain creates an unknown domain error
func CacheUnknownDomain(domain string) *Error {
	return New(ErrCacheUnknownDomain, "Unknown cache domain", http.StatusNotFound).
		WithDetails(map[string]any{"domain": domain})
}

// StorageUnavailable creates a storage error
func StorageUnavailable(message string) *Error {
	if message == "" {
		message = "Persistent storage unavailable"
	}
	return New(ErrStorageUnavailable, message, http.StatusServiceUnavailable)
}

// SystemInternal creates an internal server error
func SystemInternal(message string) *Error {
	if message == "" {
		message = "Internal server error"
	}
	return New(ErrSystemInternal, message, http.StatusInternalServerError)
}

// SystemUnavailable creates a service unavailable error
func SystemUnavailable(message string) *Error {
	if message == "" {
		message = "Service unavailable"
	}
	return New(ErrSystemUnavailable, message, http.StatusServiceUnavailable)
}

// ValidationInvalidJSON creates an invalid JSON error
func ValidationInvalidJSON() *Error {
	return New(ErrValidationInvalidJSON, "Invalid JSON request body", http.StatusBadRequest)
}

// ValidationMissingField creates a missing field error
func ValidationMissingField(field string) *Error {
	return New(ErrValidationMissingField, "Missing required field: "+field, http.StatusBadRequest).
		WithDetails(map[string]any{"field": field})
}

// RateLimitGlobal creates a global rate limit error
func RateLimitGlobal() *Error {
	return New(ErrRateLimitGlobal, "Rate limit exceeded - too many requests globally", http.StatusTooManyRequests)
}

// RateLimitIP creates an IP rate limit error
func RateLimitIP() *Error {
	return New(ErrRateLimitIP, "Rate limit exceeded - too many requests from your IP", http.StatusTooManyRequests)
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// WriteErrorWithContext writes a structured error response with request ID from context
func WriteErrorWithContext(w http.ResponseWriter, r *http.Request, err *Error) {
	if reqID := GetRequestID(r.Context()); reqID != "" {
		err = err.WithRequestID(reqID)
	}
	WriteError(w, err)
}
