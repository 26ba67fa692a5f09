package apierr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/onnwee/caseace-cache/internal/logger"
)

func TestNew(t *testing.T) {
	err := New(ErrCacheKeyNotFound, "gone", http.StatusNotFound)
	if err.Code != ErrCacheKeyNotFound {
		t.Errorf("expected code %s, got %s", ErrCacheKeyNotFound, err.Code)
	}
	if err.Status() != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, err.Status())
	}
	if err.Error() != "CACHE_KEY_NOT_FOUND: gone" {
		t.Errorf("unexpected error string %q", err.Error())
	}
}

func TestHelpers(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		code   ErrorCode
		status int
	}{
		{"auth missing", AuthMissing(), ErrAuthMissing, http.StatusUnauthorized},
		{"auth invalid", AuthInvalid(), ErrAuthInvalid, http.StatusUnauthorized},
		{"auth disabled", AuthDisabled(), ErrAuthDisabled, http.StatusServiceUnavailable},
		{"invalid pattern", CacheInvalidPattern("(", "missing closing )"), ErrCacheInvalidPattern, http.StatusBadRequest},
		{"key not found", CacheKeyNotFound("k"), ErrCacheKeyNotFound, http.StatusNotFound},
		{"unknown domain", CacheUnknownDomain("x"), ErrCacheUnknownDomain, http.StatusNotFound},
		{"storage", StorageUnavailable(""), ErrStorageUnavailable, http.StatusServiceUnavailable},
		{"internal", SystemInternal(""), ErrSystemInternal, http.StatusInternalServerError},
		{"invalid json", ValidationInvalidJSON(), ErrValidationInvalidJSON, http.StatusBadRequest},
		{"missing field", ValidationMissingField("pattern"), ErrValidationMissingField, http.StatusBadRequest},
		{"rate limit ip", RateLimitIP(), ErrRateLimitIP, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code || tt.err.Status() != tt.status {
				t.Errorf("got %s/%d, want %s/%d", tt.err.Code, tt.err.Status(), tt.code, tt.status)
			}
			if tt.err.Message == "" {
				t.Error("message should not be empty")
			}
		})
	}
}

func TestWriteErrorWithContext(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(context.WithValue(r.Context(), logger.RequestIDKey, "req-123"))

	WriteErrorWithContext(w, r, CacheInvalidPattern("[", "bad"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != ErrCacheInvalidPattern {
		t.Fatalf("unexpected response %+v", resp.Error)
	}
	if resp.Error.RequestID != "req-123" {
		t.Errorf("expected request ID req-123, got %q", resp.Error.RequestID)
	}
	if resp.Error.Details["pattern"] != "[" {
		t.Errorf("details = %v", resp.Error.Details)
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("expected empty request ID, got %q", id)
	}
}
