package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/onnwee/caseace-cache/internal/logger"
)

// RequestIDHeader is the header name for request IDs
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds IDs accepted from clients.
const maxRequestIDLength = 128

// RequestID tags each request with an ID, reusing the caller's X-Request-ID
// when it is reasonable, and exposes it in the response header and context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), logger.RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
