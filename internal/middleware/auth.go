package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/onnwee/caseace-cache/internal/apierr"
)

// AdminAuth requires "Authorization: Bearer <token>". With an empty token the
// admin surface is disabled and every request is refused.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				apierr.WriteErrorWithContext(w, r, apierr.AuthDisabled())
				return
			}
			const prefix = "Bearer "
			auth := r.Header.Get("Authorization")
			if auth == "" {
				apierr.WriteErrorWithContext(w, r, apierr.AuthMissing())
				return
			}
			given, ok := strings.CutPrefix(auth, prefix)
			if !ok || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
				apierr.WriteErrorWithContext(w, r, apierr.AuthInvalid())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
