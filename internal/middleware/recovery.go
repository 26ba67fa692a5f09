package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"

	"github.com/onnwee/caseace-cache/internal/apierr"
	"github.com/onnwee/caseace-cache/internal/errorreporting"
	"github.com/onnwee/caseace-cache/internal/logger"
)

// RecoverWithSentry recovers from handler panics, logs them, reports them to
// Sentry when it is configured and answers with a structured 500.
func RecoverWithSentry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			logger.ErrorContext(r.Context(), "Panic recovered",
				"error", rec,
				"stack", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
			)

			if errorreporting.IsSentryEnabled() {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(r)
				hub.Scope().SetLevel(sentry.LevelError)
				hub.Scope().SetTag("method", r.Method)
				hub.Scope().SetTag("path", r.URL.Path)

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("panic: %s", errorreporting.ScrubPII(fmt.Sprint(rec)))
				}
				hub.CaptureException(err)
			}

			apierr.WriteErrorWithContext(w, r, apierr.SystemInternal(""))
		}()

		next.ServeHTTP(w, r)
	})
}
