package errorreporting

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

// PII patterns to scrub from error messages
var piiPatterns = []*regexp.Regexp{
	// Email addresses
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	// Bearer tokens, e.g. the admin API token
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]{8,}`),
	// API keys, tokens and storage keys
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|sealing[_-]?key|obfuscation[_-]?key)["\s:=]+[a-zA-Z0-9_+/=-]{16,}`),
	// Credentials embedded in connection strings
	regexp.MustCompile(`://[^:/@\s]+:[^@\s]+@`),
	// IP addresses
	regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
}

// Config configures Sentry. An empty DSN disables reporting.
type Config struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

var enabled atomic.Bool

// Init initializes Sentry error reporting
func Init(cfg Config) error {
	if cfg.DSN == "" {
		enabled.Store(false)
		return nil
	}
	if err := ValidateDSN(cfg.DSN); err != nil {
		return err
	}

	release := cfg.Release
	if release == "" {
		release = "dev"
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          release,
		SampleRate:       cfg.SampleRate,
		BeforeSend:       beforeSend,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	enabled.Store(true)
	return nil
}

// beforeSend scrubs PII and strips credentials before events leave the process.
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	for i := range event.Exception {
		event.Exception[i].Value = scrubPII(event.Exception[i].Value)
	}
	if event.Message != "" {
		event.Message = scrubPII(event.Message)
	}
	for key, value := range event.Extra {
		if str, ok := value.(string); ok {
			event.Extra[key] = scrubPII(str)
		}
	}

	if event.Request != nil {
		if event.Request.Headers != nil {
			delete(event.Request.Headers, "Authorization")
			delete(event.Request.Headers, "Cookie")
			delete(event.Request.Headers, "X-Api-Key")
		}
		// Cache keys in query strings may carry record identifiers.
		event.Request.QueryString = ""
	}
	return event
}

func scrubPII(text string) string {
	result := text
	for _, pattern := range piiPatterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// CaptureError captures an error and sends it to Sentry
func CaptureError(err error) {
	if err == nil || !enabled.Load() {
		return
	}
	sentry.CaptureException(err)
}

// CaptureErrorWithContext captures an error with tags and extra data.
func CaptureErrorWithContext(err error, tags map[string]string, extras map[string]interface{}) {
	if err == nil || !enabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		for k, v := range extras {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}

// AddBreadcrumb records an operator action for later events.
func AddBreadcrumb(category, message string, level sentry.Level) {
	if !enabled.Load() {
		return
	}
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     level,
		Timestamp: time.Now(),
	})
}

// Flush waits for all events to be sent to Sentry
func Flush(timeout time.Duration) bool {
	if !enabled.Load() {
		return true
	}
	return sentry.Flush(timeout)
}

// ScrubPII exposes the PII scrubbing function for external use
func ScrubPII(text string) string {
	return scrubPII(text)
}

// IsSentryEnabled reports whether Init configured a client.
func IsSentryEnabled() bool {
	return enabled.Load()
}

// ValidateDSN checks if the provided DSN is valid
func ValidateDSN(dsn string) error {
	if !strings.HasPrefix(dsn, "https://") && !strings.HasPrefix(dsn, "http://") {
		return fmt.Errorf("invalid Sentry DSN format")
	}
	return nil
}
