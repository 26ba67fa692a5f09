package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/onnwee/caseace-cache/internal/cache"
	"github.com/onnwee/caseace-cache/internal/secrets"
	"github.com/onnwee/caseace-cache/internal/utils"
)

// Storage backends selectable with STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPebble   = "pebble"
	BackendPostgres = "postgres"
)

// Payload codecs selectable with STORAGE_CODEC.
const (
	CodecNone      = "none"
	CodecObfuscate = "obfuscate"
	CodecSealed    = "sealed"
)

const sealingKeySize = 32

// Config holds application configuration derived from environment variables.
type Config struct {
	// Cache manager
	CacheDefaultTTL      time.Duration
	CacheMaxSize         int64
	CachePersist         bool
	CacheNamespace       string
	CacheAutoCleanup     bool
	CacheCleanupInterval time.Duration
	CacheSessionStorage  bool // mirror into the session backend instead of the durable one

	// Persistent key/value store
	StorageBackend          string
	StoragePrefix           string
	StoragePath             string
	StorageSyncWrites       bool
	StorageTable            string
	StorageTimeout          time.Duration
	DatabaseURL             string
	StorageCodec            string
	StorageObfuscationKey   string
	StorageSealingKey       string
	SessionStoreMaxMB       int64
	StorageBreakerThreshold int
	StorageBreakerTimeout   time.Duration

	// HTTP surface
	HTTPAddr             string
	ShutdownTimeout      time.Duration
	AdminAPIToken        string
	RateLimitGlobal      float64 // requests per second globally
	RateLimitGlobalBurst int
	RateLimitPerIP       float64 // requests per second per IP
	RateLimitPerIPBurst  int
	EnableRateLimit      bool
	StreamAllowedOrigins []string // websocket origins; empty allows same-host only

	// Observability settings
	MetricsInterval     time.Duration
	StatsStreamInterval time.Duration
	LogLevel            string  // debug, info, warn, error
	OTELEnabled         bool    // enable OpenTelemetry tracing
	OTELEndpoint        string  // OpenTelemetry collector endpoint
	OTELSampleRate      float64 // trace sampling rate (0.0 to 1.0)
	OTELServiceName     string
	SentryDSN           string
	SentryEnvironment   string // dev, staging, production
	SentryRelease       string
	SentrySampleRate    float64 // error sampling rate (0.0 to 1.0)
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	defaults := cache.DefaultOptions()
	cached = &Config{
		CacheDefaultTTL:      utils.GetEnvAsMillis("CACHE_DEFAULT_TTL_MS", defaults.DefaultTTL),
		CacheMaxSize:         utils.GetEnvAsInt64("CACHE_MAX_SIZE_BYTES", defaults.MaxSize),
		CachePersist:         utils.GetEnvAsBool("CACHE_PERSIST", defaults.PersistToStorage),
		CacheNamespace:       utils.GetEnvAsString("CACHE_NAMESPACE", defaults.StorageNamespace),
		CacheAutoCleanup:     utils.GetEnvAsBool("CACHE_AUTO_CLEANUP", defaults.AutoCleanup),
		CacheCleanupInterval: utils.GetEnvAsMillis("CACHE_CLEANUP_INTERVAL_MS", defaults.CleanupInterval),
		CacheSessionStorage:  utils.GetEnvAsBool("CACHE_SESSION_STORAGE", false),

		StorageBackend:          strings.ToLower(utils.GetEnvAsString("STORAGE_BACKEND", BackendMemory)),
		StoragePrefix:           utils.GetEnvAsString("STORAGE_PREFIX", "caseace"),
		StoragePath:             utils.GetEnvAsString("STORAGE_PATH", "./data/cache.pebble"),
		StorageSyncWrites:       utils.GetEnvAsBool("STORAGE_SYNC_WRITES", false),
		StorageTable:            utils.GetEnvAsString("STORAGE_TABLE", "kv_store"),
		StorageTimeout:          utils.GetEnvAsMillis("STORAGE_TIMEOUT_MS", 5*time.Second),
		DatabaseURL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
		StorageCodec:            strings.ToLower(utils.GetEnvAsString("STORAGE_CODEC", CodecNone)),
		StorageObfuscationKey:   strings.TrimSpace(os.Getenv("STORAGE_OBFUSCATION_KEY")),
		StorageSealingKey:       strings.TrimSpace(os.Getenv("STORAGE_SEALING_KEY")),
		SessionStoreMaxMB:       utils.GetEnvAsInt64("SESSION_STORE_MAX_MB", 16),
		StorageBreakerThreshold: utils.GetEnvAsInt("STORAGE_BREAKER_THRESHOLD", 5),
		StorageBreakerTimeout:   utils.GetEnvAsMillis("STORAGE_BREAKER_TIMEOUT_MS", 30*time.Second),

		HTTPAddr:        utils.GetEnvAsString("HTTP_ADDR", ":8080"),
		ShutdownTimeout: utils.GetEnvAsMillis("SHUTDOWN_TIMEOUT_MS", 10*time.Second),
		AdminAPIToken:   strings.TrimSpace(os.Getenv("ADMIN_API_TOKEN")),
		// Security settings with sensible defaults
		RateLimitGlobal:      utils.GetEnvAsFloat("RATE_LIMIT_GLOBAL", 100.0),
		RateLimitGlobalBurst: utils.GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 200),
		RateLimitPerIP:       utils.GetEnvAsFloat("RATE_LIMIT_PER_IP", 10.0),
		RateLimitPerIPBurst:  utils.GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 20),
		EnableRateLimit:      utils.GetEnvAsBool("ENABLE_RATE_LIMIT", true),
		StreamAllowedOrigins: utils.GetEnvAsSlice("STATS_STREAM_ALLOWED_ORIGINS", nil, ","),

		MetricsInterval:     utils.GetEnvAsMillis("METRICS_INTERVAL_MS", 15*time.Second),
		StatsStreamInterval: utils.GetEnvAsMillis("STATS_STREAM_INTERVAL_MS", 5*time.Second),
		LogLevel:            strings.ToLower(utils.GetEnvAsString("LOG_LEVEL", "info")),
		OTELEnabled:         utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:        strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:      utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		OTELServiceName:     utils.GetEnvAsString("OTEL_SERVICE_NAME", "caseace-cache"),
		SentryDSN:           strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment:   strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
		SentryRelease:       strings.TrimSpace(os.Getenv("SENTRY_RELEASE")),
		SentrySampleRate:    utils.GetEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),
	}
	if cached.SentryEnvironment == "" {
		cached.SentryEnvironment = utils.GetEnvAsString("ENV", "development")
	}
	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }

// CacheOptions maps the CACHE_* settings onto manager options.
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		DefaultTTL:       c.CacheDefaultTTL,
		MaxSize:          c.CacheMaxSize,
		PersistToStorage: c.CachePersist,
		StorageNamespace: c.CacheNamespace,
		AutoCleanup:      c.CacheAutoCleanup,
		CleanupInterval:  c.CacheCleanupInterval,
	}
}

// Validate checks the storage selection, that the secrets it needs are set
// and that every background loop has a usable interval.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory, BackendPebble, BackendPostgres:
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	switch c.StorageCodec {
	case CodecNone, CodecObfuscate, CodecSealed:
	default:
		return fmt.Errorf("config: unknown STORAGE_CODEC %q", c.StorageCodec)
	}

	var required []string
	if c.StorageBackend == BackendPostgres {
		required = append(required, "DATABASE_URL")
	}
	switch c.StorageCodec {
	case CodecObfuscate:
		required = append(required, "STORAGE_OBFUSCATION_KEY")
	case CodecSealed:
		required = append(required, "STORAGE_SEALING_KEY")
	}
	if err := secrets.ValidateRequired(c.lookup, required...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.StorageCodec == CodecSealed {
		if _, err := c.SealingKey(); err != nil {
			return err
		}
	}
	if err := c.CacheOptions().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("config: METRICS_INTERVAL_MS must be positive, got %s", c.MetricsInterval)
	}
	// The postgres purge loop reuses the cleanup interval even when the
	// in-memory sweep is off.
	if c.StorageBackend == BackendPostgres && c.CacheCleanupInterval <= 0 {
		return fmt.Errorf("config: CACHE_CLEANUP_INTERVAL_MS must be positive for the postgres backend, got %s", c.CacheCleanupInterval)
	}
	return nil
}

// lookup resolves the secret-bearing settings by their env var names.
func (c *Config) lookup(name string) (string, bool) {
	switch name {
	case "DATABASE_URL":
		return c.DatabaseURL, true
	case "STORAGE_OBFUSCATION_KEY":
		return c.StorageObfuscationKey, true
	case "STORAGE_SEALING_KEY":
		return c.StorageSealingKey, true
	}
	return "", false
}

// SealingKey decodes STORAGE_SEALING_KEY (hex or base64, 32 bytes).
func (c *Config) SealingKey() ([]byte, error) {
	key, err := secrets.DecodeKey(c.StorageSealingKey, sealingKeySize)
	if err != nil {
		return nil, fmt.Errorf("config: STORAGE_SEALING_KEY: %w", err)
	}
	return key, nil
}

// LogFields returns the settings worth logging at startup, secrets masked.
func (c *Config) LogFields() []any {
	return []any{
		"storage_backend", c.StorageBackend,
		"storage_codec", c.StorageCodec,
		"database_url", secrets.MaskURL(c.DatabaseURL),
		"admin_token", secrets.Mask(c.AdminAPIToken),
		"namespace", c.CacheNamespace,
		"persist", c.CachePersist,
		"max_size_bytes", c.CacheMaxSize,
		"default_ttl", c.CacheDefaultTTL.String(),
	}
}
