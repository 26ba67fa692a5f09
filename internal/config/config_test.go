package config

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/caseace-cache/internal/cache"
	"github.com/onnwee/caseace-cache/internal/secrets"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CACHE_DEFAULT_TTL_MS", "CACHE_MAX_SIZE_BYTES", "CACHE_PERSIST", "CACHE_NAMESPACE",
		"CACHE_AUTO_CLEANUP", "CACHE_CLEANUP_INTERVAL_MS", "STORAGE_BACKEND", "STORAGE_CODEC",
		"STORAGE_SEALING_KEY", "STORAGE_OBFUSCATION_KEY", "DATABASE_URL", "SENTRY_ENVIRONMENT",
		"ENV", "STATS_STREAM_ALLOWED_ORIGINS", "LOG_LEVEL", "METRICS_INTERVAL_MS",
	} {
		t.Setenv(k, "")
	}
	ResetForTest()
	t.Cleanup(ResetForTest)
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	want := cache.DefaultOptions()
	if got := cfg.CacheOptions(); got != want {
		t.Fatalf("CacheOptions() = %+v, want %+v", got, want)
	}
	if cfg.StorageBackend != BackendMemory || cfg.StorageCodec != CodecNone {
		t.Errorf("unexpected storage defaults: %s/%s", cfg.StorageBackend, cfg.StorageCodec)
	}
	if cfg.StoragePrefix != "caseace" || cfg.HTTPAddr != ":8080" {
		t.Errorf("unexpected defaults: prefix=%q addr=%q", cfg.StoragePrefix, cfg.HTTPAddr)
	}
	if cfg.LogLevel != "info" || cfg.SentryEnvironment != "development" {
		t.Errorf("unexpected observability defaults: %q %q", cfg.LogLevel, cfg.SentryEnvironment)
	}
	if cfg.StatsStreamInterval != 5*time.Second || cfg.MetricsInterval != 15*time.Second {
		t.Errorf("unexpected intervals: %s %s", cfg.StatsStreamInterval, cfg.MetricsInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CACHE_DEFAULT_TTL_MS", "1000")
	t.Setenv("CACHE_MAX_SIZE_BYTES", "0")
	t.Setenv("CACHE_PERSIST", "true")
	t.Setenv("CACHE_NAMESPACE", "tenant-a")
	t.Setenv("STORAGE_BACKEND", "Pebble")
	t.Setenv("STATS_STREAM_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ENV", "staging")

	cfg := Load()
	opts := cfg.CacheOptions()
	if opts.DefaultTTL != time.Second || opts.MaxSize != 0 || !opts.PersistToStorage {
		t.Errorf("overrides not applied: %+v", opts)
	}
	if opts.StorageNamespace != "tenant-a" {
		t.Errorf("namespace = %q", opts.StorageNamespace)
	}
	if cfg.StorageBackend != BackendPebble {
		t.Errorf("backend should be lowercased, got %q", cfg.StorageBackend)
	}
	if strings.Join(cfg.StreamAllowedOrigins, "|") != "https://a.example|https://b.example" {
		t.Errorf("origins = %v", cfg.StreamAllowedOrigins)
	}
	if cfg.SentryEnvironment != "staging" {
		t.Errorf("sentry environment should fall back to ENV, got %q", cfg.SentryEnvironment)
	}
}

func TestLoadIsCached(t *testing.T) {
	clearEnv(t)
	first := Load()
	t.Setenv("CACHE_NAMESPACE", "changed")
	if Load() != first || first.CacheNamespace != "cache" {
		t.Error("Load should return the cached config until ResetForTest")
	}
}

func TestValidate(t *testing.T) {
	validKey := hex.EncodeToString(make([]byte, 32))

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		missing bool
	}{
		{name: "memory", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.StorageBackend = "redis" }, wantErr: true},
		{name: "unknown codec", mutate: func(c *Config) { c.StorageCodec = "rot13" }, wantErr: true},
		{
			name:    "postgres without url",
			mutate:  func(c *Config) { c.StorageBackend = BackendPostgres },
			wantErr: true, missing: true,
		},
		{
			name: "postgres with url",
			mutate: func(c *Config) {
				c.StorageBackend = BackendPostgres
				c.DatabaseURL = "postgres://u:p@localhost/db"
			},
		},
		{
			name:    "obfuscate without key",
			mutate:  func(c *Config) { c.StorageCodec = CodecObfuscate },
			wantErr: true, missing: true,
		},
		{
			name:    "sealed with short key",
			mutate:  func(c *Config) { c.StorageCodec = CodecSealed; c.StorageSealingKey = "abcd" },
			wantErr: true,
		},
		{
			name:   "sealed with key",
			mutate: func(c *Config) { c.StorageCodec = CodecSealed; c.StorageSealingKey = validKey },
		},
		{
			name:    "zero metrics interval",
			mutate:  func(c *Config) { c.MetricsInterval = 0 },
			wantErr: true,
		},
		{
			name: "postgres purge without interval",
			mutate: func(c *Config) {
				c.StorageBackend = BackendPostgres
				c.DatabaseURL = "postgres://u:p@localhost/db"
				c.CacheAutoCleanup = false
				c.CacheCleanupInterval = 0
			},
			wantErr: true,
		},
		{
			name: "memory without sweep or interval",
			mutate: func(c *Config) {
				c.CacheAutoCleanup = false
				c.CacheCleanupInterval = 0
			},
		},
		{
			name:    "bad cache options",
			mutate:  func(c *Config) { c.CacheMaxSize = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := *Load()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var verr *secrets.ValidationError
			if tt.missing && !errors.As(err, &verr) {
				t.Errorf("expected a ValidationError, got %v", err)
			}
		})
	}
}

func TestValidateBadCacheOptionsWraps(t *testing.T) {
	clearEnv(t)
	cfg := *Load()
	cfg.CacheDefaultTTL = -time.Second
	if err := cfg.Validate(); !errors.Is(err, cache.ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestLogFieldsMasksSecrets(t *testing.T) {
	cfg := &Config{
		DatabaseURL:   "postgres://cache:hunter2@db/cache?sslmode=disable",
		AdminAPIToken: "supersecrettoken",
	}
	fields := cfg.LogFields()
	got := make(map[string]any, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		got[fields[i].(string)] = fields[i+1]
	}
	if got["database_url"] != "postgres://cache:***@db/cache?sslmode=disable" {
		t.Errorf("database_url = %v", got["database_url"])
	}
	if got["admin_token"] != "supe..." {
		t.Errorf("admin_token = %v", got["admin_token"])
	}
}
