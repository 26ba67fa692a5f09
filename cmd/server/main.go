package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/caseace-cache/internal/api"
	"github.com/onnwee/caseace-cache/internal/api/handlers"
	"github.com/onnwee/caseace-cache/internal/cache"
	"github.com/onnwee/caseace-cache/internal/circuitbreaker"
	"github.com/onnwee/caseace-cache/internal/config"
	"github.com/onnwee/caseace-cache/internal/errorreporting"
	"github.com/onnwee/caseace-cache/internal/logger"
	"github.com/onnwee/caseace-cache/internal/metrics"
	"github.com/onnwee/caseace-cache/internal/middleware"
	"github.com/onnwee/caseace-cache/internal/server"
	"github.com/onnwee/caseace-cache/internal/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (falling back to system env)")
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.Info("Starting cache service", cfg.LogFields()...)

	if err := errorreporting.Init(errorreporting.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.SentryRelease,
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		logger.Warn("Sentry disabled", "error", err)
	}
	defer errorreporting.Flush(2 * time.Second)

	shutdownTracing, err := tracing.Init(tracing.Config{
		Enabled:     cfg.OTELEnabled,
		Endpoint:    cfg.OTELEndpoint,
		SampleRate:  cfg.OTELSampleRate,
		ServiceName: cfg.OTELServiceName,
	})
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := server.OpenStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("Storage init failed: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()
	if store.Purge != nil {
		go server.RunPurge(ctx, store.Purge, cfg.CacheCleanupInterval)
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:             "kvstore:" + cfg.CacheNamespace,
		FailureThreshold: cfg.StorageBreakerThreshold,
		Timeout:          cfg.StorageBreakerTimeout,
	})
	cacheOpts := []cache.Option{cache.WithStore(store), cache.WithBreaker(breaker)}
	if cfg.CacheSessionStorage {
		cacheOpts = append(cacheOpts, cache.WithSessionStorage())
	}
	manager, err := cache.New(cfg.CacheOptions(), cacheOpts...)
	if err != nil {
		log.Fatalf("Cache init failed: %v", err)
	}
	if cfg.CachePersist {
		n := manager.Restore()
		logger.Info("Restored persisted cache entries", "count", n)
	}

	collector := metrics.NewCollector(cfg.MetricsInterval, manager)
	go collector.Start(ctx)

	hub := handlers.NewHub(manager, cfg.StatsStreamInterval, cfg.StreamAllowedOrigins)
	go hub.Run(ctx)

	var limiter *middleware.RateLimiter
	if cfg.EnableRateLimit {
		limiter = middleware.NewRateLimiter(cfg.RateLimitGlobal, cfg.RateLimitGlobalBurst, cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst)
		defer limiter.Stop()
	}
	if cfg.AdminAPIToken == "" {
		logger.Warn("ADMIN_API_TOKEN not set; admin routes are disabled")
	}

	var storageBreaker *circuitbreaker.CircuitBreaker
	if cfg.CachePersist {
		storageBreaker = breaker
	}
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.Deps{
			Cache:       manager,
			Breaker:     storageBreaker,
			Hub:         hub,
			AdminToken:  cfg.AdminAPIToken,
			RateLimiter: limiter,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	collector.Stop()
	<-hub.Done()

	if cfg.CachePersist {
		manager.Close()
	} else {
		manager.Destroy()
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown failed", "error", err)
		}
	}
}
