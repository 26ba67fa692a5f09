package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache manager gauges. Hits, misses, evictions and expired counts are
	// exported as gauges because the manager zeroes them on Clear.
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Number of entries held by the cache manager, including lazily expired ones",
		},
		[]string{"namespace"},
	)

	CacheSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_size_bytes",
			Help: "Estimated size of all cache entries in bytes",
		},
		[]string{"namespace"},
	)

	CacheHits = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_hits",
			Help: "Cache hits since construction or the last clear",
		},
		[]string{"namespace"},
	)

	CacheMisses = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_misses",
			Help: "Cache misses since construction or the last clear",
		},
		[]string{"namespace"},
	)

	CacheHitRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_hit_rate_percent",
			Help: "Cache hit rate in percent (0-100)",
		},
		[]string{"namespace"},
	)

	CacheExpiredCleared = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_expired_cleared",
			Help: "Expired entries purged since construction or the last clear",
		},
		[]string{"namespace"},
	)

	CacheEvictions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_evictions",
			Help: "LRU evictions since construction or the last clear",
		},
		[]string{"namespace"},
	)

	// Storage mirror metrics
	CacheStorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_storage_errors_total",
			Help: "Total number of failed key/value store mirror operations",
		},
		[]string{"operation"}, // operation: set, remove, clear, restore
	)

	CacheStorageSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_storage_skipped_total",
			Help: "Mirror operations skipped because the storage circuit breaker was open",
		},
		[]string{"operation"},
	)

	CachePanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_panics_recovered_total",
			Help: "Panics recovered inside cache operations",
		},
		[]string{"operation"},
	)

	KVStoreCorruptEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvstore_corrupt_entries_total",
			Help: "Persisted entries dropped because they could not be decoded",
		},
		[]string{"backend"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"component"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"component"},
	)

	// API request metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"endpoint", "method", "status"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to clients",
		},
	)
)
