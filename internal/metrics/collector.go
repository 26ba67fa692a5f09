package metrics

import (
	"context"
	"sync"
	"time"
)

// CacheSnapshot is the subset of cache statistics exported to Prometheus.
type CacheSnapshot struct {
	Namespace      string
	Entries        int
	TotalSize      int64
	Hits           uint64
	Misses         uint64
	HitRate        float64
	ExpiredCleared uint64
	Evictions      uint64
}

// SnapshotSource is implemented by anything that can report cache statistics.
type SnapshotSource interface {
	MetricsSnapshot() CacheSnapshot
}

// Collector periodically publishes cache snapshots as Prometheus gauges
type Collector struct {
	sources  []SnapshotSource
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// DefaultCollectInterval is used when NewCollector gets a non-positive interval.
const DefaultCollectInterval = 15 * time.Second

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration, sources ...SnapshotSource) *Collector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &Collector{
		sources:  sources,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()

	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the metrics collector. Safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Collect publishes one snapshot from every source.
func (c *Collector) Collect() {
	for _, src := range c.sources {
		Publish(src.MetricsSnapshot())
	}
}

// Publish sets the cache gauges for one namespace.
func Publish(s CacheSnapshot) {
	ns := s.Namespace
	CacheEntries.WithLabelValues(ns).Set(float64(s.Entries))
	CacheSizeBytes.WithLabelValues(ns).Set(float64(s.TotalSize))
	CacheHits.WithLabelValues(ns).Set(float64(s.Hits))
	CacheMisses.WithLabelValues(ns).Set(float64(s.Misses))
	CacheHitRate.WithLabelValues(ns).Set(s.HitRate)
	CacheExpiredCleared.WithLabelValues(ns).Set(float64(s.ExpiredCleared))
	CacheEvictions.WithLabelValues(ns).Set(float64(s.Evictions))
}
