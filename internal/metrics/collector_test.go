package metrics

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	calls atomic.Int32
	snap  CacheSnapshot
}

func (f *fakeSource) MetricsSnapshot() CacheSnapshot {
	f.calls.Add(1)
	return f.snap
}

func TestPublishSetsGauges(t *testing.T) {
	Publish(CacheSnapshot{
		Namespace:      "publish-test",
		Entries:        3,
		TotalSize:      120,
		Hits:           4,
		Misses:         1,
		HitRate:        80,
		ExpiredCleared: 2,
		Evictions:      5,
	})

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"entries", testutil.ToFloat64(CacheEntries.WithLabelValues("publish-test")), 3},
		{"size", testutil.ToFloat64(CacheSizeBytes.WithLabelValues("publish-test")), 120},
		{"hits", testutil.ToFloat64(CacheHits.WithLabelValues("publish-test")), 4},
		{"misses", testutil.ToFloat64(CacheMisses.WithLabelValues("publish-test")), 1},
		{"hit rate", testutil.ToFloat64(CacheHitRate.WithLabelValues("publish-test")), 80},
		{"expired", testutil.ToFloat64(CacheExpiredCleared.WithLabelValues("publish-test")), 2},
		{"evictions", testutil.ToFloat64(CacheEvictions.WithLabelValues("publish-test")), 5},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s gauge = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestCollectorStartCollectsImmediately(t *testing.T) {
	src := &fakeSource{snap: CacheSnapshot{Namespace: "collector-test", Entries: 7}}
	c := NewCollector(time.Hour, src)

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for src.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()
	c.Stop() // second stop must not panic

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}

	if src.calls.Load() == 0 {
		t.Fatal("expected an initial collection on start")
	}
	if got := testutil.ToFloat64(CacheEntries.WithLabelValues("collector-test")); got != 7 {
		t.Errorf("entries gauge = %v, want 7", got)
	}
}

func TestCollectorContextCancellation(t *testing.T) {
	c := NewCollector(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector ignored context cancellation")
	}
}

func TestNewCollectorDefaultsInterval(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		if c := NewCollector(d); c.interval != DefaultCollectInterval {
			t.Errorf("NewCollector(%s).interval = %s, want %s", d, c.interval, DefaultCollectInterval)
		}
	}
}
