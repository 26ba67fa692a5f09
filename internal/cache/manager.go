package cache

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/onnwee/caseace-cache/internal/circuitbreaker"
	"github.com/onnwee/caseace-cache/internal/errorreporting"
	"github.com/onnwee/caseace-cache/internal/kvstore"
	"github.com/onnwee/caseace-cache/internal/logger"
	"github.com/onnwee/caseace-cache/internal/metrics"
)

// Manager is an in-memory cache with per-entry TTL, a size budget enforced by
// least-recently-accessed eviction, usage statistics and an optional mirror
// into a kvstore.Store.
//
// Expiry is lazy: an expired entry keeps counting toward Stats and appears
// in Keys until Get, Has or the periodic sweep removes it.
//
// All methods are safe for concurrent use. None of them panic or return
// errors; internal failures degrade to a miss or a no-op.
type Manager struct {
	opts Options

	mu        sync.Mutex
	entries   map[string]*Entry
	totalSize int64
	stats     Stats
	seq       uint64

	store          kvstore.Store
	breaker        *circuitbreaker.CircuitBreaker
	sessionStorage bool

	now         func() time.Time
	log         *slog.Logger
	development bool

	sweep *sweeper
}

// New validates opts and returns a running manager. When opts.AutoCleanup is
// set the sweep goroutine starts immediately; call Destroy to stop it.
func New(opts Options, options ...Option) (*Manager, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		opts:        opts,
		entries:     make(map[string]*Entry),
		now:         time.Now,
		log:         logger.WithComponent("cache"),
		development: logger.IsDevelopment(),
	}
	for _, o := range options {
		o(m)
	}
	m.log = m.log.With("namespace", opts.StorageNamespace)

	if opts.PersistToStorage {
		if m.store == nil {
			m.log.Warn("Persistence enabled without a store; entries stay in memory only")
		} else if m.breaker == nil {
			m.breaker = circuitbreaker.New(circuitbreaker.Config{Name: "kvstore:" + opts.StorageNamespace})
		}
	}

	if opts.AutoCleanup {
		m.sweep = startSweeper(m, opts.CleanupInterval)
	}
	return m, nil
}

// Options returns the configuration the manager was built with.
func (m *Manager) Options() Options { return m.opts }

// Set stores value under key with the default TTL.
func (m *Manager) Set(key string, value any) {
	defer m.recoverOp("set")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(key, value, m.opts.DefaultTTL)
}

// SetWithTTL stores value under key. A ttl of 0 never expires; a negative
// ttl falls back to the default TTL.
func (m *Manager) SetWithTTL(key string, value any, ttl time.Duration) {
	defer m.recoverOp("set")
	if ttl < 0 {
		ttl = m.opts.DefaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(key, value, ttl)
}

func (m *Manager) setLocked(key string, value any, ttl time.Duration) {
	if key == "" {
		m.log.Debug("Ignoring cache set with empty key")
		return
	}
	now := m.now()
	size, raw := estimateSize(value)

	old, exists := m.entries[key]
	if m.opts.MaxSize > 0 {
		projected := m.totalSize + size
		if exists {
			projected -= old.Size
		}
		if projected > m.opts.MaxSize {
			m.evictLocked(projected-m.opts.MaxSize, key)
		}
	}
	if exists {
		m.totalSize -= old.Size
	}

	m.seq++
	e := &Entry{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		Size:           size,
		LastAccessedAt: now,
		seq:            m.seq,
		persistable:    raw != nil,
	}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	m.entries[key] = e
	m.totalSize += size
	m.syncCountsLocked()

	if e.persistable {
		m.mirrorSet(e, raw, now)
	} else {
		if m.development {
			m.log.Debug("Value could not be serialized, skipping persistence", "key", key)
		}
		// Drop any copy left by an earlier, serializable value.
		m.mirrorRemove(key)
	}
}

// Get returns the value for key. Expired entries are purged and reported as
// misses.
func (m *Manager) Get(key string) (value any, ok bool) {
	defer m.recoverOp("get")
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, found := m.entries[key]
	if !found {
		m.recordLookupLocked(false)
		return nil, false
	}
	if e.expired(now) {
		m.deleteLocked(key)
		m.stats.ExpiredCleared++
		m.recordLookupLocked(false)
		return nil, false
	}

	e.AccessCount++
	e.LastAccessedAt = now
	m.seq++
	e.seq = m.seq
	m.recordLookupLocked(true)
	return e.Value, true
}

// Has reports whether key holds a live entry. An expired entry is purged,
// but hit/miss counters and access metadata are left alone.
func (m *Manager) Has(key string) (ok bool) {
	defer m.recoverOp("has")
	m.mu.Lock()
	defer m.mu.Unlock()

	e, found := m.entries[key]
	if !found {
		return false
	}
	if e.expired(m.now()) {
		m.deleteLocked(key)
		m.stats.ExpiredCleared++
		return false
	}
	return true
}

// Delete removes key and its mirrored copy. Absent keys are ignored.
func (m *Manager) Delete(key string) {
	defer m.recoverOp("delete")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(key)
}

func (m *Manager) deleteLocked(key string) bool {
	e, ok := m.entries[key]
	if !ok {
		return false
	}
	delete(m.entries, key)
	m.totalSize -= e.Size
	m.syncCountsLocked()
	m.mirrorRemove(key)
	return true
}

// InvalidatePattern deletes every key matching re and returns how many were
// removed. A nil pattern matches nothing.
func (m *Manager) InvalidatePattern(re *regexp.Regexp) (n int) {
	if re == nil {
		return 0
	}
	return m.InvalidateFunc(re.MatchString)
}

// InvalidateFunc deletes every key for which match returns true.
func (m *Manager) InvalidateFunc(match func(key string) bool) (n int) {
	defer m.recoverOp("invalidate")
	if match == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []string
	for k := range m.entries {
		if match(k) {
			matched = append(matched, k)
		}
	}
	for _, k := range matched {
		if m.deleteLocked(k) {
			n++
		}
	}
	return n
}

// Clear drops every entry, zeroes the statistics and, when persisting,
// removes the namespace from the store.
func (m *Manager) Clear() {
	defer m.recoverOp("clear")
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*Entry)
	m.totalSize = 0
	m.stats = Stats{}
	m.mirrorClear()
}

// Cleanup purges every expired entry and returns how many were removed.
func (m *Manager) Cleanup() (n int) {
	defer m.recoverOp("cleanup")
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var expired []string
	for k, e := range m.entries {
		if e.expired(now) {
			expired = append(expired, k)
		}
	}
	for _, k := range expired {
		if m.deleteLocked(k) {
			n++
		}
	}
	m.stats.ExpiredCleared += uint64(n)
	if n > 0 {
		m.log.Debug("Cache cleanup removed expired entries", "count", n)
	}
	return n
}

// Stats returns a copy of the current counters.
func (m *Manager) Stats() (s Stats) {
	defer m.recoverOp("stats")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Keys returns the stored keys in sorted order. Entries that expired but
// have not been touched since are still listed.
func (m *Manager) Keys() (keys []string) {
	defer m.recoverOp("keys")
	m.mu.Lock()
	defer m.mu.Unlock()

	keys = make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len is the number of stored entries, expired or not.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Inspect returns a copy of the entry under key without touching its access
// metadata or the hit/miss counters.
func (m *Manager) Inspect(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Destroy stops the sweep goroutine, waits for it to exit and clears the
// cache. It is safe to call more than once.
func (m *Manager) Destroy() {
	if m.sweep != nil {
		m.sweep.stop()
	}
	m.Clear()
}

// Close stops the sweep goroutine and leaves entries and the persisted
// mirror in place, so a later process can Restore them.
func (m *Manager) Close() {
	if m.sweep != nil {
		m.sweep.stop()
	}
}

// MetricsSnapshot implements metrics.SnapshotSource.
func (m *Manager) MetricsSnapshot() metrics.CacheSnapshot {
	s := m.Stats()
	return metrics.CacheSnapshot{
		Namespace:      m.opts.StorageNamespace,
		Entries:        s.Entries,
		TotalSize:      s.TotalSize,
		Hits:           s.Hits,
		Misses:         s.Misses,
		HitRate:        s.HitRate,
		ExpiredCleared: s.ExpiredCleared,
		Evictions:      s.Evictions,
	}
}

// evictLocked removes least recently accessed entries, never keep, until at
// least need bytes are freed or nothing is left.
func (m *Manager) evictLocked(need int64, keep string) {
	candidates := make([]*Entry, 0, len(m.entries))
	for k, e := range m.entries {
		if k != keep {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.LastAccessedAt.Equal(b.LastAccessedAt) {
			return a.LastAccessedAt.Before(b.LastAccessedAt)
		}
		return a.seq < b.seq
	})

	var freed int64
	for _, e := range candidates {
		if freed >= need {
			break
		}
		m.stats.Evictions++
		freed += e.Size
		m.deleteLocked(e.Key)
	}
	if freed < need {
		m.log.Debug("Cache over budget after evicting everything", "short_bytes", need-freed)
	}
}

func (m *Manager) recordLookupLocked(hit bool) {
	if hit {
		m.stats.Hits++
	} else {
		m.stats.Misses++
	}
	total := m.stats.Hits + m.stats.Misses
	m.stats.HitRate = float64(m.stats.Hits) / float64(total) * 100
}

func (m *Manager) syncCountsLocked() {
	m.stats.Entries = len(m.entries)
	m.stats.TotalSize = m.totalSize
}

// recoverOp turns a panic inside a public method into a logged, reported
// no-op. It must be deferred before the lock is taken so the unlock runs
// first.
func (m *Manager) recoverOp(op string) {
	r := recover()
	if r == nil {
		return
	}
	metrics.CachePanicsRecovered.WithLabelValues(op).Inc()
	m.log.Error("Recovered panic in cache operation", "operation", op, "panic", r)
	errorreporting.CaptureErrorWithContext(
		fmt.Errorf("cache %s: panic: %v", op, r),
		map[string]string{"component": "cache", "operation": op},
		map[string]interface{}{"namespace": m.opts.StorageNamespace},
	)
}
