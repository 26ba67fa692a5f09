package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/caseace-cache/internal/circuitbreaker"
	"github.com/onnwee/caseace-cache/internal/kvstore"
)

// ErrInvalidOptions is returned by New when Options fail validation. It is the
// only error the cache API ever returns.
var ErrInvalidOptions = errors.New("cache: invalid options")

// Entry is one cached value and its bookkeeping.
type Entry struct {
	Key            string    `json:"key"`
	Value          any       `json:"value"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"` // zero means never
	Size           int64     `json:"size"`
	AccessCount    uint64    `json:"accessCount"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`

	seq         uint64
	persistable bool
}

func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Stats is a point-in-time copy of the manager's counters.
type Stats struct {
	Entries        int     `json:"entries"`
	TotalSize      int64   `json:"totalSize"`
	Hits           uint64  `json:"hits"`
	Misses         uint64  `json:"misses"`
	HitRate        float64 `json:"hitRate"`
	ExpiredCleared uint64  `json:"expiredCleared"`
	Evictions      uint64  `json:"evictions"`
}

// Options are fixed when the manager is constructed.
type Options struct {
	DefaultTTL       time.Duration `json:"defaultTTL"`       // 0 = entries never expire
	MaxSize          int64         `json:"maxSize"`          // bytes, 0 = unbounded
	PersistToStorage bool          `json:"persistToStorage"` // mirror writes to the store
	StorageNamespace string        `json:"storageNamespace"`
	AutoCleanup      bool          `json:"autoCleanup"`
	CleanupInterval  time.Duration `json:"cleanupInterval"`
}

// DefaultOptions returns the stock configuration: 5 minute TTL, 50 MiB budget,
// no persistence, a 60 second sweep.
func DefaultOptions() Options {
	return Options{
		DefaultTTL:       5 * time.Minute,
		MaxSize:          50 * 1024 * 1024,
		PersistToStorage: false,
		StorageNamespace: "cache",
		AutoCleanup:      true,
		CleanupInterval:  60 * time.Second,
	}
}

// Validate reports the first problem with o, wrapped in ErrInvalidOptions.
func (o Options) Validate() error {
	switch {
	case o.DefaultTTL < 0:
		return fmt.Errorf("%w: negative default TTL %s", ErrInvalidOptions, o.DefaultTTL)
	case o.MaxSize < 0:
		return fmt.Errorf("%w: negative max size %d", ErrInvalidOptions, o.MaxSize)
	case o.PersistToStorage && o.StorageNamespace == "":
		return fmt.Errorf("%w: persistence requires a storage namespace", ErrInvalidOptions)
	case o.AutoCleanup && o.CleanupInterval <= 0:
		return fmt.Errorf("%w: auto cleanup requires a positive interval, got %s", ErrInvalidOptions, o.CleanupInterval)
	}
	return nil
}

// Option injects a collaborator into the manager.
type Option func(*Manager)

// WithStore sets the key/value store used when Options.PersistToStorage is on.
func WithStore(s kvstore.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides time.Now. Tests use it to step through expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithBreaker replaces the default circuit breaker that guards the store.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(m *Manager) { m.breaker = cb }
}

// WithDevelopment forces development mode on or off. In development, store
// failures are logged; otherwise they are only counted.
func WithDevelopment(dev bool) Option {
	return func(m *Manager) { m.development = dev }
}

// WithSessionStorage mirrors entries into the store's session backend
// instead of its durable one.
func WithSessionStorage() Option {
	return func(m *Manager) { m.sessionStorage = true }
}
