package cache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/onnwee/caseace-cache/internal/circuitbreaker"
	"github.com/onnwee/caseace-cache/internal/kvstore"
	"github.com/onnwee/caseace-cache/internal/metrics"
)

// persistedEntry is what the manager writes for each key. Timestamps are
// unix milliseconds; ExpiresAt 0 means never.
type persistedEntry struct {
	Value     json.RawMessage `json:"value"`
	CreatedAt int64           `json:"createdAt"`
	ExpiresAt int64           `json:"expiresAt"`
}

// prefixRemover is implemented by stores that can drop a key range in one
// call, such as *kvstore.Storage.
type prefixRemover interface {
	RemovePrefix(prefix string) (int, error)
}

func (m *Manager) persisting() bool {
	return m.opts.PersistToStorage && m.store != nil
}

func (m *Manager) storageKey(key string) string {
	return m.opts.StorageNamespace + ":" + key
}

// storeCall runs fn through the breaker. Failures, panics included, are
// counted and, in development, logged; they never reach the caller.
func (m *Manager) storeCall(op, key string, fn func(kvstore.Store) error) {
	call := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("store panic: %v", r)
			}
		}()
		return fn(m.store)
	}
	var err error
	if m.breaker != nil {
		err = m.breaker.Call(call)
	} else {
		err = call()
	}

	switch {
	case err == nil:
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		metrics.CacheStorageSkipped.WithLabelValues(op).Inc()
	default:
		metrics.CacheStorageErrors.WithLabelValues(op).Inc()
		if m.development {
			m.log.Warn("Cache storage operation failed", "operation", op, "key", key, "error", err)
		}
	}
}

func (m *Manager) mirrorSet(e *Entry, raw []byte, now time.Time) {
	if !m.persisting() {
		return
	}
	rec := persistedEntry{Value: raw, CreatedAt: e.CreatedAt.UnixMilli()}
	opts := kvstore.SetOptions{UseSessionStorage: m.sessionStorage}
	if !e.ExpiresAt.IsZero() {
		rec.ExpiresAt = e.ExpiresAt.UnixMilli()
		opts.ExpiresIn = e.ExpiresAt.Sub(now)
	}
	m.storeCall("set", e.Key, func(s kvstore.Store) error {
		return s.SetItem(m.storageKey(e.Key), rec, opts)
	})
}

func (m *Manager) mirrorRemove(key string) {
	if !m.persisting() {
		return
	}
	m.storeCall("remove", key, func(s kvstore.Store) error {
		return s.RemoveItem(m.storageKey(key))
	})
}

func (m *Manager) mirrorClear() {
	if !m.persisting() {
		return
	}
	prefix := m.opts.StorageNamespace + ":"
	m.storeCall("clear", prefix, func(s kvstore.Store) error {
		if pr, ok := s.(prefixRemover); ok {
			_, err := pr.RemovePrefix(prefix)
			return err
		}
		keys, err := s.GetAllKeys()
		if err != nil {
			return err
		}
		var errs []error
		for _, k := range keys {
			if strings.HasPrefix(k, prefix) {
				if err := s.RemoveItem(k); err != nil {
					errs = append(errs, err)
				}
			}
		}
		return errors.Join(errs...)
	})
}

// Restore loads the manager's namespace back from the store and returns how
// many entries were added. Keys already in memory, expired records and
// records that no longer fit in MaxSize are skipped. Restored values are
// json.RawMessage; read them with GetAs or a Typed view.
//
// Restore does not write back to the store and does not touch hit/miss
// counters.
func (m *Manager) Restore() (n int) {
	defer m.recoverOp("restore")
	if !m.persisting() {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := m.opts.StorageNamespace + ":"
	var keys []string
	m.storeCall("restore", prefix, func(s kvstore.Store) error {
		all, err := s.GetAllKeys()
		keys = all
		return err
	})

	now := m.now()
	for _, full := range keys {
		key, ok := strings.CutPrefix(full, prefix)
		if !ok || key == "" {
			continue
		}
		if _, exists := m.entries[key]; exists {
			continue
		}

		var rec persistedEntry
		var found bool
		m.storeCall("restore", key, func(s kvstore.Store) error {
			var err error
			found, err = s.GetItem(full, &rec)
			return err
		})
		if !found || rec.Value == nil {
			continue
		}

		e := &Entry{
			Key:            key,
			Value:          rec.Value,
			CreatedAt:      time.UnixMilli(rec.CreatedAt),
			LastAccessedAt: now,
			persistable:    true,
		}
		if rec.ExpiresAt != 0 {
			e.ExpiresAt = time.UnixMilli(rec.ExpiresAt)
			if e.expired(now) {
				continue
			}
		}
		e.Size, _ = estimateSize(rec.Value)
		if m.opts.MaxSize > 0 && m.totalSize+e.Size > m.opts.MaxSize {
			continue
		}

		m.seq++
		e.seq = m.seq
		m.entries[key] = e
		m.totalSize += e.Size
		n++
	}
	m.syncCountsLocked()
	if n > 0 {
		m.log.Info("Restored cache entries from storage", "count", n)
	}
	return n
}
