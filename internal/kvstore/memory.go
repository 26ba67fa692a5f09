package kvstore

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

const defaultSessionMaxMB = 16

// MemoryBackend is the session-scoped backend: bounded, process-local and
// lost on restart. Values live in ristretto; a key index makes them
// enumerable, which ristretto itself cannot do.
type MemoryBackend struct {
	cache *ristretto.Cache

	mu    sync.Mutex
	index map[string]struct{}
}

// NewMemoryBackend creates a session backend holding at most maxSizeMB of data.
func NewMemoryBackend(maxSizeMB int64) (*MemoryBackend, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = defaultSessionMaxMB
	}
	maxCost := maxSizeMB * 1024 * 1024

	// NumCounters should be ~10x the expected number of entries; assume
	// entries of roughly 1KB.
	numCounters := maxCost / 1024 * 10
	if numCounters < 1000 {
		numCounters = 1000
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryBackend{cache: cache, index: make(map[string]struct{})}, nil
}

func (b *MemoryBackend) Name() string { return "session" }

// Put stores a copy of value. Items whose expiry already passed are dropped.
// ristretto may decline an item under memory pressure; that is reported as
// success and the item simply reads back as absent.
func (b *MemoryBackend) Put(key string, value []byte, expiresAt time.Time) error {
	if key == "" {
		return ErrEmptyKey
	}
	var ttl time.Duration
	if !expiresAt.IsZero() {
		if ttl = time.Until(expiresAt); ttl <= 0 {
			return b.Delete(key)
		}
	}

	data := append([]byte(nil), value...)
	b.mu.Lock()
	b.index[key] = struct{}{}
	b.mu.Unlock()

	b.cache.SetWithTTL(key, data, int64(len(key)+len(data)), ttl)
	// Make the write visible to the next Get.
	b.cache.Wait()
	return nil
}

func (b *MemoryBackend) Get(key string) ([]byte, bool, error) {
	v, ok := b.cache.Get(key)
	if !ok {
		b.forget(key)
		return nil, false, nil
	}
	data, ok := v.([]byte)
	if !ok {
		b.cache.Del(key)
		b.forget(key)
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (b *MemoryBackend) Delete(key string) error {
	b.cache.Del(key)
	b.forget(key)
	return nil
}

// Keys lists indexed keys that are still present in the cache.
func (b *MemoryBackend) Keys(prefix string) ([]string, error) {
	b.mu.Lock()
	candidates := make([]string, 0, len(b.index))
	for k := range b.index {
		if strings.HasPrefix(k, prefix) {
			candidates = append(candidates, k)
		}
	}
	b.mu.Unlock()

	keys := candidates[:0]
	for _, k := range candidates {
		if _, ok := b.cache.Get(k); ok {
			keys = append(keys, k)
		} else {
			b.forget(k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *MemoryBackend) Close() error {
	b.cache.Close()
	return nil
}

func (b *MemoryBackend) forget(key string) {
	b.mu.Lock()
	delete(b.index, key)
	b.mu.Unlock()
}
