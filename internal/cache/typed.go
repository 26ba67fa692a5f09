package cache

import (
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// GetAs is Get with the value converted to T. Values restored from storage
// are held as JSON and decoded here. A value of another type is a miss as
// far as the caller is concerned, though it still counts as a hit.
func GetAs[T any](m *Manager, key string) (T, bool) {
	var zero T
	v, ok := m.Get(key)
	if !ok {
		return zero, false
	}
	switch tv := v.(type) {
	case T:
		return tv, true
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(tv, &out); err != nil {
			return zero, false
		}
		return out, true
	}
	return zero, false
}

// Typed is a view over one key prefix whose values all share type T. Keys
// are stored as "<prefix>:<id>".
type Typed[T any] struct {
	m      *Manager
	prefix string
}

// NewTyped returns a view of m for keys under prefix.
func NewTyped[T any](m *Manager, prefix string) *Typed[T] {
	return &Typed[T]{m: m, prefix: prefix}
}

// Key returns the full cache key for id.
func (t *Typed[T]) Key(id string) string { return t.prefix + ":" + id }

func (t *Typed[T]) Get(id string) (T, bool) { return GetAs[T](t.m, t.Key(id)) }

func (t *Typed[T]) Set(id string, v T) { t.m.Set(t.Key(id), v) }

func (t *Typed[T]) SetWithTTL(id string, v T, ttl time.Duration) {
	t.m.SetWithTTL(t.Key(id), v, ttl)
}

func (t *Typed[T]) Delete(id string) { t.m.Delete(t.Key(id)) }

func (t *Typed[T]) Has(id string) bool { return t.m.Has(t.Key(id)) }

// InvalidateAll removes every key under the prefix.
func (t *Typed[T]) InvalidateAll() int {
	p := t.prefix + ":"
	return t.m.InvalidateFunc(func(k string) bool { return strings.HasPrefix(k, p) })
}
