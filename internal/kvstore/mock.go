package kvstore

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrInjected is returned by test doubles configured to fail.
var ErrInjected = errors.New("kvstore: injected failure")

// MockBackend is an in-memory Backend for tests. Individual operations can be
// made to fail.
type MockBackend struct {
	mu   sync.Mutex
	data map[string][]byte

	name       string
	FailPut    bool
	FailGet    bool
	FailDelete bool
	FailKeys   bool

	Puts    int
	Deletes int
}

// NewMockBackend returns an empty mock named name.
func NewMockBackend(name string) *MockBackend {
	if name == "" {
		name = "mock"
	}
	return &MockBackend{name: name, data: make(map[string][]byte)}
}

func (m *MockBackend) Name() string { return m.name }

func (m *MockBackend) Put(key string, value []byte, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPut {
		return ErrInjected
	}
	if key == "" {
		return ErrEmptyKey
	}
	m.Puts++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MockBackend) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailGet {
		return nil, false, ErrInjected
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MockBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete {
		return ErrInjected
	}
	m.Deletes++
	delete(m.data, key)
	return nil
}

func (m *MockBackend) Keys(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailKeys {
		return nil, ErrInjected
	}
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MockBackend) Close() error { return nil }

// Raw returns the bytes stored under the full key.
func (m *MockBackend) Raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// SetRaw stores bytes under the full key, bypassing envelopes and codecs.
func (m *MockBackend) SetRaw(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// Len reports how many keys are stored.
func (m *MockBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// FailingStore is a Store whose every operation fails.
type FailingStore struct {
	mu    sync.Mutex
	calls int
}

func (f *FailingStore) SetItem(string, any, SetOptions) error { return f.fail() }

func (f *FailingStore) GetItem(string, any) (bool, error) { return false, f.fail() }

func (f *FailingStore) RemoveItem(string) error { return f.fail() }

func (f *FailingStore) GetAllKeys() ([]string, error) { return nil, f.fail() }

func (f *FailingStore) Clear() error { return f.fail() }

// Calls reports how many operations were attempted.
func (f *FailingStore) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FailingStore) fail() error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return ErrInjected
}
