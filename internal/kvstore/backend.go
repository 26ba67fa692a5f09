package kvstore

import (
	"errors"
	"time"
)

// ErrEmptyKey is returned when an operation is given an empty key.
var ErrEmptyKey = errors.New("kvstore: empty key")

// Backend is a raw byte store. Storage layers namespacing, envelopes and
// codecs on top of it. Implementations must be safe for concurrent use.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Put stores value under key. expiresAt is a hint; the zero value means
	// no expiry. Backends that cannot expire natively may ignore it.
	Put(key string, value []byte, expiresAt time.Time) error
	// Get returns the stored bytes, or false when the key is absent.
	Get(key string) ([]byte, bool, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	// Keys lists every key starting with prefix.
	Keys(prefix string) ([]string, error)
	Close() error
}
