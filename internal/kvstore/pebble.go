package kvstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble/v2"
)

// PebbleBackend is the durable backend: an embedded LSM store that survives
// process restarts.
type PebbleBackend struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
}

// OpenPebbleBackend opens or creates a PebbleDB at path. With syncWrites each
// write is fsynced; otherwise writes are flushed on Close.
func OpenPebbleBackend(path string, syncWrites bool) (*PebbleBackend, error) {
	db, err := pebble.Open(path, &pebble.Options{
		FormatMajorVersion: pebble.FormatNewest,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open PebbleDB at %s: %w", path, err)
	}
	wo := pebble.NoSync
	if syncWrites {
		wo = pebble.Sync
	}
	return &PebbleBackend{db: db, writeOpts: wo}, nil
}

func (b *PebbleBackend) Name() string { return "pebble" }

// Put ignores expiresAt; expiry is enforced by the envelope on read.
func (b *PebbleBackend) Put(key string, value []byte, _ time.Time) error {
	if key == "" {
		return ErrEmptyKey
	}
	return b.db.Set([]byte(key), value, b.writeOpts)
}

func (b *PebbleBackend) Get(key string) ([]byte, bool, error) {
	value, closer, err := b.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return append([]byte(nil), value...), true, nil
}

func (b *PebbleBackend) Delete(key string) error {
	return b.db.Delete([]byte(key), b.writeOpts)
}

func (b *PebbleBackend) Keys(prefix string) ([]string, error) {
	opts := &pebble.IterOptions{}
	if prefix != "" {
		opts.LowerBound = []byte(prefix)
		opts.UpperBound = prefixUpperBound([]byte(prefix))
	}
	iter, err := b.db.NewIter(opts)
	if err != nil {
		return nil, err
	}

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (b *PebbleBackend) Close() error {
	if err := b.db.Flush(); err != nil {
		b.db.Close()
		return err
	}
	return b.db.Close()
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil if there is none.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
