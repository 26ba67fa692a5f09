// Package server assembles the process-wide storage stack from configuration.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/onnwee/caseace-cache/internal/config"
	"github.com/onnwee/caseace-cache/internal/kvstore"
	"github.com/onnwee/caseace-cache/internal/logger"
)

// Storage bundles the store with whatever must be closed alongside it.
type Storage struct {
	*kvstore.Storage
	closers []io.Closer
	// Purge is set for backends that keep expired rows until asked.
	Purge func(context.Context) (int64, error)
}

// Close closes the backends and the database handle, if any.
func (s *Storage) Close() error {
	err := s.Storage.Close()
	for _, c := range s.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// OpenStorage builds the durable backend selected by STORAGE_BACKEND, an
// in-memory session backend and the configured codec.
func OpenStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	codec, err := OpenCodec(cfg)
	if err != nil {
		return nil, err
	}
	session, err := kvstore.NewMemoryBackend(cfg.SessionStoreMaxMB)
	if err != nil {
		return nil, fmt.Errorf("session backend: %w", err)
	}

	s := &Storage{}
	var local kvstore.Backend
	switch cfg.StorageBackend {
	case config.BackendMemory:
		local = session
	case config.BackendPebble:
		pb, err := kvstore.OpenPebbleBackend(cfg.StoragePath, cfg.StorageSyncWrites)
		if err != nil {
			session.Close()
			return nil, err
		}
		local = pb
	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			session.Close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			session.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		pg := kvstore.NewPostgresBackend(db, cfg.StorageTable, cfg.StorageTimeout)
		if err := pg.EnsureSchema(pingCtx); err != nil {
			db.Close()
			session.Close()
			return nil, err
		}
		local = pg
		s.closers = append(s.closers, db)
		s.Purge = pg.PurgeExpired
	default:
		session.Close()
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	s.Storage = kvstore.New(cfg.StoragePrefix, local,
		kvstore.WithSessionBackend(session),
		kvstore.WithCodec(codec),
	)
	return s, nil
}

// OpenCodec returns the codec selected by STORAGE_CODEC.
func OpenCodec(cfg *config.Config) (kvstore.Codec, error) {
	switch cfg.StorageCodec {
	case config.CodecObfuscate:
		c, err := kvstore.NewXORObfuscator(cfg.StorageObfuscationKey)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.CodecSealed:
		key, err := cfg.SealingKey()
		if err != nil {
			return nil, err
		}
		c, err := kvstore.NewSealedCodec(key)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return kvstore.Passthrough{}, nil
	}
}

// defaultPurgeInterval replaces a non-positive RunPurge interval.
const defaultPurgeInterval = time.Minute

// RunPurge deletes expired rows on a fixed interval until ctx is done.
func RunPurge(ctx context.Context, purge func(context.Context) (int64, error), interval time.Duration) {
	if interval <= 0 {
		interval = defaultPurgeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge(ctx)
			if err != nil {
				logger.Warn("Failed to purge expired storage rows", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("Purged expired storage rows", "count", n)
			}
		}
	}
}
