package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ErrSchemaMissing is returned when the backing table does not exist.
var ErrSchemaMissing = errors.New("kvstore: postgres table missing, run EnsureSchema")

const (
	defaultPostgresTable   = "kv_store"
	defaultPostgresTimeout = 5 * time.Second
	pqUndefinedTable       = "42P01"
)

// PostgresBackend stores items in a single Postgres table. Each call runs
// with its own timeout; the cache treats the store as synchronous.
type PostgresBackend struct {
	db      *sql.DB
	table   string
	timeout time.Duration
}

// NewPostgresBackend uses table (default kv_store) on db.
func NewPostgresBackend(db *sql.DB, table string, timeout time.Duration) *PostgresBackend {
	if table == "" {
		table = defaultPostgresTable
	}
	if timeout <= 0 {
		timeout = defaultPostgresTimeout
	}
	return &PostgresBackend{db: db, table: pq.QuoteIdentifier(table), timeout: timeout}
}

// EnsureSchema creates the table and its expiry index if needed.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + b.table + ` (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			expires_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier(strings.Trim(b.table, `"`)+"_expires_at_idx") +
			` ON ` + b.table + ` (expires_at) WHERE expires_at IS NOT NULL`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("kvstore: ensure schema: %w", err)
		}
	}
	return nil
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) Put(key string, value []byte, expiresAt time.Time) error {
	if key == "" {
		return ErrEmptyKey
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	exp := sql.NullTime{Time: expiresAt, Valid: !expiresAt.IsZero()}
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO `+b.table+` (key, value, expires_at, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = now()`,
		key, value, exp)
	return b.wrap(err)
}

func (b *PostgresBackend) Get(key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	var value []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM `+b.table+` WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, b.wrap(err)
	}
	return value, true, nil
}

func (b *PostgresBackend) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	_, err := b.db.ExecContext(ctx, `DELETE FROM `+b.table+` WHERE key = $1`, key)
	return b.wrap(err)
}

func (b *PostgresBackend) Keys(prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	rows, err := b.db.QueryContext(ctx,
		`SELECT key FROM `+b.table+` WHERE key LIKE $1 ESCAPE '\' ORDER BY key`,
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, b.wrap(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// PurgeExpired deletes rows whose expiry has passed. Reads already ignore
// them; this only reclaims space.
func (b *PostgresBackend) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx,
		`DELETE FROM `+b.table+` WHERE expires_at IS NOT NULL AND expires_at < now()`)
	if err != nil {
		return 0, b.wrap(err)
	}
	return res.RowsAffected()
}

// Close is a no-op; the *sql.DB belongs to the caller.
func (b *PostgresBackend) Close() error { return nil }

func (b *PostgresBackend) wrap(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUndefinedTable {
		return fmt.Errorf("%w: %s", ErrSchemaMissing, pqErr.Message)
	}
	return err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
