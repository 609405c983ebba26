// Package kvstore implements the embedded ordered key-value store the
// rest of the application persists through: a single generic table
// driven by modernc.org/sqlite, addressed with lexicographically
// ordered tuple keys (see keys.go) so that range scans over a prefix
// return results in tuple order.
package kvstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kvstore: key not found")

// RangeOptions controls a prefix scan.
type RangeOptions struct {
	Reverse bool
	Limit   int // 0 means unbounded
}

// Entry is one row returned from a range scan.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the ordered key-value contract every other component is
// built on.
type Store interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	Delete(ctx context.Context, key Key) error
	Range(ctx context.Context, prefix Key, opts RangeOptions) ([]Entry, error)
	DeleteRange(ctx context.Context, prefix Key) (int, error)
	Close() error
}

type sqliteStore struct {
	db *sql.DB
}

// Open creates the database file (and its parent directory) if
// missing, applies WAL mode and a busy timeout tuned for a
// single-process workload with many short writers (the scheduler's
// batched history appends), runs pending goose migrations, and
// returns a ready Store.
func Open(ctx context.Context, path string) (Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("kvstore: create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open: %w", err)
	}

	// A single connection serializes every read and write, which avoids
	// SQLITE_BUSY under WAL for the write-heavy scheduler path.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if path != ":memory:" {
		if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("kvstore: chmod data file: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: ping: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: migrate: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Get(ctx context.Context, key Key) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT kv_value FROM kv WHERE kv_key = ?`, key.Encode()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: get: %w", err)
	}
	return value, nil
}

func (s *sqliteStore) Set(ctx context.Context, key Key, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (kv_key, kv_value) VALUES (?, ?)
		ON CONFLICT(kv_key) DO UPDATE SET kv_value = excluded.kv_value
	`, key.Encode(), value)
	if err != nil {
		return fmt.Errorf("kvstore: set: %w", err)
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, key Key) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE kv_key = ?`, key.Encode())
	if err != nil {
		return fmt.Errorf("kvstore: delete: %w", err)
	}
	return nil
}

// prefixUpperBound returns the exclusive upper bound for a prefix
// range: the prefix with its final byte incremented, so that
// `kv_key >= lower AND kv_key < upper` matches exactly the keys that
// start with prefix.
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	// all 0xff bytes: no finite upper bound, caller must not reach here
	// for any key we generate (separator byte is 0x00).
	return string(b) + "\xff"
}

func (s *sqliteStore) Range(ctx context.Context, prefix Key, opts RangeOptions) ([]Entry, error) {
	lower := prefix.Prefix()
	upper := prefixUpperBound(lower)

	order := "ASC"
	if opts.Reverse {
		order = "DESC"
	}

	query := fmt.Sprintf(`SELECT kv_key, kv_value FROM kv WHERE kv_key >= ? AND kv_key < ? ORDER BY kv_key %s`, order)
	args := []any{lower, upper}
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("kvstore: range: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("kvstore: range scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *sqliteStore) DeleteRange(ctx context.Context, prefix Key) (int, error) {
	lower := prefix.Prefix()
	upper := prefixUpperBound(lower)
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE kv_key >= ? AND kv_key < ?`, lower, upper)
	if err != nil {
		return 0, fmt.Errorf("kvstore: delete range: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("kvstore: delete range rows affected: %w", err)
	}
	return int(n), nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
