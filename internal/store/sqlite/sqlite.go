// Package sqlite implements the record store on SQLite.
//
// WHY SQLITE FOR A KEY-VALUE STORE?
// SQLite is an embedded database — it lives inside the binary as a single
// file, with no separate server to install or manage. A one-table keyed
// blob schema gives us durable writes, a real file format, and ordered
// prefix scans (via the primary key index) with nothing to operate.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which needs a C compiler and makes
// cross-compilation painful. modernc.org/sqlite is a pure Go translation
// of the SQLite sources — works everywhere Go works.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/autohook/internal/store"
)

// compile-time check that *Store implements store.RecordStore
var _ store.RecordStore = (*Store)(nil)

// Store is a RecordStore backed by a single SQLite table of keyed blobs.
type Store struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and ensures the schema.
//
// dbPath examples:
//   - "data/autohook.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests; lost on close)
func New(dbPath string) (*Store, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection, always. SQLite allows a single writer anyway, and a
	// pool of connections to ":memory:" would each see their OWN empty
	// database — every connection gets a fresh in-memory instance.
	conn.SetMaxOpenConns(1)

	// Force an immediate connection so a bad path or permissions problem
	// surfaces here, not on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is in progress.
	// Default SQLite locks the whole database during writes, which is
	// hostile to a web server handling parallel requests.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return s, nil
}

// Close closes the connection pool, flushing the WAL.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	// Keys are slash-delimited paths; the primary key index makes prefix
	// scans (key >= p AND key < p+1) cheap and returns keys in order.
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating records table: %w", err)
	}
	return nil
}

// Get returns the value stored at key, or a not-found error.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM records WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound(key)
		}
		return nil, fmt.Errorf("sqlite: getting %s: %w", key, err)
	}
	return value, nil
}

// Put stores value at key, overwriting any previous value.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO records (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("sqlite: putting %s: %w", key, err)
	}
	return nil
}

// Delete removes the record at key. Deleting an absent key is not an
// error — DELETE of zero rows succeeds, which is exactly the idempotent
// behaviour callers rely on.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("sqlite: deleting %s: %w", key, err)
	}
	return nil
}

// List returns all keys starting with prefix, in key order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	// LIKE with a trailing % would mis-handle _ and % inside keys, so we
	// use a half-open range scan on the primary key instead.
	rows, err := s.conn.QueryContext(ctx,
		`SELECT key FROM records WHERE key >= ? AND key < ? ORDER BY key`,
		prefix, prefix+"\xff",
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite: scanning key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating keys: %w", err)
	}
	return keys, nil
}
