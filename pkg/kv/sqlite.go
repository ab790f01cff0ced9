package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// sqliteBusyTimeout is the time SQLite waits when the database is locked.
const sqliteBusyTimeout = 5000 // milliseconds

// SQLite stores all keys in one table of a SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("open sqlite: path is empty")
	}

	err := os.MkdirAll(filepath.Dir(path), dirPerms)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		);
	`, sqliteBusyTimeout))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("init sqlite: %w", err), db.Close())
	}

	return &SQLite{db: db}, nil
}

// Get reads one row.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	err := validKey(key)
	if err != nil {
		return nil, err
	}

	var value []byte

	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	return value, nil
}

// Set upserts key.
func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	err := validKey(key)
	if err != nil {
		return err
	}

	if value == nil {
		value = []byte{}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	return nil
}

// Delete removes key.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}

	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
