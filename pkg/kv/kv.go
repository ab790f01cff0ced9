package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Store is a string-keyed byte store. Implementations are safe for concurrent use.
type Store interface {
	// Get returns the value stored under key, or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by [Open].
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// sqliteFileName is the database file used by the sqlite backend inside the state dir.
const sqliteFileName = "state.sqlite"

// Open returns the backend named by backend, rooted at dir.
func Open(ctx context.Context, backend, dir string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return OpenFile(dir)
	case BackendSQLite:
		return OpenSQLite(ctx, filepath.Join(dir, sqliteFileName))
	case BackendMemory:
		return NewMem(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func validKey(key string) error {
	if key == "" || strings.ContainsRune(key, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return nil
}

// GetJSON decodes the JSON value stored under key into a T.
// A missing key returns the zero T and [ErrNotFound].
func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var out T

	raw, err := s.Get(ctx, key)
	if err != nil {
		return out, err
	}

	err = json.Unmarshal(raw, &out)
	if err != nil {
		return out, fmt.Errorf("decode %s: %w", key, err)
	}

	return out, nil
}

// SetJSON stores v under key as JSON.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	return s.Set(ctx, key, raw)
}

// IsNotFound reports whether err means the key is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
