package kv

import "errors"

var (
	// ErrNotFound is returned by Get when the key was never set or was deleted.
	ErrNotFound = errors.New("key not found")

	// ErrInvalidKey is returned for empty keys and keys containing NUL bytes.
	ErrInvalidKey = errors.New("invalid key")

	// ErrUnknownBackend is returned by [Open] for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown state backend")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)
