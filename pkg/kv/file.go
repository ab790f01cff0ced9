package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"
)

const (
	dirPerms  = 0o750
	filePerms = 0o600

	lockFileName = ".lock"
	valueSuffix  = ".val"
)

// LockTimeout bounds how long a [File] operation waits for the directory lock.
const LockTimeout = 2 * time.Second

var errLockTimeout = errors.New("lock timeout")

// File stores each key in its own file under a directory. Writes are atomic
// (write to temp file, then rename) and serialized across processes with an
// flock on a lock file in the directory. Readers take a shared lock.
type File struct {
	dir string

	mu     sync.RWMutex
	closed bool
}

// OpenFile creates dir if needed and returns a store rooted there.
func OpenFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("open file store: dir is empty")
	}

	err := os.MkdirAll(dir, dirPerms)
	if err != nil {
		return nil, fmt.Errorf("open file store: %w", err)
	}

	return &File{dir: dir}, nil
}

// Dir returns the root directory.
func (f *File) Dir() string { return f.dir }

func (f *File) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+valueSuffix)
}

// Get reads key under a shared lock.
func (f *File) Get(ctx context.Context, key string) ([]byte, error) {
	err := validKey(key)
	if err != nil {
		return nil, err
	}

	var out []byte

	err = f.withLock(ctx, unix.LOCK_SH, func() error {
		data, readErr := os.ReadFile(f.path(key))
		if errors.Is(readErr, fs.ErrNotExist) {
			return fmt.Errorf("get %s: %w", key, ErrNotFound)
		}

		if readErr != nil {
			return fmt.Errorf("get %s: %w", key, readErr)
		}

		out = data

		return nil
	})

	return out, err
}

// Set replaces key atomically under an exclusive lock.
func (f *File) Set(ctx context.Context, key string, value []byte) error {
	err := validKey(key)
	if err != nil {
		return err
	}

	return f.withLock(ctx, unix.LOCK_EX, func() error {
		writeErr := atomic.WriteFile(f.path(key), bytes.NewReader(value))
		if writeErr != nil {
			return fmt.Errorf("set %s: %w", key, writeErr)
		}

		return nil
	})
}

// Delete removes key under an exclusive lock.
func (f *File) Delete(ctx context.Context, key string) error {
	err := validKey(key)
	if err != nil {
		return err
	}

	return f.withLock(ctx, unix.LOCK_EX, func() error {
		rmErr := os.Remove(f.path(key))
		if rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", key, rmErr)
		}

		return nil
	})
}

// Close marks the store closed. No file descriptors are held between operations.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

// withLock runs fn while holding an flock of kind how (LOCK_SH or LOCK_EX) on
// the directory lock file. The lock file is never removed.
func (f *File) withLock(ctx context.Context, how int, fn func() error) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return ErrClosed
	}

	file, err := os.OpenFile(filepath.Join(f.dir, lockFileName), os.O_CREATE|os.O_RDWR, filePerms)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	defer func() { _ = file.Close() }()

	fd := int(file.Fd())

	err = flockContext(ctx, fd, how)
	if err != nil {
		return err
	}

	defer func() { _ = unix.Flock(fd, unix.LOCK_UN) }()

	return fn()
}

// flockContext polls a non-blocking flock until it succeeds, ctx is done or
// [LockTimeout] expires.
func flockContext(ctx context.Context, fd, how int) error {
	deadline := time.Now().Add(LockTimeout)

	for {
		err := unix.Flock(fd, how|unix.LOCK_NB)
		if err == nil {
			return nil
		}

		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("flock: %w", err)
		}

		if time.Now().After(deadline) {
			return errLockTimeout
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("flock: %w", ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
