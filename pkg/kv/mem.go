package kv

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Mem is an in-memory [Store].
type Mem struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMem returns an empty in-memory store.
func NewMem() *Mem {
	return &Mem{data: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *Mem) Get(_ context.Context, key string) ([]byte, error) {
	err := validKey(key)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	v, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}

	return slices.Clone(v), nil
}

// Set stores a copy of value.
func (m *Mem) Set(_ context.Context, key string, value []byte) error {
	err := validKey(key)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.data[key] = slices.Clone(value)

	return nil
}

// Delete removes key.
func (m *Mem) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	delete(m.data, key)

	return nil
}

// Close makes later calls fail with [ErrClosed].
func (m *Mem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	return nil
}
