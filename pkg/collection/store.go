package collection

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
)

// Fields is a partial record: field name to value. It is the shape of change
// sets and of authoritative fragments returned by a backend.
type Fields map[string]any

// FieldSep nests a field name inside another: "tasks/t1.done" is part of "tasks".
const FieldSep = "/"

// Record is implemented by entity value types stored in a [Store].
//
// WithField and WithoutField must return modified copies and must not share
// mutable state (maps, slices) with the receiver.
type Record[T any] interface {
	EntityID() string
	Field(name string) (any, bool)
	WithField(name string, value any) T
	WithoutField(name string) T
}

// Options configures a [Store].
type Options struct {
	// Name identifies the store in log lines, e.g. "jobs".
	Name string

	// Logger receives duplicate-drop warnings. Nil discards.
	Logger *slog.Logger

	// OnDuplicate is called once per dropped duplicate, outside the store lock.
	OnDuplicate func(id string)
}

// Store is an ordered, id-unique collection of records. It is safe for
// concurrent use.
type Store[T Record[T]] struct {
	mu      sync.RWMutex
	order   []string
	items   map[string]T
	version uint64

	name        string
	logger      *slog.Logger
	onDuplicate func(id string)
}

// New creates an empty store.
func New[T Record[T]](opts Options) *Store[T] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Store[T]{
		items:       make(map[string]T),
		name:        opts.Name,
		logger:      logger,
		onDuplicate: opts.OnDuplicate,
	}
}

// ReplaceAll discards the current contents and stores records in the given
// order. Duplicates within records are dropped (first wins) and returned.
func (s *Store[T]) ReplaceAll(records []T) []string {
	s.mu.Lock()

	s.order = s.order[:0]
	s.items = make(map[string]T, len(records))

	dropped := s.appendLocked(records)
	s.version++

	s.mu.Unlock()

	s.reportDuplicates("replace", dropped)

	return dropped
}

// AppendUnique appends records whose id is not yet stored. Records with a
// known id are dropped, logged, and returned; the stored copy is kept.
func (s *Store[T]) AppendUnique(records []T) []string {
	s.mu.Lock()

	dropped := s.appendLocked(records)
	if len(dropped) < len(records) {
		s.version++
	}

	s.mu.Unlock()

	s.reportDuplicates("append", dropped)

	return dropped
}

func (s *Store[T]) appendLocked(records []T) []string {
	var dropped []string

	for _, rec := range records {
		id := rec.EntityID()
		if id == "" {
			s.logger.Warn("dropped record without id", "store", s.name)

			continue
		}

		if _, exists := s.items[id]; exists {
			dropped = append(dropped, id)

			continue
		}

		s.items[id] = rec
		s.order = append(s.order, id)
	}

	return dropped
}

func (s *Store[T]) reportDuplicates(op string, ids []string) {
	for _, id := range ids {
		s.logger.Warn("dropped duplicate record", "store", s.name, "op", op, "id", id)

		if s.onDuplicate != nil {
			s.onDuplicate(id)
		}
	}
}

// Upsert replaces the record with the same id in place, or appends it.
// It reports whether the record was inserted.
func (s *Store[T]) Upsert(rec T) (bool, error) {
	id := rec.EntityID()
	if id == "" {
		return false, ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.items[id]

	s.items[id] = rec
	if !exists {
		s.order = append(s.order, id)
	}

	s.version++

	return !exists, nil
}

// Remove deletes the record with id. It reports whether it was present.
func (s *Store[T]) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; !exists {
		return false
	}

	delete(s.items, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	s.version++

	return true
}

// Get returns the record with id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.items[id]

	return rec, ok
}

// Has reports whether a record with id is stored.
func (s *Store[T]) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.items[id]

	return ok
}

// All returns the records in store order.
func (s *Store[T]) All() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}

	return out
}

// IDs returns the stored ids in store order.
func (s *Store[T]) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.order)
}

// Len returns the number of stored records.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.order)
}

// IndexOf returns the position of id in store order, or -1.
func (s *Store[T]) IndexOf(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Index(s.order, id)
}

// Version increases on every change. UIs compare it to decide whether to re-render.
func (s *Store[T]) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.version
}

// Update replaces the record with id by fn's result while holding the store
// lock, so read-modify-write is atomic. fn must not change the id.
func (s *Store[T]) Update(id string, fn func(T) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T

	cur, ok := s.items[id]
	if !ok {
		return zero, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}

	next, err := fn(cur)
	if err != nil {
		return zero, err
	}

	if next.EntityID() != id {
		return zero, fmt.Errorf("update %s: id changed to %q", id, next.EntityID())
	}

	s.items[id] = next
	s.version++

	return next, nil
}

// MoveBefore repositions id directly in front of beforeID.
func (s *Store[T]) MoveBefore(id, beforeID string) error {
	return s.reposition(id, beforeID, 0)
}

// MoveAfter repositions id directly behind afterID.
func (s *Store[T]) MoveAfter(id, afterID string) error {
	return s.reposition(id, afterID, 1)
}

func (s *Store[T]) reposition(id, anchorID string, offset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("move %s: %w", id, ErrNotFound)
	}

	if _, ok := s.items[anchorID]; !ok {
		return fmt.Errorf("move %s: anchor %s: %w", id, anchorID, ErrNotFound)
	}

	if id == anchorID {
		return nil
	}

	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	at := slices.Index(s.order, anchorID) + offset
	s.order = slices.Insert(s.order, at, id)
	s.version++

	return nil
}

// Place moves id to index in store order. The index is clamped to the valid range.
func (s *Store[T]) Place(id string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("place %s: %w", id, ErrNotFound)
	}

	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	index = max(0, min(index, len(s.order)))
	s.order = slices.Insert(s.order, index, id)
	s.version++

	return nil
}
