// Package screen wires the sync components into the three views of the
// console: the job checklist, the job board and the items table. Each view is
// a [Screen] configured with its record type, backend and row layout.
package screen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/calvinalkan/opsync/internal/metrics"
	"github.com/calvinalkan/opsync/pkg/collection"
	"github.com/calvinalkan/opsync/pkg/kv"
	"github.com/calvinalkan/opsync/pkg/optimistic"
	"github.com/calvinalkan/opsync/pkg/pager"
	"github.com/calvinalkan/opsync/pkg/query"
	"github.com/calvinalkan/opsync/pkg/selection"
)

// Storage key prefixes.
const (
	filterKeyPrefix    = "filter/"
	minimizedKeyPrefix = "minimized/"
)

// Config describes one screen.
type Config[T collection.Record[T]] struct {
	// Name keys persisted state and labels logs and metrics.
	Name string

	Source     pager.Source[T]
	Translator *query.Translator
	PageSize   int

	// State persists the filter and the minimized rows. Nil keeps them in memory.
	State kv.Store

	// Rows lists the selectable rows of a record in on-screen order.
	// Nil means one row per record.
	Rows func(T) []selection.Key

	// BucketField and Columns configure board grouping.
	BucketField string
	Columns     []string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Screen is a paginated, filterable, optimistically mutated, selectable
// collection. It is safe for concurrent use.
type Screen[T collection.Record[T]] struct {
	cfg    Config[T]
	logger *slog.Logger

	store *collection.Store[T]
	pages *pager.Accumulator[T]
	coord *optimistic.Coordinator[T]
	sel   *selection.Engine

	mu       sync.Mutex
	filter   query.FilterState
	fragment query.Fragment
}

// New builds the screen. Call Open to load persisted state and the first page.
func New[T collection.Record[T]](cfg Config[T]) *Screen[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	logger = logger.With("screen", cfg.Name)

	if cfg.Translator == nil {
		cfg.Translator = query.NewTranslator(query.Options{Logger: logger})
	}

	if cfg.Rows == nil {
		cfg.Rows = func(rec T) []selection.Key { return []selection.Key{{EntityID: rec.EntityID()}} }
	}

	storeOpts := collection.Options{Name: cfg.Name, Logger: logger}
	pagerOpts := pager.Options{Name: cfg.Name, PageSize: cfg.PageSize, Translator: cfg.Translator, Logger: logger}
	coordOpts := optimistic.Options{Name: cfg.Name, Logger: logger}

	if cfg.Metrics != nil {
		storeOpts.OnDuplicate = cfg.Metrics.OnDuplicate(cfg.Name)
		pagerOpts.OnFetch = cfg.Metrics.OnFetch(cfg.Name)
		coordOpts.OnResolve = cfg.Metrics.OnResolve(cfg.Name)
	}

	store := collection.New[T](storeOpts)

	return &Screen[T]{
		cfg:    cfg,
		logger: logger,
		store:  store,
		pages:  pager.New(cfg.Source, pagerOpts),
		coord:  optimistic.New(store, coordOpts),
		sel: selection.New(selection.Options{
			Storage:    cfg.State,
			StorageKey: minimizedKeyPrefix + cfg.Name,
			Logger:     logger,
		}),
	}
}

// Name returns the configured screen name.
func (s *Screen[T]) Name() string { return s.cfg.Name }

// Store returns the underlying collection.
func (s *Screen[T]) Store() *collection.Store[T] { return s.store }

// Selection returns the selection engine.
func (s *Screen[T]) Selection() *selection.Engine { return s.sel }

// Coordinator returns the mutation coordinator.
func (s *Screen[T]) Coordinator() *optimistic.Coordinator[T] { return s.coord }

// Open restores the persisted filter, loads the first page and restores the
// minimized rows.
func (s *Screen[T]) Open(ctx context.Context) error {
	filter, err := s.loadFilter(ctx)
	if err != nil {
		return err
	}

	return s.open(ctx, filter)
}

// OpenWithFilter is Open with filter replacing, and persisted over, the saved filter.
func (s *Screen[T]) OpenWithFilter(ctx context.Context, filter query.FilterState) error {
	err := s.saveFilter(ctx, filter)
	if err != nil {
		return err
	}

	return s.open(ctx, filter)
}

func (s *Screen[T]) open(ctx context.Context, filter query.FilterState) error {
	err := s.apply(ctx, filter)
	if err != nil {
		return err
	}

	// Pruning against a partial result would drop rows on pages not yet loaded.
	var exists func(string) bool
	if !s.pages.HasMore() {
		exists = s.store.Has
	}

	return s.sel.Load(ctx, exists)
}

func (s *Screen[T]) loadFilter(ctx context.Context) (query.FilterState, error) {
	if s.cfg.State == nil {
		return query.FilterState{}, nil
	}

	filter, err := kv.GetJSON[query.FilterState](ctx, s.cfg.State, filterKeyPrefix+s.cfg.Name)
	if errors.Is(err, kv.ErrNotFound) {
		return query.FilterState{}, nil
	}

	if err != nil {
		s.logger.Warn("ignoring unreadable saved filter", "error", err)

		return query.FilterState{}, nil
	}

	return filter, nil
}

// SetFilter persists filter and reloads from the first page.
func (s *Screen[T]) SetFilter(ctx context.Context, filter query.FilterState) error {
	err := s.saveFilter(ctx, filter)
	if err != nil {
		return err
	}

	return s.apply(ctx, filter)
}

// Validate reports the parts of filter the screen would drop.
func (s *Screen[T]) Validate(filter query.FilterState) error {
	return s.cfg.Translator.Validate(filter)
}

func (s *Screen[T]) saveFilter(ctx context.Context, filter query.FilterState) error {
	if s.cfg.State == nil {
		return nil
	}

	err := kv.SetJSON(ctx, s.cfg.State, filterKeyPrefix+s.cfg.Name, filter)
	if err != nil {
		return fmt.Errorf("save filter: %w", err)
	}

	return nil
}

func (s *Screen[T]) apply(ctx context.Context, filter query.FilterState) error {
	s.mu.Lock()
	s.filter = filter.Clone()
	s.fragment = s.cfg.Translator.Translate(filter)
	s.mu.Unlock()

	s.pages.Reset(filter)

	page, err := s.pages.FetchNext(ctx)
	if err != nil {
		return err
	}

	s.store.ReplaceAll(page.Items)
	s.sel.PruneSelection(s.store.Has)

	return nil
}

// More loads the next page and returns how many new records it added.
func (s *Screen[T]) More(ctx context.Context) (int, error) {
	page, err := s.pages.FetchNext(ctx)
	if err != nil {
		return 0, err
	}

	dropped := s.store.AppendUnique(page.Items)

	return len(page.Items) - len(dropped), nil
}

// LoadAll fetches pages until the last one or until limit records are loaded.
func (s *Screen[T]) LoadAll(ctx context.Context, limit int) error {
	for s.pages.HasMore() && (limit <= 0 || s.store.Len() < limit) {
		_, err := s.More(ctx)
		if err != nil {
			return err
		}
	}

	return nil
}

// Find returns record id, loading further pages until it appears or none are left.
func (s *Screen[T]) Find(ctx context.Context, id string) (T, error) {
	for {
		rec, ok := s.store.Get(id)
		if ok {
			return rec, nil
		}

		if !s.pages.HasMore() {
			var zero T

			return zero, fmt.Errorf("%s %s: %w", s.cfg.Name, id, collection.ErrNotFound)
		}

		_, err := s.More(ctx)
		if err != nil {
			var zero T

			return zero, err
		}
	}
}

// HasMore reports whether another page can be loaded.
func (s *Screen[T]) HasMore() bool { return s.pages.HasMore() }

// Filter returns the active filter.
func (s *Screen[T]) Filter() query.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.filter.Clone()
}

// Records returns the loaded records that satisfy the active filter, in store
// order. A record an optimistic edit moved out of the filter is hidden.
func (s *Screen[T]) Records() []T {
	s.mu.Lock()
	frag := s.fragment
	s.mu.Unlock()

	all := s.store.All()
	out := all[:0]

	for _, rec := range all {
		if frag.Match(rec) {
			out = append(out, rec)
		}
	}

	return out
}

// VisualOrder returns the selectable rows of the visible records, top to bottom.
func (s *Screen[T]) VisualOrder() []selection.Key {
	var order []selection.Key

	for _, rec := range s.Records() {
		order = append(order, s.cfg.Rows(rec)...)
	}

	return order
}

// Buckets groups the visible records by the configured bucket field.
func (s *Screen[T]) Buckets() []collection.Bucket[T] {
	return collection.ByBucket(s.Records(), collection.FieldKey[T](s.cfg.BucketField), s.cfg.Columns...)
}

// Click applies a click on row k.
func (s *Screen[T]) Click(k selection.Key, mod selection.Modifier) {
	s.sel.Click(k, mod, s.VisualOrder())
}

// Mutate applies changes optimistically to record id.
func (s *Screen[T]) Mutate(ctx context.Context, id string, changes collection.Fields, remote optimistic.Remote) (T, error) {
	return s.coord.Mutate(ctx, id, changes, remote)
}

// Move reassigns record id to bucket to, in front of before when given.
func (s *Screen[T]) Move(ctx context.Context, id, to, before string, remote optimistic.Remote) (T, error) {
	if s.cfg.BucketField == "" {
		var zero T

		return zero, fmt.Errorf("screen %s has no bucket field", s.cfg.Name)
	}

	return s.coord.Move(ctx, id, optimistic.Move{Field: s.cfg.BucketField, To: to, Before: before}, remote)
}
