// Package pager accumulates cursor-paginated results of a filtered query.
//
// An [Accumulator] is reset with a filter, then advanced one page at a time
// with [Accumulator.FetchNext]. At most one fetch is in flight; a concurrent
// call fails fast with [ErrFetchInFlight] instead of racing on the same cursor.
// Records whose id was already accumulated are dropped, so overlapping pages
// never duplicate rows. A failed fetch leaves cursor and buffer untouched and
// can be retried.
package pager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/calvinalkan/opsync/pkg/query"
)

// DefaultPageSize is used when [Options.PageSize] is not positive.
const DefaultPageSize = 25

var (
	// ErrFetchInFlight is returned by FetchNext while another fetch is outstanding.
	ErrFetchInFlight = errors.New("fetch already in flight")

	// ErrSuperseded is returned when Reset ran while the fetch was outstanding.
	// The response was discarded.
	ErrSuperseded = errors.New("fetch superseded by reset")

	// ErrNotReset is returned by FetchNext before the first Reset.
	ErrNotReset = errors.New("accumulator was never reset")
)

// Identified is the minimum a record needs for de-duplication.
type Identified interface {
	EntityID() string
}

// Request is one page request handed to a [Source].
type Request struct {
	Filter   query.FilterState
	Fragment query.Fragment
	Cursor   string // "" requests the first page
	Size     int
}

// Response is one page returned by a [Source]. An empty Next means no more pages.
type Response[T any] struct {
	Items []T
	Next  string
}

// Source is the remote collaborator serving pages.
type Source[T any] interface {
	Fetch(ctx context.Context, req Request) (Response[T], error)
}

// SourceFunc adapts a function to [Source].
type SourceFunc[T any] func(ctx context.Context, req Request) (Response[T], error)

// Fetch calls f.
func (f SourceFunc[T]) Fetch(ctx context.Context, req Request) (Response[T], error) {
	return f(ctx, req)
}

// Page is the result of one FetchNext: the newly accumulated records, after
// de-duplication, and whether another page exists.
type Page[T any] struct {
	Items   []T
	HasMore bool
}

// Options configures an [Accumulator].
type Options struct {
	Name     string
	PageSize int

	// Translator turns the filter into a fragment. Nil uses query defaults.
	Translator *query.Translator

	Logger *slog.Logger

	// OnFetch is called after each remote call with its outcome.
	OnFetch func(err error)
}

// Accumulator is safe for concurrent use.
type Accumulator[T Identified] struct {
	source     Source[T]
	translator *query.Translator
	size       int
	name       string
	logger     *slog.Logger
	onFetch    func(error)

	mu         sync.Mutex
	filter     query.FilterState
	fragment   query.Fragment
	cursor     string
	hasMore    bool
	ready      bool
	inFlight   bool
	generation uint64
	buffer     []T
	seen       map[string]struct{}
}

// New creates an accumulator over source. Call Reset before FetchNext.
func New[T Identified](source Source[T], opts Options) *Accumulator[T] {
	size := opts.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}

	translator := opts.Translator
	if translator == nil {
		translator = query.NewTranslator(query.Options{Logger: opts.Logger})
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Accumulator[T]{
		source:     source,
		translator: translator,
		size:       size,
		name:       opts.Name,
		logger:     logger,
		onFetch:    opts.OnFetch,
	}
}

// Reset starts a new sequence for filter: the buffer is cleared and the cursor
// returns to the first page. An outstanding fetch is superseded.
func (a *Accumulator[T]) Reset(filter query.FilterState) {
	filter = filter.Clone()
	fragment := a.translator.Translate(filter)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.filter = filter
	a.fragment = fragment
	a.cursor = ""
	a.hasMore = true
	a.ready = true
	a.inFlight = false
	a.generation++
	a.buffer = nil
	a.seen = make(map[string]struct{})
}

// FetchNext requests the page at the current cursor and appends its new records.
//
// After the last page it returns an empty page without contacting the source.
func (a *Accumulator[T]) FetchNext(ctx context.Context) (Page[T], error) {
	a.mu.Lock()

	if !a.ready {
		a.mu.Unlock()

		return Page[T]{}, ErrNotReset
	}

	if a.inFlight {
		a.mu.Unlock()

		return Page[T]{}, ErrFetchInFlight
	}

	if !a.hasMore {
		a.mu.Unlock()

		return Page[T]{HasMore: false}, nil
	}

	req := Request{
		Filter:   a.filter.Clone(),
		Fragment: a.fragment,
		Cursor:   a.cursor,
		Size:     a.size,
	}
	gen := a.generation
	a.inFlight = true

	a.mu.Unlock()

	resp, err := a.source.Fetch(ctx, req)

	if a.onFetch != nil {
		a.onFetch(err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation {
		return Page[T]{}, ErrSuperseded
	}

	a.inFlight = false

	if err != nil {
		return Page[T]{HasMore: a.hasMore}, fmt.Errorf("fetch %s page %q: %w", a.name, req.Cursor, err)
	}

	fresh := make([]T, 0, len(resp.Items))

	for _, rec := range resp.Items {
		id := rec.EntityID()
		if _, dup := a.seen[id]; dup {
			a.logger.Warn("dropped duplicate from page", "pager", a.name, "id", id, "cursor", req.Cursor)

			continue
		}

		a.seen[id] = struct{}{}
		fresh = append(fresh, rec)
	}

	a.buffer = append(a.buffer, fresh...)
	a.cursor = resp.Next
	a.hasMore = resp.Next != ""

	a.logger.Debug("fetched page", "pager", a.name, "cursor", req.Cursor, "received", len(resp.Items),
		"kept", len(fresh), "has_more", a.hasMore)

	return Page[T]{Items: fresh, HasMore: a.hasMore}, nil
}

// FetchAll fetches until the last page or until at least limit records are
// buffered (limit <= 0 means no limit). It returns the whole buffer.
func (a *Accumulator[T]) FetchAll(ctx context.Context, limit int) ([]T, error) {
	for a.HasMore() {
		if limit > 0 && len(a.Items()) >= limit {
			break
		}

		_, err := a.FetchNext(ctx)
		if err != nil {
			return a.Items(), err
		}
	}

	return a.Items(), nil
}

// Items returns the accumulated records in fetch order.
func (a *Accumulator[T]) Items() []T {
	a.mu.Lock()
	defer a.mu.Unlock()

	return slices.Clone(a.buffer)
}

// HasMore reports whether another page may be fetched.
func (a *Accumulator[T]) HasMore() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.ready && a.hasMore
}

// Cursor returns the cursor of the next page.
func (a *Accumulator[T]) Cursor() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.cursor
}

// Filter returns the filter of the current sequence.
func (a *Accumulator[T]) Filter() query.FilterState {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.filter.Clone()
}

// Fragment returns the translated filter of the current sequence.
func (a *Accumulator[T]) Fragment() query.Fragment {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.fragment
}
