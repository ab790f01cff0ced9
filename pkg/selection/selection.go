// Package selection tracks which rows of a screen are selected and which are
// minimized (collapsed).
//
// Rows are addressed by [Key]: an entity id plus an optional sub-entity id
// (a task of a job, for example). Range selection works on the visual order
// the caller passes in, which is what the user sees on screen and usually
// differs from fetch or storage order.
//
// Selection is session-local. The minimized set is written to a [kv.Store]
// on every change and read back by [Engine.Load], which drops pairs whose
// entity no longer exists.
package selection

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/calvinalkan/opsync/pkg/kv"
)

// Key addresses one selectable row. SubID is empty for entity-level rows.
type Key struct {
	EntityID string `json:"entity"`
	SubID    string `json:"sub,omitempty"`
}

// String renders k as "entity" or "entity/sub".
func (k Key) String() string {
	if k.SubID == "" {
		return k.EntityID
	}

	return k.EntityID + "/" + k.SubID
}

// ParseKey is the inverse of [Key.String].
func ParseKey(s string) Key {
	entity, sub, _ := strings.Cut(s, "/")

	return Key{EntityID: entity, SubID: sub}
}

func compareKeys(a, b Key) int {
	return cmp.Or(cmp.Compare(a.EntityID, b.EntityID), cmp.Compare(a.SubID, b.SubID))
}

// Modifier is the keyboard modifier held during a click.
type Modifier int

const (
	ModNone Modifier = iota
	ModCtrl
	ModShift
)

// ParseModifier accepts "", "none", "ctrl", "cmd" and "shift".
func ParseModifier(s string) (Modifier, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return ModNone, nil
	case "ctrl", "cmd":
		return ModCtrl, nil
	case "shift":
		return ModShift, nil
	default:
		return ModNone, fmt.Errorf("unknown modifier %q", s)
	}
}

// Options configures an [Engine].
type Options struct {
	// Storage persists the minimized set. Nil keeps it in memory only.
	Storage kv.Store
	// StorageKey is the key the minimized set is stored under, e.g. "minimized/checklist".
	StorageKey string
	Logger     *slog.Logger
}

// Engine is safe for concurrent use.
type Engine struct {
	storage    kv.Store
	storageKey string
	logger     *slog.Logger

	mu        sync.Mutex
	selected  map[Key]struct{}
	minimized map[Key]struct{}
	anchor    Key
	hasAnchor bool
}

// New creates an engine with empty selection and minimized sets. Call Load to
// restore the persisted minimized set.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{
		storage:    opts.Storage,
		storageKey: opts.StorageKey,
		logger:     logger,
		selected:   make(map[Key]struct{}),
		minimized:  make(map[Key]struct{}),
	}
}

// Load replaces the minimized set with the persisted one. Pairs for which
// exists reports false are dropped, and the pruned set is written back.
// A nil exists keeps every pair.
func (e *Engine) Load(ctx context.Context, exists func(entityID string) bool) error {
	if e.storage == nil {
		return nil
	}

	stored, err := kv.GetJSON[[]Key](ctx, e.storage, e.storageKey)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("load minimized: %w", err)
	}

	kept := make(map[Key]struct{}, len(stored))

	for _, k := range stored {
		if exists != nil && !exists(k.EntityID) {
			e.logger.Debug("pruned minimized row", "key", k.String())

			continue
		}

		kept[k] = struct{}{}
	}

	e.mu.Lock()
	e.minimized = kept
	e.mu.Unlock()

	if len(kept) == len(stored) {
		return nil
	}

	return e.persist(ctx)
}

// Toggle flips k's membership in the selection and makes k the anchor.
func (e *Engine) Toggle(k Key) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.toggleLocked(k)
}

func (e *Engine) toggleLocked(k Key) {
	if _, ok := e.selected[k]; ok {
		delete(e.selected, k)
	} else {
		e.selected[k] = struct{}{}
	}

	e.anchor = k
	e.hasAnchor = true
}

// SelectRange replaces the selection with the inclusive slice of order between
// anchor and target. It reports false, changing nothing, when either endpoint
// is not in order. The anchor is left as it was.
func (e *Engine) SelectRange(anchor, target Key, order []Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.selectRangeLocked(anchor, target, order)
}

func (e *Engine) selectRangeLocked(anchor, target Key, order []Key) bool {
	from := slices.Index(order, anchor)
	to := slices.Index(order, target)

	if from < 0 || to < 0 {
		return false
	}

	if from > to {
		from, to = to, from
	}

	e.selected = make(map[Key]struct{}, to-from+1)
	for _, k := range order[from : to+1] {
		e.selected[k] = struct{}{}
	}

	return true
}

// Click applies a click on k with modifier mod.
//
// Plain and ctrl clicks toggle k and move the anchor to it. A shift click
// selects the range from the anchor to k; without an anchor, or when either
// end is missing from order, it falls back to a toggle.
func (e *Engine) Click(k Key, mod Modifier, order []Key) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if mod == ModShift && e.hasAnchor && e.selectRangeLocked(e.anchor, k, order) {
		return
	}

	e.toggleLocked(k)
}

// IsSelected reports whether row k is selected.
func (e *Engine) IsSelected(k Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.selected[k]

	return ok
}

// IsMinimized reports whether row k is collapsed.
func (e *Engine) IsMinimized(k Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.minimized[k]

	return ok
}

// Selected returns the selected keys sorted by entity, then sub id.
func (e *Engine) Selected() []Key {
	e.mu.Lock()
	defer e.mu.Unlock()

	return sortedKeys(e.selected)
}

// Minimized returns the minimized keys sorted by entity, then sub id.
func (e *Engine) Minimized() []Key {
	e.mu.Lock()
	defer e.mu.Unlock()

	return sortedKeys(e.minimized)
}

// Anchor returns the current range anchor.
func (e *Engine) Anchor() (Key, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.anchor, e.hasAnchor
}

// Clear empties the selection and forgets the anchor.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.clearLocked()
}

func (e *Engine) clearLocked() {
	e.selected = make(map[Key]struct{})
	e.anchor = Key{}
	e.hasAnchor = false
}

// ToggleMinimize flips k's minimized state and persists the set. Selection is
// not affected.
func (e *Engine) ToggleMinimize(ctx context.Context, k Key) error {
	e.mu.Lock()

	if _, ok := e.minimized[k]; ok {
		delete(e.minimized, k)
	} else {
		e.minimized[k] = struct{}{}
	}

	e.mu.Unlock()

	return e.persist(ctx)
}

// MinimizeSelected minimizes every selected row, then clears the selection.
func (e *Engine) MinimizeSelected(ctx context.Context) error {
	return e.bulk(ctx, true)
}

// RestoreSelected un-minimizes every selected row, then clears the selection.
func (e *Engine) RestoreSelected(ctx context.Context) error {
	return e.bulk(ctx, false)
}

func (e *Engine) bulk(ctx context.Context, minimize bool) error {
	e.mu.Lock()

	for k := range e.selected {
		if minimize {
			e.minimized[k] = struct{}{}
		} else {
			delete(e.minimized, k)
		}
	}

	e.clearLocked()
	e.mu.Unlock()

	return e.persist(ctx)
}

// PruneSelection drops selected keys, and the anchor, whose entity no longer
// exists. The minimized set is only pruned by Load.
func (e *Engine) PruneSelection(exists func(entityID string) bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	maps.DeleteFunc(e.selected, func(k Key, _ struct{}) bool { return !exists(k.EntityID) })

	if e.hasAnchor && !exists(e.anchor.EntityID) {
		e.anchor = Key{}
		e.hasAnchor = false
	}
}

func (e *Engine) persist(ctx context.Context) error {
	if e.storage == nil {
		return nil
	}

	e.mu.Lock()
	keys := sortedKeys(e.minimized)
	e.mu.Unlock()

	err := kv.SetJSON(ctx, e.storage, e.storageKey, keys)
	if err != nil {
		e.logger.Warn("persisting minimized rows failed", "key", e.storageKey, "error", err)

		return fmt.Errorf("persist minimized: %w", err)
	}

	return nil
}

func sortedKeys(set map[Key]struct{}) []Key {
	out := slices.Collect(maps.Keys(set))
	slices.SortFunc(out, compareKeys)

	return out
}
