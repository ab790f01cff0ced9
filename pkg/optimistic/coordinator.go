package optimistic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/opsync/pkg/collection"
)

// PositionField is the pseudo-field under which Move snapshots a record's place
// in store order. Change sets must not contain it.
const PositionField = "@position"

// Remote performs the backend mutation and returns the authoritative fields of
// the updated record. A nil map is a valid "nothing to reconcile" answer.
type Remote func(ctx context.Context) (collection.Fields, error)

// Prior is a snapshotted field value. Present is false when the field was unset.
type Prior struct {
	Value   any
	Present bool
}

// position is the Prior.Value of [PositionField].
type position struct {
	Index  int
	Before string // id of the record that followed, "" when last
}

// Intent is a pending local change.
type Intent struct {
	ID       string
	EntityID string
	Seq      uint64
	Changes  collection.Fields
	Previous map[string]Prior
	Started  time.Time
}

func (in *Intent) fields() []string {
	names := slices.Collect(maps.Keys(in.Previous))
	slices.Sort(names)

	return names
}

// Move reassigns a record to another bucket.
type Move struct {
	// Field holds the bucket key, e.g. "status".
	Field string
	// To is the destination bucket.
	To string
	// Before places the record in front of this id. Empty appends it behind the
	// last record already in the destination bucket.
	Before string
}

// Result reports how an intent resolved.
type Result struct {
	IntentID string
	EntityID string
	Fields   []string
	Err      error // nil on commit
	Elapsed  time.Duration
}

// Options configures a [Coordinator].
type Options struct {
	Name   string
	Logger *slog.Logger

	// OnResolve is called once per intent after it committed or rolled back,
	// outside the coordinator lock.
	OnResolve func(Result)

	// Now defaults to time.Now.
	Now func() time.Time
}

// Coordinator applies optimistic mutations to a store. It is safe for concurrent use.
type Coordinator[T collection.Record[T]] struct {
	store     *collection.Store[T]
	name      string
	logger    *slog.Logger
	onResolve func(Result)
	now       func() time.Time

	mu        sync.Mutex
	seq       uint64
	pending   map[string][]*Intent
	committed map[string]map[string]uint64 // entity -> field -> seq of latest commit
}

// New creates a coordinator writing to store.
func New[T collection.Record[T]](store *collection.Store[T], opts Options) *Coordinator[T] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Coordinator[T]{
		store:     store,
		name:      opts.Name,
		logger:    logger,
		onResolve: opts.OnResolve,
		now:       now,
		pending:   make(map[string][]*Intent),
		committed: make(map[string]map[string]uint64),
	}
}

// Mutate applies changes to record id locally, then runs remote.
//
// On success it returns the reconciled record. On failure the changed fields
// are restored and the returned error is a [*MutationError].
func (c *Coordinator[T]) Mutate(ctx context.Context, id string, changes collection.Fields, remote Remote) (T, error) {
	var zero T

	if _, reserved := changes[PositionField]; reserved {
		return zero, fmt.Errorf("mutate %s: %w: %s", id, ErrReservedField, PositionField)
	}

	c.mu.Lock()

	intent, err := c.beginLocked(id, changes)
	if err != nil {
		c.mu.Unlock()

		return zero, fmt.Errorf("mutate %s: %w", id, err)
	}

	c.mu.Unlock()

	return c.finish(ctx, intent, remote)
}

// Move applies a bucket reassignment and reposition locally, then runs remote.
// Rollback restores the bucket field and the record's former place.
func (c *Coordinator[T]) Move(ctx context.Context, id string, move Move, remote Remote) (T, error) {
	var zero T

	if move.Field == "" || move.Field == PositionField {
		return zero, fmt.Errorf("move %s: invalid bucket field %q", id, move.Field)
	}

	if move.Before == id {
		move.Before = ""
	}

	c.mu.Lock()

	pos, ok := c.positionOf(id)
	if !ok {
		c.mu.Unlock()

		return zero, fmt.Errorf("move %s: %w", id, collection.ErrNotFound)
	}

	if move.Before != "" && !c.store.Has(move.Before) {
		c.mu.Unlock()

		return zero, fmt.Errorf("move %s before %s: %w", id, move.Before, collection.ErrNotFound)
	}

	intent, err := c.beginLocked(id, collection.Fields{move.Field: move.To})
	if err != nil {
		c.mu.Unlock()

		return zero, fmt.Errorf("move %s: %w", id, err)
	}

	intent.Previous[PositionField] = Prior{Value: pos, Present: true}

	err = c.placeLocked(id, move)
	if err != nil {
		c.rollbackLocked(intent)
		c.releaseLocked(intent)
		c.mu.Unlock()

		return zero, fmt.Errorf("move %s: %w", id, err)
	}

	c.mu.Unlock()

	return c.finish(ctx, intent, remote)
}

// Pending returns the number of unresolved intents for id.
func (c *Coordinator[T]) Pending(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pending[id])
}

// beginLocked snapshots and applies changes, and registers the intent.
func (c *Coordinator[T]) beginLocked(id string, changes collection.Fields) (*Intent, error) {
	c.seq++

	intent := &Intent{
		ID:       uuid.NewString(),
		EntityID: id,
		Seq:      c.seq,
		Changes:  maps.Clone(changes),
		Previous: make(map[string]Prior, len(changes)+1),
		Started:  c.now(),
	}

	_, err := c.store.Update(id, func(rec T) (T, error) {
		for name, value := range changes {
			prev, present := rec.Field(name)
			intent.Previous[name] = Prior{Value: prev, Present: present}
			rec = rec.WithField(name, value)
		}

		return rec, nil
	})
	if err != nil {
		return nil, err
	}

	c.pending[id] = append(c.pending[id], intent)

	c.logger.Debug("applied optimistic change", "coordinator", c.name, "id", id,
		"intent", intent.ID, "fields", intent.fields())

	return intent, nil
}

func (c *Coordinator[T]) positionOf(id string) (position, bool) {
	order := c.store.IDs()

	idx := slices.Index(order, id)
	if idx < 0 {
		return position{}, false
	}

	pos := position{Index: idx}
	if idx+1 < len(order) {
		pos.Before = order[idx+1]
	}

	return pos, true
}

func (c *Coordinator[T]) placeLocked(id string, move Move) error {
	if move.Before != "" {
		return c.store.MoveBefore(id, move.Before)
	}

	key := collection.FieldKey[T](move.Field)

	last := ""

	for _, rec := range c.store.All() {
		if rec.EntityID() != id && key(rec) == move.To {
			last = rec.EntityID()
		}
	}

	if last == "" {
		return nil
	}

	return c.store.MoveAfter(id, last)
}

func (c *Coordinator[T]) finish(ctx context.Context, intent *Intent, remote Remote) (T, error) {
	var zero T

	authoritative, remoteErr := remote(ctx)

	c.mu.Lock()

	if remoteErr != nil {
		c.rollbackLocked(intent)
	} else {
		c.reconcileLocked(intent, authoritative)
	}

	c.releaseLocked(intent)

	c.mu.Unlock()

	result := Result{
		IntentID: intent.ID,
		EntityID: intent.EntityID,
		Fields:   intent.fields(),
		Err:      remoteErr,
		Elapsed:  c.now().Sub(intent.Started),
	}

	if c.onResolve != nil {
		c.onResolve(result)
	}

	if remoteErr != nil {
		c.logger.Warn("mutation rolled back", "coordinator", c.name, "id", intent.EntityID,
			"intent", intent.ID, "fields", result.Fields, "error", remoteErr)

		return zero, &MutationError{
			EntityID: intent.EntityID,
			IntentID: intent.ID,
			Fields:   result.Fields,
			Err:      remoteErr,
		}
	}

	c.logger.Debug("mutation committed", "coordinator", c.name, "id", intent.EntityID,
		"intent", intent.ID, "elapsed", result.Elapsed)

	rec, ok := c.store.Get(intent.EntityID)
	if !ok {
		c.logger.Debug("committed record no longer stored", "coordinator", c.name, "id", intent.EntityID)

		return zero, nil
	}

	return rec, nil
}

// nextPendingLocked returns the earliest pending intent after in that touched field.
func (c *Coordinator[T]) nextPendingLocked(in *Intent, field string) *Intent {
	for _, other := range c.pending[in.EntityID] {
		if other.Seq <= in.Seq {
			continue
		}

		if _, touched := other.Previous[field]; touched {
			return other
		}
	}

	return nil
}

// heldLocked reports whether another pending intent of the entity touched a
// field overlapping field.
func (c *Coordinator[T]) heldLocked(in *Intent, field string) bool {
	for _, other := range c.pending[in.EntityID] {
		if other == in {
			continue
		}

		for name := range other.Previous {
			if overlaps(name, field) {
				return true
			}
		}
	}

	return false
}

// committedAfterLocked reports whether a later intent committed a field
// overlapping field.
func (c *Coordinator[T]) committedAfterLocked(in *Intent, field string) bool {
	for name, seq := range c.committed[in.EntityID] {
		if seq > in.Seq && overlaps(name, field) {
			return true
		}
	}

	return false
}

func overlaps(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+collection.FieldSep) || strings.HasPrefix(b, a+collection.FieldSep)
}

func (c *Coordinator[T]) markCommittedLocked(in *Intent, field string) {
	byField := c.committed[in.EntityID]
	if byField == nil {
		byField = make(map[string]uint64)
		c.committed[in.EntityID] = byField
	}

	byField[field] = max(byField[field], in.Seq)
}

func (c *Coordinator[T]) rollbackLocked(in *Intent) {
	for _, field := range in.fields() {
		prior := in.Previous[field]

		if next := c.nextPendingLocked(in, field); next != nil {
			next.Previous[field] = prior

			continue
		}

		if c.committedAfterLocked(in, field) {
			continue
		}

		err := c.restoreLocked(in.EntityID, field, prior)
		if err != nil && !errors.Is(err, collection.ErrNotFound) {
			c.logger.Warn("restore failed", "coordinator", c.name, "id", in.EntityID, "field", field, "error", err)
		}
	}
}

func (c *Coordinator[T]) restoreLocked(id, field string, prior Prior) error {
	if field == PositionField {
		pos, _ := prior.Value.(position)
		if pos.Before != "" && pos.Before != id && c.store.Has(pos.Before) {
			return c.store.MoveBefore(id, pos.Before)
		}

		return c.store.Place(id, pos.Index)
	}

	_, err := c.store.Update(id, func(rec T) (T, error) {
		if !prior.Present {
			return rec.WithoutField(field), nil
		}

		return rec.WithField(field, prior.Value), nil
	})

	return err
}

func (c *Coordinator[T]) reconcileLocked(in *Intent, authoritative collection.Fields) {
	names := slices.Collect(maps.Keys(authoritative))
	slices.Sort(names)

	apply := collection.Fields{}

	for _, field := range names {
		if field == PositionField {
			continue
		}

		value := authoritative[field]

		if _, own := in.Previous[field]; own {
			if next := c.nextPendingLocked(in, field); next != nil {
				next.Previous[field] = Prior{Value: value, Present: true}

				continue
			}
		} else if c.heldLocked(in, field) {
			// An echo of a field another intent is changing may predate that
			// change; that intent reconciles it.
			continue
		}

		if c.committedAfterLocked(in, field) {
			continue
		}

		apply[field] = value
		c.markCommittedLocked(in, field)
	}

	// Fields the backend did not echo keep the optimistic value, which is now confirmed.
	for field := range in.Previous {
		if _, echoed := authoritative[field]; !echoed {
			c.markCommittedLocked(in, field)
		}
	}

	if len(apply) == 0 {
		return
	}

	_, err := c.store.Update(in.EntityID, func(rec T) (T, error) {
		for field, value := range apply {
			rec = rec.WithField(field, value)
		}

		return rec, nil
	})
	if err != nil && !errors.Is(err, collection.ErrNotFound) {
		c.logger.Warn("reconcile failed", "coordinator", c.name, "id", in.EntityID, "error", err)
	}
}

func (c *Coordinator[T]) releaseLocked(in *Intent) {
	list := slices.DeleteFunc(c.pending[in.EntityID], func(other *Intent) bool { return other == in })
	if len(list) == 0 {
		delete(c.pending, in.EntityID)
		delete(c.committed, in.EntityID)

		return
	}

	c.pending[in.EntityID] = list
}
