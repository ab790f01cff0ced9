package optimistic_test

import (
	"context"
	"errors"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/opsync/pkg/collection"
	"github.com/calvinalkan/opsync/pkg/optimistic"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type card struct {
	id     string
	fields map[string]any
}

func newCard(id string, kv ...any) card {
	c := card{id: id, fields: map[string]any{}}
	for i := 0; i+1 < len(kv); i += 2 {
		c.fields[kv[i].(string)] = kv[i+1]
	}

	return c
}

func (c card) EntityID() string { return c.id }

func (c card) Field(name string) (any, bool) {
	v, ok := c.fields[name]

	return v, ok
}

func (c card) WithField(name string, value any) card {
	out := card{id: c.id, fields: maps.Clone(c.fields)}
	out.fields[name] = value

	return out
}

func (c card) WithoutField(name string) card {
	out := card{id: c.id, fields: maps.Clone(c.fields)}
	delete(out.fields, name)

	return out
}

func field(t *testing.T, s *collection.Store[card], id, name string) any {
	t.Helper()

	rec, ok := s.Get(id)
	require.True(t, ok, "record %s missing", id)

	v, _ := rec.Field(name)

	return v
}

func succeed(fields collection.Fields) optimistic.Remote {
	return func(context.Context) (collection.Fields, error) { return fields, nil }
}

func fail(err error) optimistic.Remote {
	return func(context.Context) (collection.Fields, error) { return nil, err }
}

// gate is a remote that blocks until released, then returns the configured outcome.
type gate struct {
	entered chan struct{}
	release chan struct{}
	fields  collection.Fields
	err     error
}

func newGate(fields collection.Fields, err error) *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{}), fields: fields, err: err}
}

func (g *gate) remote(context.Context) (collection.Fields, error) {
	close(g.entered)
	<-g.release

	return g.fields, g.err
}

func newStore(records ...card) *collection.Store[card] {
	s := collection.New[card](collection.Options{Name: "jobs"})
	s.AppendUnique(records)

	return s
}

// Contract: a failed remote call restores every changed field to its prior value.
func Test_Mutate_Restores_Prior_Value_When_Remote_Fails(t *testing.T) {
	t.Parallel()

	s := newStore(newCard("j1", "name", "v1"))
	c := optimistic.New(s, optimistic.Options{})

	boom := errors.New("backend down")

	_, err := c.Mutate(t.Context(), "j1", collection.Fields{"name": "v2", "note": "x"}, fail(boom))
	require.ErrorIs(t, err, optimistic.ErrRolledBack)
	require.ErrorIs(t, err, boom)

	var mErr *optimistic.MutationError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, []string{"name", "note"}, mErr.Fields)

	rec, _ := s.Get("j1")
	if diff := cmp.Diff(map[string]any{"name": "v1"}, rec.fields); diff != "" {
		t.Fatalf("record after rollback (-want +got):\n%s", diff)
	}

	assert.Zero(t, c.Pending("j1"))
}

func Test_Mutate_Shows_Optimistic_Value_While_Remote_Is_Pending(t *testing.T) {
	t.Parallel()

	s := newStore(newCard("j1", "name", "v1"))
	c := optimistic.New(s, optimistic.Options{})
	g := newGate(collection.Fields{"name": "v2"}, nil)

	done := make(chan error, 1)

	go func() {
		_, err := c.Mutate(context.Background(), "j1", collection.Fields{"name": "v2"}, g.remote)
		done <- err
	}()

	<-g.entered
	assert.Equal(t, "v2", field(t, s, "j1", "name"))
	assert.Equal(t, 1, c.Pending("j1"))

	close(g.release)
	require.NoError(t, <-done)
	assert.Equal(t, "v2", field(t, s, "j1", "name"))
}

// Contract: the authoritative response overrides the optimistic value.
func Test_Mutate_Applies_Server_Value_When_It_Differs(t *testing.T) {
	t.Parallel()

	s := newStore(newCard("j1", "name", "v1"))
	c := optimistic.New(s, optimistic.Options{})

	rec, err := c.Mutate(t.Context(), "j1", collection.Fields{"name": "v2"},
		succeed(collection.Fields{"name": "v3", "updatedAt": "now"}))
	require.NoError(t, err)

	got, _ := rec.Field("name")
	assert.Equal(t, "v3", got)
	assert.Equal(t, "v3", field(t, s, "j1", "name"))
	assert.Equal(t, "now", field(t, s, "j1", "updatedAt"))
}

// Contract: a slow rollback of an earlier edit does not clobber a later edit that already succeeded.
func Test_Mutate_Keeps_Later_Success_When_Earlier_Edit_Fails_Afterwards(t *testing.T) {
	t.Parallel()

	s := newStore(newCard("j1", "name", "v1"))
	c := optimistic.New(s, optimistic.Options{})

	first := newGate(nil, errors.New("timeout"))

	var (
		wg       sync.WaitGroup
		firstErr error
	)

	wg.Go(func() {
		_, firstErr = c.Mutate(context.Background(), "j1", collection.Fields{"name": "v2"}, first.remote)
	})

	<-first.entered

	_, err := c.Mutate(t.Context(), "j1", collection.Fields{"name": "v3"}, succeed(collection.Fields{"name": "v3"}))
	require.NoError(t, err)
	assert.Equal(t, "v3", field(t, s, "j1", "name"))

	close(first.release)
	wg.Wait()

	require.ErrorIs(t, firstErr, optimistic.ErrRolledBack)
	assert.Equal(t, "v3", field(t, s, "j1", "name"))
	assert.Zero(t, c.Pending("j1"))
}

// Contract: when a later edit fails after an earlier one committed, the committed value is restored.
func Test_Mutate_Restores_Committed_Value_When_Later_Edit_Fails(t *testing.T) {
	t.Parallel()

	s := newStore(newCard("j1", "name", "v1"))
	c := optimistic.New(s, optimistic.Options{})

	first := newGate(collection.Fields{"name": "v2"}, nil)
	second := newGate(nil, errors.New("conflict"))

	var wg sync.WaitGroup

	wg.Go(func() {
		_, err := c.Mutate(context.Background(), "j1", collection.Fields{"name": "v2"}, first.remote)
		assert.NoError(t, err)
	})

	<-first.entered

	wg.Go(func() {
		_, err := c.Mutate(context.Background(), "j1", collection.Fields{"name": "v3"}, second.remote)
		assert.Error(t, err)
	})

	<-second.entered
	assert.Equal(t, "v3", field(t, s, "j1", "name"))

	close(first.release)

	require.Eventually(t, func() bool { return c.Pending("j1") == 1 }, waitFor, tick)
	assert.Equal(t, "v3", field(t, s, "j1", "name"), "pending edit stays visible")

	close(second.release)
	wg.Wait()

	assert.Equal(t, "v2", field(t, s, "j1", "name"))
}

func Test_Mutate_Edits_On_Different_Fields_Resolve_Independently(t *testing.T) {
	t.Parallel()

	s := newStore(newCard("j1", "name", "n1", "status", "todo"))
	c := optimistic.New(s, optimistic.Options{})

	slow := newGate(nil, errors.New("nope"))

	var wg sync.WaitGroup

	wg.Go(func() {
		_, _ = c.Mutate(context.Background(), "j1", collection.Fields{"name": "n2"}, slow.remote)
	})

	<-slow.entered

	_, err := c.Mutate(t.Context(), "j1", collection.Fields{"status": "done"}, succeed(nil))
	require.NoError(t, err)

	close(slow.release)
	wg.Wait()

	assert.Equal(t, "n1", field(t, s, "j1", "name"))
	assert.Equal(t, "done", field(t, s, "j1", "status"))
}

// Contract: a backend that answers with the whole record cannot undo a pending
// edit of another field; that edit's own answer decides the field.
func Test_Mutate_Keeps_Pending_Field_When_Later_Edit_Echoes_Whole_Record(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name     string
		slowErr  error
		wantName string
	}{
		{name: "slow edit accepted", wantName: "n2"},
		{name: "slow edit rejected", slowErr: errors.New("conflict"), wantName: "n1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newStore(newCard("j1", "name", "n1", "status", "todo"))
			c := optimistic.New(s, optimistic.Options{})

			var echo collection.Fields
			if tc.slowErr == nil {
				echo = collection.Fields{"name": "n2", "status": "done"}
			}

			slow := newGate(echo, tc.slowErr)

			var wg sync.WaitGroup

			wg.Go(func() {
				_, _ = c.Mutate(context.Background(), "j1", collection.Fields{"name": "n2"}, slow.remote)
			})

			<-slow.entered

			_, err := c.Mutate(t.Context(), "j1", collection.Fields{"status": "done"},
				succeed(collection.Fields{"name": "n1", "status": "done"}))
			require.NoError(t, err)
			assert.Equal(t, "n2", field(t, s, "j1", "name"), "stale echo must not replace the pending edit")

			close(slow.release)
			wg.Wait()

			assert.Equal(t, tc.wantName, field(t, s, "j1", "name"))
			assert.Equal(t, "done", field(t, s, "j1", "status"))
			assert.Zero(t, c.Pending("j1"))
		})
	}
}

// Contract: nested fields of different parts resolve independently, and an echo
// of the parent waits for pending edits of its parts.
func Test_Mutate_Restores_Nested_Field_When_Sibling_Part_Commits(t *testing.T) {
	t.Parallel()

	s := newStore(newCard("j1",
		"tasks", "server list",
		"tasks/t1.done", false,
		"tasks/t2.done", false,
		"status", "todo",
	))
	c := optimistic.New(s, optimistic.Options{})

	slow := newGate(nil, errors.New("task is locked"))

	var (
		wg      sync.WaitGroup
		slowErr error
	)

	wg.Go(func() {
		_, slowErr = c.Mutate(context.Background(), "j1", collection.Fields{"tasks/t1.done": true}, slow.remote)
	})

	<-slow.entered

	_, err := c.Mutate(t.Context(), "j1", collection.Fields{"tasks/t2.done": true},
		succeed(collection.Fields{"tasks/t2.done": true}))
	require.NoError(t, err)

	_, err = c.Mutate(t.Context(), "j1", collection.Fields{"status": "done"},
		succeed(collection.Fields{"status": "done", "tasks": "stale list"}))
	require.NoError(t, err)
	assert.Equal(t, "server list", field(t, s, "j1", "tasks"))

	close(slow.release)
	wg.Wait()

	require.ErrorIs(t, slowErr, optimistic.ErrRolledBack)

	rec, _ := s.Get("j1")
	if diff := cmp.Diff(map[string]any{
		"tasks":         "server list",
		"tasks/t1.done": false,
		"tasks/t2.done": true,
		"status":        "done",
	}, rec.fields); diff != "" {
		t.Fatalf("record after resolution (-want +got):\n%s", diff)
	}
}

func Test_Mutate_Returns_Not_Found_Without_Calling_Remote_When_Record_Is_Missing(t *testing.T) {
	t.Parallel()

	s := newStore()
	c := optimistic.New(s, optimistic.Options{})

	called := false
	remote := func(context.Context) (collection.Fields, error) {
		called = true

		return nil, nil
	}

	_, err := c.Mutate(t.Context(), "ghost", collection.Fields{"name": "x"}, remote)
	require.ErrorIs(t, err, collection.ErrNotFound)
	assert.False(t, called)

	_, err = c.Move(t.Context(), "ghost", optimistic.Move{Field: "status", To: "done"}, remote)
	require.ErrorIs(t, err, collection.ErrNotFound)
	assert.False(t, called)
}

func Test_Mutate_Rejects_Position_Pseudo_Field(t *testing.T) {
	t.Parallel()

	s := newStore(newCard("j1"))
	c := optimistic.New(s, optimistic.Options{})

	_, err := c.Mutate(t.Context(), "j1", collection.Fields{optimistic.PositionField: 3}, succeed(nil))
	require.ErrorIs(t, err, optimistic.ErrReservedField)
}

func Test_Mutate_Skips_Rollback_When_Record_Was_Removed_Meanwhile(t *testing.T) {
	t.Parallel()

	s := newStore(newCard("j1", "name", "v1"))
	c := optimistic.New(s, optimistic.Options{})

	remote := func(context.Context) (collection.Fields, error) {
		s.Remove("j1")

		return nil, errors.New("gone")
	}

	_, err := c.Mutate(t.Context(), "j1", collection.Fields{"name": "v2"}, remote)
	require.ErrorIs(t, err, optimistic.ErrRolledBack)
	assert.False(t, s.Has("j1"))
}

// Contract: rollback of a move restores both the bucket and the place in the source column.
func Test_Move_Restores_Bucket_And_Position_When_Remote_Fails(t *testing.T) {
	t.Parallel()

	s := newStore(
		newCard("a", "status", "todo"),
		newCard("b", "status", "todo"),
		newCard("c", "status", "todo"),
		newCard("d", "status", "done"),
	)
	c := optimistic.New(s, optimistic.Options{})
	g := newGate(nil, errors.New("rejected"))

	done := make(chan error, 1)

	go func() {
		_, err := c.Move(context.Background(), "b", optimistic.Move{Field: "status", To: "done"}, g.remote)
		done <- err
	}()

	<-g.entered

	buckets := s.Buckets(collection.FieldKey[card]("status"), "todo", "done")
	assert.Equal(t, "done", collection.BucketOf(buckets, "b"))
	assert.Equal(t, []string{"a", "c", "d", "b"}, s.IDs())

	close(g.release)
	require.ErrorIs(t, <-done, optimistic.ErrRolledBack)

	assert.Equal(t, "todo", field(t, s, "b", "status"))
	assert.Equal(t, []string{"a", "b", "c", "d"}, s.IDs())
}

func Test_Move_Places_Before_Target_When_Before_Is_Set(t *testing.T) {
	t.Parallel()

	s := newStore(
		newCard("a", "status", "todo"),
		newCard("b", "status", "done"),
		newCard("c", "status", "done"),
	)
	c := optimistic.New(s, optimistic.Options{})

	_, err := c.Move(t.Context(), "a", optimistic.Move{Field: "status", To: "done", Before: "c"}, succeed(nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a", "c"}, s.IDs())
	assert.Equal(t, "done", field(t, s, "a", "status"))
}

func Test_Move_Fails_Without_Change_When_Before_Is_Not_Stored(t *testing.T) {
	t.Parallel()

	s := newStore(
		newCard("a", "status", "todo"),
		newCard("b", "status", "done"),
	)
	c := optimistic.New(s, optimistic.Options{})

	called := false
	remote := func(context.Context) (collection.Fields, error) {
		called = true

		return nil, nil
	}

	_, err := c.Move(t.Context(), "a", optimistic.Move{Field: "status", To: "done", Before: "ghost"}, remote)
	require.ErrorIs(t, err, collection.ErrNotFound)
	assert.False(t, called)

	assert.Equal(t, "todo", field(t, s, "a", "status"))
	assert.Equal(t, []string{"a", "b"}, s.IDs())
	assert.Zero(t, c.Pending("a"))
}

func Test_OnResolve_Reports_Outcome_Once_Per_Intent(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		results []optimistic.Result
	)

	s := newStore(newCard("j1", "name", "v1"))
	c := optimistic.New(s, optimistic.Options{
		OnResolve: func(r optimistic.Result) {
			mu.Lock()
			defer mu.Unlock()

			results = append(results, r)
		},
	})

	_, err := c.Mutate(t.Context(), "j1", collection.Fields{"name": "v2"}, succeed(nil))
	require.NoError(t, err)

	_, err = c.Mutate(t.Context(), "j1", collection.Fields{"name": "v3"}, fail(errors.New("x")))
	require.Error(t, err)

	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NotEqual(t, results[0].IntentID, results[1].IntentID)
	assert.Equal(t, []string{"name"}, results[1].Fields)
}
