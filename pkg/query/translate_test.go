package query_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/opsync/pkg/query"
)

type record map[string]any

func (r record) Field(name string) (any, bool) {
	v, ok := r[name]

	return v, ok
}

const estimator = "est-01"

// Contract: an estimator filter plus search matches only entities whose aliased value is
// one of the accepted values AND whose name contains the text, and never archived ones.
func Test_Translate_Round_Trips_Through_Match_When_Field_And_Search_Are_Set(t *testing.T) {
	t.Parallel()

	frag := query.Translate(query.FilterState{
		Fields: map[string][]string{estimator: {"Alice", "Bob"}},
		Search: "deck",
	})

	testCases := []struct {
		name string
		rec  record
		want bool
	}{
		{name: "AliceDeck", rec: record{"name": "Back Deck", estimator: "Alice"}, want: true},
		{name: "BobDeckUpper", rec: record{"name": "DECK rebuild", estimator: "Bob"}, want: true},
		{name: "Carol", rec: record{"name": "Deck", estimator: "Carol"}, want: false},
		{name: "NoDeck", rec: record{"name": "Kitchen", estimator: "Alice"}, want: false},
		{name: "MissingField", rec: record{"name": "Deck"}, want: false},
		{name: "Archived", rec: record{"name": "Deck", estimator: "Alice", "archived": true}, want: false},
		{name: "NotArchived", rec: record{"name": "Deck", estimator: "Bob", "archived": false}, want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, frag.Match(tc.rec))
		})
	}
}

func Test_Translate_Emits_Wire_Shape_When_Marshaled(t *testing.T) {
	t.Parallel()

	frag := query.Translate(query.FilterState{
		Fields: map[string][]string{estimator: {"Alice", "Bob"}},
		Search: "deck",
	})

	data, err := json.Marshal(frag)
	require.NoError(t, err)

	want := `{"where":{"and":[["archived","neq",true],["name","icontains","deck"],` +
		`{"or":[["cf_est_01.value","eq","Alice"],["cf_est_01.value","eq","Bob"]]}]},` +
		`"with":{"cf_est_01":{"relation":"customFieldValues","fieldId":"est-01","select":"value"}},` +
		`"sortBy":[{"field":"createdAt","order":"DESC"}]}`

	assert.JSONEq(t, want, string(data))
}

func Test_Translate_Is_Pure_When_Called_Twice(t *testing.T) {
	t.Parallel()

	state := query.FilterState{
		Search: "  deck ",
		Sort:   &query.Sort{Field: "name", Order: "asc"},
		Fields: map[string][]string{"b": {"2", "1"}, "a": {"x", ""}},
	}
	before := state.Clone()

	first := query.Translate(state)
	second := query.Translate(state)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("translate not deterministic (-first +second):\n%s", diff)
	}

	if diff := cmp.Diff(before, state); diff != "" {
		t.Fatalf("input mutated (-before +after):\n%s", diff)
	}

	assert.Equal(t, []query.Sort{{Field: "name", Order: query.Asc}}, first.SortBy)
}

func Test_Translate_Removes_Condition_When_Value_List_Becomes_Empty(t *testing.T) {
	t.Parallel()

	withValue, err := query.FilterState{}.WithField("stage", "framing")
	require.NoError(t, err)

	cleared, err := withValue.WithField("stage")
	require.NoError(t, err)

	emptyList := query.FilterState{Fields: map[string][]string{"stage": {}}}

	base := query.Translate(query.FilterState{})

	for _, state := range []query.FilterState{cleared, emptyList} {
		frag := query.Translate(state)

		if diff := cmp.Diff(base, frag); diff != "" {
			t.Fatalf("empty key left a condition behind (-want +got):\n%s", diff)
		}

		assert.Nil(t, frag.With)
		assert.Len(t, frag.Where.And, 1, "only the archived exclusion remains")
	}
}

func Test_Translate_Defaults_Sort_When_Absent(t *testing.T) {
	t.Parallel()

	frag := query.Translate(query.FilterState{})

	assert.Equal(t, []query.Sort{{Field: "createdAt", Order: query.Desc}}, frag.SortBy)
	assert.True(t, frag.Match(record{"name": "anything"}))
}

func Test_Translate_Drops_Invalid_Input_And_Logs_When_State_Is_Malformed(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer

	tr := query.NewTranslator(query.Options{
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	})

	state := query.FilterState{
		Fields: map[string][]string{
			"bad id!": {"x"},
			"search":  {"y"},
			"ok":      {"  "},
		},
		Ranges: map[string]query.Range{"qty": {Min: "10", Max: "2"}},
	}

	frag := tr.Translate(state)

	assert.Nil(t, frag.With)
	assert.Len(t, frag.Where.And, 1)
	assert.Contains(t, logs.String(), "dropped filter input")

	err := tr.Validate(state)
	require.Error(t, err)

	var vErr *query.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.ErrorIs(t, err, query.ErrInvalidFieldID)
	assert.ErrorIs(t, err, query.ErrReservedKey)
	assert.ErrorIs(t, err, query.ErrBlankValue)
	assert.ErrorIs(t, err, query.ErrInvalidRange)
}

func Test_Translate_Emits_Range_Bounds_When_Range_Is_Set(t *testing.T) {
	t.Parallel()

	state, err := query.FilterState{}.WithRange("qty", query.Range{Min: "5", Max: "20"})
	require.NoError(t, err)

	frag := query.Translate(state)

	assert.True(t, frag.Match(record{"qty": 5}))
	assert.True(t, frag.Match(record{"qty": 20.0}))
	assert.False(t, frag.Match(record{"qty": "21"}))
	assert.False(t, frag.Match(record{"qty": 4}))
	assert.False(t, frag.Match(record{}))
}

func Test_Cond_Unmarshal_Inverts_Marshal_When_Tree_Is_Nested(t *testing.T) {
	t.Parallel()

	frag := query.Translate(query.FilterState{
		Fields: map[string][]string{"a": {"1", "2"}},
		Search: "x",
	})

	data, err := json.Marshal(frag.Where)
	require.NoError(t, err)

	var back query.Cond
	require.NoError(t, json.Unmarshal(data, &back))

	again, err := json.Marshal(back)
	require.NoError(t, err)

	assert.JSONEq(t, string(data), string(again))
}

func Test_WithField_Rejects_Reserved_Keys(t *testing.T) {
	t.Parallel()

	_, err := query.FilterState{}.WithField(query.KeySearch, "x")
	require.ErrorIs(t, err, query.ErrReservedKey)

	_, err = query.FilterState{}.WithField("a b", "x")
	require.ErrorIs(t, err, query.ErrInvalidFieldID)
}

func Test_ParseSort_Handles_Order_Suffix(t *testing.T) {
	t.Parallel()

	s, err := query.ParseSort("name:asc")
	require.NoError(t, err)
	assert.Equal(t, query.Sort{Field: "name", Order: query.Asc}, s)

	s, err = query.ParseSort("dueDate")
	require.NoError(t, err)
	assert.Equal(t, query.Desc, s.Order)

	_, err = query.ParseSort("name:sideways")
	require.ErrorIs(t, err, query.ErrInvalidSort)
}
