package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/opsync/internal/model"
	"github.com/calvinalkan/opsync/pkg/collection"
	"github.com/calvinalkan/opsync/pkg/query"
)

func Test_Job_WithField_Does_Not_Alias_Receiver(t *testing.T) {
	t.Parallel()

	orig := model.Job{ID: "j1", Custom: map[string]string{"est": "Alice"}, Tasks: []model.Task{{ID: "t1", Name: "a"}}}

	changed := orig.WithField("est", "Bob").WithTask(model.Task{ID: "t1", Name: "b"})

	assert.Equal(t, "Alice", orig.Custom["est"])
	assert.Equal(t, "a", orig.Tasks[0].Name)
	assert.Equal(t, "Bob", changed.Custom["est"])
	assert.Equal(t, "b", changed.Tasks[0].Name)

	same := changed.WithField(model.JobID, "other")
	assert.Equal(t, "j1", same.EntityID())
}

func Test_Job_Round_Trips_Fields_Through_WithField(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := model.Job{ID: "j1", Name: "Deck", Status: "todo", CreatedAt: created, Custom: map[string]string{"est": "Alice"}}

	dst := model.Job{ID: "j1"}
	for name, v := range src.Fields() {
		dst = dst.WithField(name, v)
	}

	assert.Equal(t, src.Name, dst.Name)
	assert.Equal(t, src.Status, dst.Status)
	assert.True(t, created.Equal(dst.CreatedAt))
	assert.Equal(t, src.Custom, dst.Custom)

	cleared := dst.WithoutField(model.JobStatus).WithoutField("est")
	_, ok := cleared.Field(model.JobStatus)
	assert.False(t, ok)

	_, ok = cleared.Field("est")
	assert.False(t, ok)
}

// Contract: the translated fragment matches only unarchived jobs whose custom field is one of the values and whose name contains the search.
func Test_Fragment_Matches_Jobs_When_Filtered_By_Custom_Field_And_Search(t *testing.T) {
	t.Parallel()

	frag := query.Translate(query.FilterState{
		Search: "DECK",
		Fields: map[string][]string{"est-01": {"Alice", "Bob"}},
	})

	jobs := map[string]model.Job{
		"alice deck":   {ID: "1", Name: "Back deck", Custom: map[string]string{"est-01": "Alice"}},
		"bob deck":     {ID: "2", Name: "Deck repair", Custom: map[string]string{"est-01": "Bob"}},
		"carol deck":   {ID: "3", Name: "Deck", Custom: map[string]string{"est-01": "Carol"}},
		"alice roof":   {ID: "4", Name: "Roof", Custom: map[string]string{"est-01": "Alice"}},
		"archived":     {ID: "5", Name: "Deck", Archived: true, Custom: map[string]string{"est-01": "Alice"}},
		"no estimator": {ID: "6", Name: "Deck"},
	}

	want := map[string]bool{"alice deck": true, "bob deck": true}

	for name, job := range jobs {
		assert.Equal(t, want[name], frag.Match(job), name)
	}
}

func Test_TasksByDueDate_Puts_Undated_Last(t *testing.T) {
	t.Parallel()

	j := model.Job{ID: "j", Tasks: []model.Task{
		{ID: "a", Name: "undated"},
		{ID: "b", Name: "late", DueDate: "2026-05-02"},
		{ID: "c", Name: "early", DueDate: "2026-05-01"},
	}}

	var got []string
	for _, task := range j.TasksByDueDate() {
		got = append(got, task.ID)
	}

	assert.Equal(t, []string{"c", "b", "a"}, got)
	assert.Equal(t, "a", j.Tasks[0].ID, "receiver order unchanged")
}

func Test_Item_Stores_In_Collection_When_Used_As_Record(t *testing.T) {
	t.Parallel()

	s := collection.New[model.Item](collection.Options{})
	s.AppendUnique([]model.Item{{ID: "i1", Quantity: 3}, {ID: "i1", Quantity: 9}})

	rec, err := s.Update("i1", func(it model.Item) (model.Item, error) {
		return it.WithField(model.ItemQuantity, "7").WithField("color", "red"), nil
	})
	require.NoError(t, err)

	assert.Equal(t, 7, rec.Quantity)
	assert.Equal(t, "red", rec.Attributes["color"])
	assert.Equal(t, 1, s.Len())

	frag := query.NewTranslator(query.Options{}).Translate(query.FilterState{
		Ranges: map[string]query.Range{model.ItemQuantity: {Min: "5"}},
	})
	assert.True(t, frag.Match(rec))
	assert.False(t, frag.Match(rec.WithField(model.ItemQuantity, 2)))
}
