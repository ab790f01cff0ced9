package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/calvinalkan/opsync/pkg/query"
)

func Test_RESTValues_Uses_In_Suffix_When_Key_Has_Several_Values(t *testing.T) {
	t.Parallel()

	tr := query.NewTranslator(query.Options{DefaultSort: query.Sort{Field: "updated_at", Order: query.Desc}})

	values := tr.RESTValues(query.FilterState{
		Search: "drill",
		Sort:   &query.Sort{Field: "name", Order: query.Asc},
		Fields: map[string][]string{
			"category": {"tools"},
			"location": {"yard", "truck"},
		},
		Ranges: map[string]query.Range{"quantity": {Min: "5"}},
	})

	assert.Equal(t, "drill", values.Get("search"))
	assert.Equal(t, "name", values.Get("ordering"))
	assert.Equal(t, "tools", values.Get("category"))
	assert.Equal(t, "yard,truck", values.Get("location__in"))
	assert.Equal(t, "5", values.Get("quantity__gte"))
	assert.False(t, values.Has("quantity__lte"))
	assert.Equal(t, "false", values.Get("archived"))
}

func Test_RESTValues_Prefixes_Minus_When_Sort_Is_Descending(t *testing.T) {
	t.Parallel()

	tr := query.NewTranslator(query.Options{DefaultSort: query.Sort{Field: "updated_at"}})

	values := tr.RESTValues(query.FilterState{})

	assert.Equal(t, "-updated_at", values.Get("ordering"))
	assert.False(t, values.Has("search"))
}
