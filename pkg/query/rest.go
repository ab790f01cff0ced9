package query

import (
	"net/url"
	"strings"
)

// RESTValues renders state as list parameters of a REST collection endpoint:
//
//	search=deck&ordering=-created_at&category=tools&location__in=a,b&quantity__gte=5&archived=false
//
// Paging parameters are left to the caller. The same sanitizing rules as
// [Translator.Translate] apply.
func (t *Translator) RESTValues(state FilterState) url.Values {
	clean, problems := t.sanitize(state)
	for _, p := range problems {
		t.logger.Warn("dropped filter input", "error", p)
	}

	values := url.Values{}
	values.Set(t.opts.ArchivedField, "false")

	if clean.Search != "" {
		values.Set(KeySearch, clean.Search)
	}

	sortSpec := t.opts.DefaultSort
	if clean.Sort != nil {
		sortSpec = *clean.Sort
	}

	ordering := sortSpec.Field
	if sortSpec.Order == Desc {
		ordering = "-" + ordering
	}

	values.Set("ordering", ordering)

	for _, id := range sortedKeys(clean.Fields) {
		vals := clean.Fields[id]
		if len(vals) == 1 {
			values.Set(id, vals[0])

			continue
		}

		values.Set(id+"__in", strings.Join(vals, ","))
	}

	for _, id := range sortedKeys(clean.Ranges) {
		r := clean.Ranges[id]

		if r.Min != "" {
			values.Set(id+"__gte", r.Min)
		}

		if r.Max != "" {
			values.Set(id+"__lte", r.Max)
		}
	}

	return values
}
