package query

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
)

// Defaults used when [Options] leaves a field empty.
const (
	DefaultNameField     = "name"
	DefaultArchivedField = "archived"
	DefaultSortField     = "createdAt"
	DefaultRelation      = "customFieldValues"
	DefaultValueField    = "value"

	aliasPrefix = "cf_"
)

// Options configures a [Translator] for one entity shape.
type Options struct {
	// NameField is the field search runs against.
	NameField string

	// ArchivedField is excluded when true. Every fragment carries this condition.
	ArchivedField string

	// DefaultSort applies when the state has no (valid) sort.
	DefaultSort Sort

	// Relation is the related collection holding custom field values.
	Relation string

	// ValueField is the column of Relation holding the value.
	ValueField string

	// Logger receives warnings about dropped filter input. Nil discards.
	Logger *slog.Logger
}

// Alias is a related-field sub-query exposing one custom field's value under a name.
type Alias struct {
	Relation string `json:"relation"`
	FieldID  string `json:"fieldId"`
	Select   string `json:"select"`
}

// Fragment is the backend-ready form of a [FilterState].
type Fragment struct {
	Where  Cond             `json:"where"`
	With   map[string]Alias `json:"with,omitempty"`
	SortBy []Sort           `json:"sortBy"`
}

// Translator converts filter state into fragments. It is immutable and safe for
// concurrent use.
type Translator struct {
	opts   Options
	logger *slog.Logger
}

// NewTranslator fills defaults into opts and returns a Translator.
func NewTranslator(opts Options) *Translator {
	if opts.NameField == "" {
		opts.NameField = DefaultNameField
	}

	if opts.ArchivedField == "" {
		opts.ArchivedField = DefaultArchivedField
	}

	if opts.DefaultSort.Field == "" {
		opts.DefaultSort.Field = DefaultSortField
	}

	if opts.DefaultSort.Order == "" {
		opts.DefaultSort.Order = Desc
	}

	if opts.Relation == "" {
		opts.Relation = DefaultRelation
	}

	if opts.ValueField == "" {
		opts.ValueField = DefaultValueField
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Translator{opts: opts, logger: logger}
}

var defaultTranslator = NewTranslator(Options{})

// Translate uses the default options.
func Translate(state FilterState) Fragment {
	return defaultTranslator.Translate(state)
}

// Options returns the effective options.
func (t *Translator) Options() Options {
	return t.opts
}

// AliasFor returns the alias a custom field id is exposed under.
func AliasFor(fieldID string) string {
	return aliasPrefix + strings.ReplaceAll(fieldID, "-", "_")
}

// Translate builds the fragment for state. Invalid entries are dropped and logged.
func (t *Translator) Translate(state FilterState) Fragment {
	clean, problems := t.sanitize(state)
	for _, p := range problems {
		t.logger.Warn("dropped filter input", "error", p)
	}

	where := []Cond{Leaf(t.opts.ArchivedField, OpNeq, true)}

	if clean.Search != "" {
		where = append(where, Leaf(t.opts.NameField, OpIContains, clean.Search))
	}

	var with map[string]Alias

	alias := func(id string) string {
		name := AliasFor(id)
		if with == nil {
			with = make(map[string]Alias)
		}

		with[name] = Alias{Relation: t.opts.Relation, FieldID: id, Select: t.opts.ValueField}

		return name + "." + t.opts.ValueField
	}

	for _, id := range sortedKeys(clean.Fields) {
		ref := alias(id)
		values := clean.Fields[id]

		group := make([]Cond, 0, len(values))
		for _, v := range values {
			group = append(group, Leaf(ref, OpEq, v))
		}

		where = append(where, Or(group...))
	}

	for _, id := range sortedKeys(clean.Ranges) {
		ref := alias(id)
		r := clean.Ranges[id]

		if r.Min != "" {
			where = append(where, Leaf(ref, OpGte, r.Min))
		}

		if r.Max != "" {
			where = append(where, Leaf(ref, OpLte, r.Max))
		}
	}

	sortSpec := t.opts.DefaultSort
	if clean.Sort != nil {
		sortSpec = *clean.Sort
	}

	return Fragment{
		Where:  And(where...),
		With:   with,
		SortBy: []Sort{sortSpec},
	}
}

// Validate reports every problem Translate would silently drop.
func (t *Translator) Validate(state FilterState) error {
	_, problems := t.sanitize(state)
	if len(problems) == 0 {
		return nil
	}

	return &ValidationError{Problems: problems}
}

// sanitize returns a copy of state with invalid entries removed. It never mutates state.
func (t *Translator) sanitize(state FilterState) (FilterState, []error) {
	var problems []error

	out := FilterState{Search: strings.TrimSpace(state.Search)}

	if state.Sort != nil {
		s, err := t.normalizeSort(*state.Sort)
		if err != nil {
			problems = append(problems, err)
		} else {
			out.Sort = &s
		}
	}

	for id, values := range state.Fields {
		if !validKey(id, &problems) {
			continue
		}

		kept := make([]string, 0, len(values))

		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" {
				problems = append(problems, fmt.Errorf("%w for %q", ErrBlankValue, id))

				continue
			}

			if !slices.Contains(kept, v) {
				kept = append(kept, v)
			}
		}

		if len(kept) == 0 {
			continue
		}

		if out.Fields == nil {
			out.Fields = make(map[string][]string, len(state.Fields))
		}

		out.Fields[id] = kept
	}

	for id, r := range state.Ranges {
		if !validKey(id, &problems) {
			continue
		}

		r = Range{Min: strings.TrimSpace(r.Min), Max: strings.TrimSpace(r.Max)}
		if r.IsZero() {
			continue
		}

		if r.Min != "" && r.Max != "" && compareValues(r.Min, r.Max) > 0 {
			problems = append(problems, fmt.Errorf("%w for %q: min %q > max %q", ErrInvalidRange, id, r.Min, r.Max))

			continue
		}

		if out.Ranges == nil {
			out.Ranges = make(map[string]Range, len(state.Ranges))
		}

		out.Ranges[id] = r
	}

	slices.SortFunc(problems, func(a, b error) int { return strings.Compare(a.Error(), b.Error()) })

	return out, problems
}

func validKey(id string, problems *[]error) bool {
	if IsReserved(id) {
		*problems = append(*problems, fmt.Errorf("%w: %q", ErrReservedKey, id))

		return false
	}

	if !fieldIDPattern.MatchString(id) {
		*problems = append(*problems, fmt.Errorf("%w: %q", ErrInvalidFieldID, id))

		return false
	}

	return true
}

func (t *Translator) normalizeSort(s Sort) (Sort, error) {
	field := strings.TrimSpace(s.Field)
	if field == "" || strings.ContainsAny(field, " \t\n") {
		return Sort{}, fmt.Errorf("%w: field %q", ErrInvalidSort, s.Field)
	}

	order, ok := ParseSortOrder(string(s.Order))
	if !ok {
		// Unknown directions fall back to the default direction instead of dropping the field.
		order = t.opts.DefaultSort.Order
	}

	return Sort{Field: field, Order: order}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
