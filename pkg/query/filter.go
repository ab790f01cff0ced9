package query

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
)

// Reserved filter keys. Every other key is a custom-field id.
const (
	KeySearch = "search"
	KeySort   = "sort"
)

// SortOrder is the direction of a [Sort].
type SortOrder string

// Sort directions as the backends spell them.
const (
	Asc  SortOrder = "ASC"
	Desc SortOrder = "DESC"
)

// ParseSortOrder accepts asc/desc in any case. ok is false for anything else.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(Asc):
		return Asc, true
	case string(Desc):
		return Desc, true
	default:
		return "", false
	}
}

// Sort is a single field/direction pair.
type Sort struct {
	Field string    `json:"field" yaml:"field"`
	Order SortOrder `json:"order" yaml:"order"`
}

// Range bounds a field. Empty Min or Max means unbounded on that side.
// Bounds are compared as numbers when both sides parse as numbers, else as strings
// (which orders RFC 3339 timestamps correctly).
type Range struct {
	Min string `json:"min,omitempty" yaml:"min,omitempty"`
	Max string `json:"max,omitempty" yaml:"max,omitempty"`
}

// IsZero reports whether both bounds are empty.
func (r Range) IsZero() bool {
	return r.Min == "" && r.Max == ""
}

// FilterState is the filter bar of one screen.
//
// Fields maps custom-field id to accepted values (OR within a key, AND across keys).
// A key with no values means "no condition". The zero value is a valid empty filter.
type FilterState struct {
	Search string              `json:"search,omitempty" yaml:"search,omitempty"`
	Sort   *Sort               `json:"sort,omitempty" yaml:"sort,omitempty"`
	Fields map[string][]string `json:"fields,omitempty" yaml:"fields,omitempty"`
	Ranges map[string]Range    `json:"ranges,omitempty" yaml:"ranges,omitempty"`
}

var fieldIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidFieldID reports whether id may be used as a filter key.
func ValidFieldID(id string) bool {
	return fieldIDPattern.MatchString(id) && !IsReserved(id)
}

// IsReserved reports whether key is one of the reserved filter keys.
func IsReserved(key string) bool {
	return key == KeySearch || key == KeySort
}

// Clone returns a deep copy.
func (f FilterState) Clone() FilterState {
	out := FilterState{Search: f.Search}

	if f.Sort != nil {
		s := *f.Sort
		out.Sort = &s
	}

	if f.Fields != nil {
		out.Fields = make(map[string][]string, len(f.Fields))
		for k, v := range f.Fields {
			out.Fields[k] = slices.Clone(v)
		}
	}

	if f.Ranges != nil {
		out.Ranges = maps.Clone(f.Ranges)
	}

	return out
}

// WithField returns a copy with key set to values. An empty values list removes the key.
// Reserved keys and malformed ids are rejected.
func (f FilterState) WithField(key string, values ...string) (FilterState, error) {
	if IsReserved(key) {
		return f, fmt.Errorf("%w: %q", ErrReservedKey, key)
	}

	if !fieldIDPattern.MatchString(key) {
		return f, fmt.Errorf("%w: %q", ErrInvalidFieldID, key)
	}

	out := f.Clone()

	if len(values) == 0 {
		delete(out.Fields, key)

		return out, nil
	}

	if out.Fields == nil {
		out.Fields = make(map[string][]string, 1)
	}

	out.Fields[key] = slices.Clone(values)

	return out, nil
}

// WithRange returns a copy with a range bound on key. A zero range removes it.
func (f FilterState) WithRange(key string, r Range) (FilterState, error) {
	if IsReserved(key) {
		return f, fmt.Errorf("%w: %q", ErrReservedKey, key)
	}

	if !fieldIDPattern.MatchString(key) {
		return f, fmt.Errorf("%w: %q", ErrInvalidFieldID, key)
	}

	out := f.Clone()

	if r.IsZero() {
		delete(out.Ranges, key)

		return out, nil
	}

	if out.Ranges == nil {
		out.Ranges = make(map[string]Range, 1)
	}

	out.Ranges[key] = r

	return out, nil
}

// WithSearch returns a copy with the search text replaced.
func (f FilterState) WithSearch(text string) FilterState {
	out := f.Clone()
	out.Search = text

	return out
}

// WithSort returns a copy with the sort replaced. A nil sort restores the default.
func (f FilterState) WithSort(s *Sort) FilterState {
	out := f.Clone()
	out.Sort = nil

	if s != nil {
		c := *s
		out.Sort = &c
	}

	return out
}

// ParseSort parses "field", "field:asc" or "field:desc". The order defaults to DESC.
func ParseSort(s string) (Sort, error) {
	field, order, hasOrder := strings.Cut(strings.TrimSpace(s), ":")
	if field == "" {
		return Sort{}, fmt.Errorf("%w: empty field", ErrInvalidSort)
	}

	if !hasOrder {
		return Sort{Field: field, Order: Desc}, nil
	}

	parsed, ok := ParseSortOrder(order)
	if !ok {
		return Sort{}, fmt.Errorf("%w: order %q", ErrInvalidSort, order)
	}

	return Sort{Field: field, Order: parsed}, nil
}
