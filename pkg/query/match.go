package query

import (
	"cmp"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Fielder exposes named field values of a record. Custom fields are addressed by
// their field id.
type Fielder interface {
	Field(name string) (any, bool)
}

// Match reports whether rec satisfies the fragment's where clause.
func (f Fragment) Match(rec Fielder) bool {
	return f.eval(f.Where, rec)
}

func (f Fragment) eval(c Cond, rec Fielder) bool {
	switch {
	case c.IsLeaf():
		value, ok := f.resolve(c.Field, rec)

		return evalLeaf(c.Op, value, ok, c.Value)
	case c.Or != nil:
		for _, sub := range c.Or {
			if f.eval(sub, rec) {
				return true
			}
		}

		return false
	case c.And != nil:
		for _, sub := range c.And {
			if !f.eval(sub, rec) {
				return false
			}
		}

		return true
	default:
		return true
	}
}

// resolve maps "alias.value" references back to the aliased custom field.
func (f Fragment) resolve(field string, rec Fielder) (any, bool) {
	if name, _, ok := strings.Cut(field, "."); ok {
		if alias, found := f.With[name]; found {
			return rec.Field(alias.FieldID)
		}
	}

	return rec.Field(field)
}

func evalLeaf(op Op, got any, present bool, want any) bool {
	switch op {
	case OpEq:
		return present && equalValues(got, want)
	case OpNeq:
		return !present || !equalValues(got, want)
	case OpIn:
		if !present {
			return false
		}

		list, ok := want.([]any)
		if !ok {
			return equalValues(got, want)
		}

		for _, w := range list {
			if equalValues(got, w) {
				return true
			}
		}

		return false
	case OpIContains:
		return present && strings.Contains(strings.ToLower(stringify(got)), strings.ToLower(stringify(want)))
	case OpGte:
		return present && compareValues(stringify(got), stringify(want)) >= 0
	case OpLte:
		return present && compareValues(stringify(got), stringify(want)) <= 0
	default:
		return false
	}
}

func equalValues(a, b any) bool {
	return compareValues(stringify(a), stringify(b)) == 0
}

// compareValues orders numerically when both sides are numbers, else lexically.
func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)

	if errA == nil && errB == nil {
		return cmp.Compare(fa, fb)
	}

	return strings.Compare(a, b)
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
