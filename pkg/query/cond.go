package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Op is a leaf comparison operator.
type Op string

// Operators understood by the graph backend.
const (
	OpEq        Op = "eq"
	OpNeq       Op = "neq"
	OpIn        Op = "in"
	OpIContains Op = "icontains"
	OpGte       Op = "gte"
	OpLte       Op = "lte"
)

// Cond is a node of a where-clause tree: either a leaf [field, op, value] or an
// and/or group. Exactly one of the three shapes is populated.
type Cond struct {
	Field string
	Op    Op
	Value any

	And []Cond
	Or  []Cond
}

// Leaf builds a [field, op, value] condition.
func Leaf(field string, op Op, value any) Cond {
	return Cond{Field: field, Op: op, Value: value}
}

// And groups conditions that must all hold.
func And(conds ...Cond) Cond {
	return Cond{And: conds}
}

// Or groups conditions of which at least one must hold.
func Or(conds ...Cond) Cond {
	return Cond{Or: conds}
}

// IsLeaf reports whether c is a [field, op, value] leaf.
func (c Cond) IsLeaf() bool {
	return c.Field != ""
}

// IsZero reports whether c carries no condition at all.
func (c Cond) IsZero() bool {
	return c.Field == "" && c.And == nil && c.Or == nil
}

// MarshalJSON renders leaves as arrays and groups as {"and": [...]} / {"or": [...]}.
func (c Cond) MarshalJSON() ([]byte, error) {
	switch {
	case c.IsLeaf():
		return json.Marshal([]any{c.Field, c.Op, c.Value})
	case c.Or != nil:
		return json.Marshal(map[string][]Cond{"or": c.Or})
	case c.And != nil:
		return json.Marshal(map[string][]Cond{"and": c.And})
	default:
		return []byte("null"), nil
	}
}

var errBadCond = errors.New("malformed condition")

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Cond) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if bytes.Equal(data, []byte("null")) {
		*c = Cond{}

		return nil
	}

	if len(data) > 0 && data[0] == '[' {
		var leaf []json.RawMessage

		err := json.Unmarshal(data, &leaf)
		if err != nil {
			return fmt.Errorf("%w: %w", errBadCond, err)
		}

		if len(leaf) != 3 {
			return fmt.Errorf("%w: leaf has %d elements, want 3", errBadCond, len(leaf))
		}

		var (
			field string
			op    Op
			value any
		)

		if err := json.Unmarshal(leaf[0], &field); err != nil {
			return fmt.Errorf("%w: field: %w", errBadCond, err)
		}

		if err := json.Unmarshal(leaf[1], &op); err != nil {
			return fmt.Errorf("%w: op: %w", errBadCond, err)
		}

		if err := json.Unmarshal(leaf[2], &value); err != nil {
			return fmt.Errorf("%w: value: %w", errBadCond, err)
		}

		*c = Leaf(field, op, value)

		return nil
	}

	var group map[string][]Cond

	err := json.Unmarshal(data, &group)
	if err != nil {
		return fmt.Errorf("%w: %w", errBadCond, err)
	}

	if len(group) != 1 {
		return fmt.Errorf("%w: group must have exactly one of and/or", errBadCond)
	}

	switch {
	case group["and"] != nil:
		*c = And(group["and"]...)
	case group["or"] != nil:
		*c = Or(group["or"]...)
	default:
		return fmt.Errorf("%w: unknown group key", errBadCond)
	}

	return nil
}
