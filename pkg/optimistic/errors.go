package optimistic

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRolledBack matches every error returned for a failed remote call.
var ErrRolledBack = errors.New("rolled back")

// ErrReservedField is returned when a change set writes the position pseudo-field.
var ErrReservedField = errors.New("reserved field")

// MutationError describes a mutation whose remote call failed and whose local
// change was rolled back. It matches both [ErrRolledBack] and the remote cause.
type MutationError struct {
	EntityID string
	IntentID string
	Fields   []string
	Err      error
}

func (e *MutationError) Error() string {
	if e == nil {
		return ""
	}

	return fmt.Sprintf("mutation %s of %s [%s] rolled back: %v",
		e.IntentID, e.EntityID, strings.Join(e.Fields, ","), e.Err)
}

// Unwrap exposes [ErrRolledBack] and the remote cause.
func (e *MutationError) Unwrap() []error {
	if e == nil {
		return nil
	}

	return []error{ErrRolledBack, e.Err}
}
