package query

import (
	"errors"
	"strings"
)

// Problems reported by [Translator.Validate] and logged by [Translator.Translate].
var (
	ErrReservedKey    = errors.New("reserved filter key")
	ErrInvalidFieldID = errors.New("invalid field id")
	ErrBlankValue     = errors.New("blank filter value")
	ErrInvalidRange   = errors.New("invalid range")
	ErrInvalidSort    = errors.New("invalid sort")
)

// ValidationError lists every problem found in a [FilterState].
//
// Use [errors.Is] with the sentinels above to test for a specific problem.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return "invalid filter state"
	}

	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Error())
	}

	return "invalid filter state: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual problems to [errors.Is] and [errors.As].
func (e *ValidationError) Unwrap() []error {
	if e == nil {
		return nil
	}

	return e.Problems
}
