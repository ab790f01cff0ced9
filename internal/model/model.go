// Package model defines the records the console works with: jobs from the
// job-tracking backend and items from the inventory backend. Both satisfy
// collection.Record and query.Fielder so they can be stored, filtered and
// mutated generically.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// asString converts a field value to its string form.
func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return formatTime(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(x))

		return b
	default:
		return false
	}
}

func asInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(x))

		return n
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		t, err := time.Parse(time.RFC3339, x)
		if err != nil {
			return time.Time{}
		}

		return t
	default:
		return time.Time{}
	}
}

// formatTime renders t as RFC 3339 in UTC, which sorts lexically. Zero is "".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339)
}
