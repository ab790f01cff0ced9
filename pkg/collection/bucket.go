package collection

import (
	"fmt"
	"slices"
)

// Unassigned is the bucket of records whose bucket key is empty.
const Unassigned = "Unassigned"

// Bucket is one column of a board view.
type Bucket[T any] struct {
	Key   string
	Items []T
}

// ByBucket groups records by keyFn, preserving the relative order of records.
//
// Declared columns come first, in the given order, even when empty. Keys not
// declared follow in first-seen order. The result is rebuilt from scratch on
// every call; a record whose id was already placed is skipped, so no id can
// appear in two buckets.
func ByBucket[T Record[T]](records []T, keyFn func(T) string, columns ...string) []Bucket[T] {
	index := make(map[string]int, len(columns))
	buckets := make([]Bucket[T], 0, len(columns)+1)

	for _, col := range columns {
		if _, dup := index[col]; dup {
			continue
		}

		index[col] = len(buckets)
		buckets = append(buckets, Bucket[T]{Key: col})
	}

	placed := make(map[string]struct{}, len(records))

	for _, rec := range records {
		id := rec.EntityID()
		if _, dup := placed[id]; dup {
			continue
		}

		placed[id] = struct{}{}

		key := keyFn(rec)
		if key == "" {
			key = Unassigned
		}

		at, ok := index[key]
		if !ok {
			at = len(buckets)
			index[key] = at
			buckets = append(buckets, Bucket[T]{Key: key})
		}

		buckets[at].Items = append(buckets[at].Items, rec)
	}

	return buckets
}

// FieldKey returns a bucket key function reading field as a string.
func FieldKey[T Record[T]](field string) func(T) string {
	return func(rec T) string {
		v, ok := rec.Field(field)
		if !ok || v == nil {
			return ""
		}

		if s, isString := v.(string); isString {
			return s
		}

		return fmt.Sprint(v)
	}
}

// Buckets groups the current contents of the store. See [ByBucket].
func (s *Store[T]) Buckets(keyFn func(T) string, columns ...string) []Bucket[T] {
	return ByBucket(s.All(), keyFn, columns...)
}

// BucketOf returns the key of the bucket holding id, or "" when id is not stored.
func BucketOf[T Record[T]](buckets []Bucket[T], id string) string {
	for _, b := range buckets {
		if slices.ContainsFunc(b.Items, func(rec T) bool { return rec.EntityID() == id }) {
			return b.Key
		}
	}

	return ""
}
