package collection

import "errors"

// ErrNotFound indicates no record with the requested id is stored.
var ErrNotFound = errors.New("not found")

// ErrEmptyID indicates a record without an id was offered to the store.
var ErrEmptyID = errors.New("record has empty id")
