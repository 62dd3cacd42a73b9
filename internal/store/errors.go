package store

import "errors"

// ErrNotFound is returned by batch operations when a referenced record does
// not exist. Single-record lookups return (nil, nil) instead.
var ErrNotFound = errors.New("record not found")

// ErrCycle is returned when a duplicate link would make the duplicate_of
// chain loop back on itself.
var ErrCycle = errors.New("duplicate link would form a cycle")
