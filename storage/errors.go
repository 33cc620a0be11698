package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a key has no stored value.
	ErrNotFound = errors.New("key not found")
)
