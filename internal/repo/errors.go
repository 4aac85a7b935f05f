package repo

import "errors"

var (
	// ErrNotFound is returned when no live record matches.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates that a record already exists for the given
	// (source, key) pair.
	ErrDuplicate = errors.New("duplicate")
)
