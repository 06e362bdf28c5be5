package domain

import "errors"

var (
	// ErrInvalidInput covers missing identifiers, bad dates and malformed arguments
	// detected before any write.
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	// ErrUpstream marks datastore or provider failures.
	ErrUpstream = errors.New("upstream failure")
	// ErrDuplicate is returned by storage when a unique constraint rejects a row.
	ErrDuplicate = errors.New("duplicate")
)
