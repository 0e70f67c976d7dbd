package storage

import "errors"

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned when a write is rejected before touching
	// the database (empty content, unknown source, self-link, and so on).
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflictRetry is returned when a unique-constraint race exceeded
	// its retry budget. Callers may treat it as transient.
	ErrConflictRetry = errors.New("conflict retry budget exhausted")
)
