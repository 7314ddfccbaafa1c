package domain

import "errors"

// Domain rule violations. ports re-exports these for adapters.
var (
	// ErrValidation marks malformed input rejected at construction.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyClosed is returned when closing a position that is not open.
	ErrAlreadyClosed = errors.New("position is already closed")
)
