package domain

import "errors"

// Common errors
var (
	// ErrNotFound is returned when a scheduled item does not exist
	ErrNotFound = errors.New("scheduled item not found")

	// ErrAlreadyScheduled is returned when the source content already has an
	// active (non-cancelled) scheduled item
	ErrAlreadyScheduled = errors.New("content is already actively scheduled")

	// ErrInvalidRequest is returned when a schedule request fails validation
	ErrInvalidRequest = errors.New("invalid schedule request")

	// ErrInvalidTransition is returned when a status change violates the
	// item state machine
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidTimezone is returned when a preference timezone cannot be loaded
	ErrInvalidTimezone = errors.New("invalid timezone")
)
