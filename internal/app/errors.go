package service

import "errors"

// Sentinel kinds for job errors. Requests failing with the first three are
// rejected before any data is read.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrMissingOrganization = errors.New("organization_id is required")
	ErrUnknownJob          = errors.New("unknown job")
	ErrReadFailed          = errors.New("reading input data failed")

	ErrNotStarted  = errors.New("service not started")
	ErrQueueFull   = errors.New("job queue full")
	ErrRunNotFound = errors.New("run not found")

	// ErrIdempotencyConflict is returned when an idempotency key is reused
	// for a different request.
	ErrIdempotencyConflict = errors.New("idempotency key reused for a different request")
)
