package repository

import "errors"

// Sentinel kinds for store errors.
var (
	// ErrThrottled marks a transient rate-limit or contention failure; retrying may succeed.
	ErrThrottled = errors.New("store throttled")
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("record already exists")
	ErrInvalid   = errors.New("invalid store request")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrThrottled)
}
