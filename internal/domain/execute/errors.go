package execute

import "errors"

// ErrRetriesExhausted wraps the last throttling error once MaxAttempts is reached.
var ErrRetriesExhausted = errors.New("retries exhausted")
