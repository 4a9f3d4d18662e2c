package execute

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/reconcile/internal/adapters/repository"
	"github.com/okian/reconcile/pkg/metrics"
)

// Default retry settings.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 30 * time.Second
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy retries store calls that report throttling.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Sleep       Sleeper
}

// DefaultPolicy returns the default retry settings.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Sleep:       Sleep,
	}
}

// Delay returns the wait before retry number attempt (1 based): base * 2^(attempt-1), capped.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, fails permanently or MaxAttempts calls were made.
// It returns the number of calls made.
func (p Policy) Do(ctx context.Context, op string, fn func(context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !repository.IsTransient(err) {
			return attempt, err
		}
		metrics.RecordThrottle(op)
		if attempt == maxAttempts {
			break
		}
		if serr := sleep(ctx, p.Delay(attempt)); serr != nil {
			return attempt, fmt.Errorf("%s: %w", op, serr)
		}
		metrics.RecordRetry(op)
	}
	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxAttempts, err)
}
