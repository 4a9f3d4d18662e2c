package execute

import "time"

// Option applies a configuration option to the Executor.
type Option func(*Executor)

// WithPolicy sets the retry policy.
func WithPolicy(p Policy) Option {
	return func(e *Executor) {
		e.policy = p
	}
}

// WithPacing sleeps delay after every n processed records. n <= 0 disables pacing.
func WithPacing(n int, delay time.Duration) Option {
	return func(e *Executor) {
		e.paceEvery = n
		e.paceDelay = delay
	}
}

// WithDryRun reports outcomes without calling the store.
func WithDryRun(dry bool) Option {
	return func(e *Executor) {
		e.dryRun = dry
	}
}

// WithJob labels metrics and logs with the job name.
func WithJob(name string) Option {
	return func(e *Executor) {
		if name != "" {
			e.job = name
		}
	}
}
