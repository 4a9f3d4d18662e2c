// Package dedupe maps idempotency keys to the job run they created.
package dedupe

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultMaxSize is the number of keys remembered in bounded mode.
const defaultMaxSize = 10000

// Deduper records which run an idempotency key produced, so a retried
// submission returns the existing run instead of starting a new one.
type Deduper interface {
	// Claim atomically binds key to runID if key is unknown.
	// When key was already claimed it returns the bound run id and true.
	Claim(ctx context.Context, key, runID string) (string, bool)

	// Release forgets key so it can be claimed again. Used when the claimed
	// run could not be enqueued.
	Release(ctx context.Context, key string)

	// Lookup returns the run bound to key.
	Lookup(ctx context.Context, key string) (string, bool)

	Size() int64
}

// inMemoryDeduper keeps keys in an LRU in bounded mode and in a plain map
// when maxSize <= 0.
type inMemoryDeduper struct {
	mu      sync.Mutex
	maxSize int
	bounded *lru.Cache[string, string]
	all     map[string]string
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.maxSize > 0 {
		// lru.New only fails for a non-positive size
		d.bounded, _ = lru.New[string, string](d.maxSize)
	} else {
		d.all = make(map[string]string)
	}

	return d
}

// Claim binds key to runID unless it is already bound.
func (d *inMemoryDeduper) Claim(_ context.Context, key, runID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bounded != nil {
		if owner, ok := d.bounded.Get(key); ok {
			return owner, true
		}
		d.bounded.Add(key, runID)
		return runID, false
	}

	if owner, ok := d.all[key]; ok {
		return owner, true
	}
	d.all[key] = runID
	return runID, false
}

// Release forgets key.
func (d *inMemoryDeduper) Release(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bounded != nil {
		d.bounded.Remove(key)
		return
	}
	delete(d.all, key)
}

// Lookup returns the run bound to key without refreshing its recency.
func (d *inMemoryDeduper) Lookup(_ context.Context, key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bounded != nil {
		return d.bounded.Peek(key)
	}
	owner, ok := d.all[key]
	return owner, ok
}

// Size returns the current number of remembered keys.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bounded != nil {
		return int64(d.bounded.Len())
	}
	return int64(len(d.all))
}
