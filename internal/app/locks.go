package service

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/okian/reconcile/internal/domain/model"
)

// collectionLocks serializes runs that share a collection. Scans page by
// offset, so rows deleted by one run would shift the pages of another.
type collectionLocks struct {
	mu    sync.Mutex
	slots map[model.Entity]*semaphore.Weighted
}

func newCollectionLocks() *collectionLocks {
	return &collectionLocks{slots: make(map[model.Entity]*semaphore.Weighted)}
}

func (l *collectionLocks) slot(e model.Entity) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.slots[e]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.slots[e] = sem
	}
	return sem
}

// acquire locks every entity in sorted order and returns the release func.
// It gives up with ctx.Err() when ctx ends first.
func (l *collectionLocks) acquire(ctx context.Context, entities []model.Entity) (func(), error) {
	sorted := slices.Clone(entities)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]*semaphore.Weighted, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release(1)
		}
	}
	for _, e := range sorted {
		sem := l.slot(e)
		if err := sem.Acquire(ctx, 1); err != nil {
			release()
			return nil, err
		}
		held = append(held, sem)
	}
	return release, nil
}
