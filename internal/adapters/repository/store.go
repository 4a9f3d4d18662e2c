// Package repository defines the entity store contract consumed by reconciliation
// jobs, its error taxonomy, and an in-memory implementation.
package repository

import (
	"context"

	"github.com/okian/reconcile/internal/domain/model"
)

// ListQuery selects one page of an entity collection.
type ListQuery struct {
	// SortKey orders the collection; ties are broken by id so pages are stable.
	SortKey string
	// Limit is the page size; Offset the number of rows to skip.
	Limit  int
	Offset int
	// Where restricts the page to rows whose direct fields equal the given values.
	Where map[string]any
}

// Store provides access to the externally owned entity collections.
//
// Implementations must report rate limiting or lock contention as ErrThrottled
// so callers can retry; every other error is treated as permanent.
type Store interface {
	// List returns one page of entity ordered by q.SortKey then id.
	List(ctx context.Context, entity model.Entity, q ListQuery) ([]model.Record, error)

	// Filter returns every row of entity whose direct fields match where exactly.
	Filter(ctx context.Context, entity model.Entity, where map[string]any) ([]model.Record, error)

	// Update merges fields into the row identified by id.
	// Returns ErrNotFound if the row does not exist.
	Update(ctx context.Context, entity model.Entity, id string, fields map[string]any) error

	// Delete removes the row identified by id.
	// Returns ErrNotFound if the row does not exist.
	Delete(ctx context.Context, entity model.Entity, id string) error

	// Create inserts a new row. Returns ErrConflict if the id is taken.
	Create(ctx context.Context, entity model.Entity, rec model.Record) error
}
