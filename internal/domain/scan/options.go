package scan

import "github.com/okian/reconcile/internal/domain/model"

// Option applies a configuration option to a scan.
type Option func(*config)

// WithPageSize sets the number of rows requested per List call.
func WithPageSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithSortKey sets the field the store orders pages by.
func WithSortKey(key string) Option {
	return func(c *config) {
		if key != "" {
			c.sortKey = key
		}
	}
}

// WithWhere restricts the scan to rows whose direct fields equal where.
func WithWhere(where map[string]any) Option {
	return func(c *config) {
		c.where = where
	}
}

// WithPredicate drops normalized records for which keep returns false.
// Filtered rows still count as fetched for paging purposes.
func WithPredicate(keep func(model.Record) bool) Option {
	return func(c *config) {
		c.predicate = keep
	}
}

// WithRemoved lets the caller report how many yielded rows it has deleted.
// Later pages start that many rows earlier so the shifted rows are not skipped.
func WithRemoved(removed func() int) Option {
	return func(c *config) {
		c.removed = removed
	}
}
