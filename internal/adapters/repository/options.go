package repository

import "github.com/okian/reconcile/internal/domain/model"

// Op names a store operation, used for fault injection and call accounting.
type Op string

// Store operations.
const (
	OpList   Op = "list"
	OpFilter Op = "filter"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpCreate Op = "create"
)

// FaultFunc may return an error to fail an operation before it touches data.
// id is empty for list and filter calls.
type FaultFunc func(op Op, entity model.Entity, id string) error

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithFault installs a fault injector.
func WithFault(fn FaultFunc) Option {
	return func(s *MemoryStore) {
		s.fault = fn
	}
}
