// Package index builds key to value lookups from scanned records.
package index

import "github.com/okian/reconcile/internal/domain/model"

// TieBreak decides which value a duplicate key keeps.
type TieBreak int

const (
	// TieBreakFirstSeen keeps the value from the first record in scan order.
	TieBreakFirstSeen TieBreak = iota
	// TieBreakLowestID keeps the value from the record with the lowest id.
	TieBreakLowestID
)

// ParseTieBreak maps a configuration value to a TieBreak.
func ParseTieBreak(s string) (TieBreak, bool) {
	switch s {
	case "", "first":
		return TieBreakFirstSeen, true
	case "lowest_id":
		return TieBreakLowestID, true
	default:
		return TieBreakFirstSeen, false
	}
}

// Option applies a configuration option to Build.
type Option func(*options)

type options struct {
	tieBreak TieBreak
}

// WithTieBreak selects the duplicate key policy.
func WithTieBreak(tb TieBreak) Option {
	return func(o *options) {
		o.tieBreak = tb
	}
}

type entry[V any] struct {
	value V
	id    string
}

// Index maps keys to values derived from a set of records.
// It is built once per job run and not safe for concurrent writes.
type Index[K comparable, V comparable] struct {
	entries   map[K]entry[V]
	conflicts int
}

// Build indexes records. Records for which keyFn or valueFn report false are skipped.
func Build[K comparable, V comparable](
	records []model.Record,
	keyFn func(model.Record) (K, bool),
	valueFn func(model.Record) (V, bool),
	opts ...Option,
) *Index[K, V] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	idx := &Index[K, V]{entries: make(map[K]entry[V], len(records))}
	for _, rec := range records {
		k, ok := keyFn(rec)
		if !ok {
			continue
		}
		v, ok := valueFn(rec)
		if !ok {
			continue
		}

		prev, exists := idx.entries[k]
		if !exists {
			idx.entries[k] = entry[V]{value: v, id: rec.ID}
			continue
		}
		if prev.value != v {
			idx.conflicts++
		}
		if o.tieBreak == TieBreakLowestID && rec.ID < prev.id {
			idx.entries[k] = entry[V]{value: v, id: rec.ID}
		}
	}
	return idx
}

// Lookup returns the value stored for k.
func (i *Index[K, V]) Lookup(k K) (V, bool) {
	e, ok := i.entries[k]
	return e.value, ok
}

// Len returns the number of distinct keys.
func (i *Index[K, V]) Len() int { return len(i.entries) }

// Conflicts returns how many duplicate keys carried a value that differed
// from the one already indexed.
func (i *Index[K, V]) Conflicts() int { return i.conflicts }

// StringField returns a key or value function reading a non-empty string field.
func StringField(field string) func(model.Record) (string, bool) {
	return func(r model.Record) (string, bool) {
		v := r.String(field)
		return v, v != ""
	}
}

// ID reads the record id.
func ID(r model.Record) (string, bool) {
	return r.ID, r.ID != ""
}
