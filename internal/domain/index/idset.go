package index

import "github.com/okian/reconcile/internal/domain/model"

// IDSet is a set of record ids.
type IDSet map[string]struct{}

// NewIDSet collects the ids of records.
func NewIDSet(records []model.Record) IDSet {
	s := make(IDSet, len(records))
	for _, r := range records {
		if r.ID != "" {
			s[r.ID] = struct{}{}
		}
	}
	return s
}

// Contains reports whether id is in the set.
func (s IDSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}
