package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/okian/reconcile/internal/domain/model"
)

// MemoryStore is an in-memory Store. It backs the default configuration,
// tests and local dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[model.Entity]map[string]model.Record
	fault FaultFunc
	calls sync.Map // Op -> *atomic.Int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{data: make(map[model.Entity]map[string]model.Record)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFault replaces the fault injector. Pass nil to clear it.
func (s *MemoryStore) SetFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// Calls returns how many times op was invoked, including failed calls.
func (s *MemoryStore) Calls(op Op) int64 {
	v, ok := s.calls.Load(op)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// ResetCalls zeroes every call counter.
func (s *MemoryStore) ResetCalls() {
	s.calls.Range(func(k, _ any) bool {
		s.calls.Delete(k)
		return true
	})
}

// Count returns the number of rows in entity.
func (s *MemoryStore) Count(entity model.Entity) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[entity])
}

// Get returns a copy of one row.
func (s *MemoryStore) Get(entity model.Entity, id string) (model.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[entity][id]
	if !ok {
		return model.Record{}, false
	}
	return cloneRecord(rec), true
}

func (s *MemoryStore) begin(op Op, entity model.Entity, id string) error {
	v, _ := s.calls.LoadOrStore(op, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
	if s.fault != nil {
		return s.fault(op, entity, id)
	}
	return nil
}

// List returns one page of entity ordered by q.SortKey then id.
func (s *MemoryStore) List(ctx context.Context, entity model.Entity, q ListQuery) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Limit <= 0 || q.Offset < 0 {
		return nil, fmt.Errorf("%w: limit %d offset %d", ErrInvalid, q.Limit, q.Offset)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.begin(OpList, entity, ""); err != nil {
		return nil, err
	}

	rows := s.matching(entity, q.Where)
	sortRecords(rows, q.SortKey)

	if q.Offset >= len(rows) {
		return []model.Record{}, nil
	}
	end := q.Offset + q.Limit
	if end > len(rows) {
		end = len(rows)
	}
	page := make([]model.Record, 0, end-q.Offset)
	for _, rec := range rows[q.Offset:end] {
		page = append(page, cloneRecord(rec))
	}
	return page, nil
}

// Filter returns every row of entity whose direct fields match where exactly.
func (s *MemoryStore) Filter(ctx context.Context, entity model.Entity, where map[string]any) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.begin(OpFilter, entity, ""); err != nil {
		return nil, err
	}

	rows := s.matching(entity, where)
	sortRecords(rows, model.FieldID)
	out := make([]model.Record, len(rows))
	for i, rec := range rows {
		out[i] = cloneRecord(rec)
	}
	return out, nil
}

// Update merges fields into the row identified by id.
func (s *MemoryStore) Update(ctx context.Context, entity model.Entity, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpUpdate, entity, id); err != nil {
		return err
	}

	rec, ok := s.data[entity][id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, entity, id)
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	s.data[entity][id] = rec
	return nil
}

// Delete removes the row identified by id.
func (s *MemoryStore) Delete(ctx context.Context, entity model.Entity, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpDelete, entity, id); err != nil {
		return err
	}

	if _, ok := s.data[entity][id]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, entity, id)
	}
	delete(s.data[entity], id)
	return nil
}

// Create inserts a new row.
func (s *MemoryStore) Create(ctx context.Context, entity model.Entity, rec model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpCreate, entity, rec.ID); err != nil {
		return err
	}

	if s.data[entity] == nil {
		s.data[entity] = make(map[string]model.Record)
	}
	if _, ok := s.data[entity][rec.ID]; ok {
		return fmt.Errorf("%w: %s/%s", ErrConflict, entity, rec.ID)
	}
	rec = cloneRecord(rec)
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	rec.Fields[model.FieldID] = rec.ID
	s.data[entity][rec.ID] = rec
	return nil
}

// matching must be called with s.mu held.
func (s *MemoryStore) matching(entity model.Entity, where map[string]any) []model.Record {
	rows := make([]model.Record, 0, len(s.data[entity]))
	for _, rec := range s.data[entity] {
		if Matches(rec, where) {
			rows = append(rows, rec)
		}
	}
	return rows
}

// Matches reports whether rec's direct fields equal every value in where.
func Matches(rec model.Record, where map[string]any) bool {
	for k, want := range where {
		got, ok := rec.Fields[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func sortRecords(rows []model.Record, key string) {
	if key == "" {
		key = model.FieldID
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].String(key), rows[j].String(key)
		if key == model.FieldID {
			a, b = rows[i].ID, rows[j].ID
		}
		if a != b {
			return a < b
		}
		return rows[i].ID < rows[j].ID
	})
}

func cloneRecord(rec model.Record) model.Record {
	out := model.Record{ID: rec.ID, Fields: make(map[string]any, len(rec.Fields))}
	for k, v := range rec.Fields {
		out.Fields[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, vv := range x {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, vv := range x {
			s[i] = cloneValue(vv)
		}
		return s
	case []string:
		s := make([]string, len(x))
		copy(s, x)
		return s
	default:
		return v
	}
}
