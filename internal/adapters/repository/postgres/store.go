// Package postgres implements repository.Store on PostgreSQL, keeping every
// entity as jsonb documents in one table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/reconcile/internal/adapters/repository"
	"github.com/okian/reconcile/internal/domain/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
  entity TEXT NOT NULL,
  id TEXT NOT NULL,
  doc JSONB NOT NULL,
  PRIMARY KEY (entity, id)
);`

// SQLSTATE codes the server uses for contention and overload.
var throttleCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"53300": {}, // too_many_connections
	"55P03": {}, // lock_not_available
	"57P03": {}, // cannot_connect_now
}

const uniqueViolation = "23505"

// Store is a repository.Store backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// List returns one page of entity ordered by q.SortKey then id.
func (s *Store) List(ctx context.Context, entity model.Entity, q repository.ListQuery) ([]model.Record, error) {
	if err := repository.ValidateQuery(q); err != nil {
		return nil, err
	}
	b := newBuilder(entity)
	b.where(q.Where)
	if q.SortKey == "" || q.SortKey == model.FieldID {
		b.sql.WriteString(" ORDER BY id")
	} else {
		b.sql.WriteString(" ORDER BY doc->>" + b.arg(q.SortKey) + ", id")
	}
	b.sql.WriteString(" LIMIT " + b.arg(q.Limit) + " OFFSET " + b.arg(q.Offset))
	return s.query(ctx, b)
}

// Filter returns every row of entity whose direct fields match where exactly.
func (s *Store) Filter(ctx context.Context, entity model.Entity, where map[string]any) ([]model.Record, error) {
	if err := repository.ValidateWhere(where); err != nil {
		return nil, err
	}
	b := newBuilder(entity)
	b.where(where)
	b.sql.WriteString(" ORDER BY id")
	return s.query(ctx, b)
}

// Update merges fields into the stored document.
func (s *Store) Update(ctx context.Context, entity model.Entity, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: encode fields: %v", repository.ErrInvalid, err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE records SET doc = doc || $1::jsonb WHERE entity = $2 AND id = $3`,
		string(patch), string(entity), id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", repository.ErrNotFound, entity, id)
	}
	return nil
}

// Delete removes the row identified by id.
func (s *Store) Delete(ctx context.Context, entity model.Entity, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE entity = $1 AND id = $2`, string(entity), id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", repository.ErrNotFound, entity, id)
	}
	return nil
}

// Create inserts a new document.
func (s *Store) Create(ctx context.Context, entity model.Entity, rec model.Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("%w: empty id", repository.ErrInvalid)
	}
	fields := make(map[string]any, len(rec.Fields)+1)
	for k, v := range rec.Fields {
		fields[k] = v
	}
	fields[model.FieldID] = rec.ID
	doc, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", repository.ErrInvalid, err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO records (entity, id, doc) VALUES ($1, $2, $3::jsonb)`,
		string(entity), rec.ID, string(doc))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s/%s", repository.ErrConflict, entity, rec.ID)
		}
		return classify(err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, b *builder) ([]model.Record, error) {
	rows, err := s.pool.Query(ctx, b.sql.String(), b.args...)
	if err != nil {
		return nil, classify(err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Record, error) {
		var id string
		var doc []byte
		if err := row.Scan(&id, &doc); err != nil {
			return model.Record{}, err
		}
		fields := map[string]any{}
		if err := json.Unmarshal(doc, &fields); err != nil {
			return model.Record{}, fmt.Errorf("decode %s: %w", id, err)
		}
		return model.Record{ID: id, Fields: fields}, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if out == nil {
		out = []model.Record{}
	}
	return out, nil
}

type builder struct {
	sql  strings.Builder
	args []any
}

func newBuilder(entity model.Entity) *builder {
	b := &builder{}
	b.sql.WriteString("SELECT id, doc::text FROM records WHERE entity = " + b.arg(string(entity)))
	return b
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *builder) where(where map[string]any) {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.sql.WriteString(" AND doc->>" + b.arg(k) + " = " + b.arg(fmt.Sprint(where[k])))
	}
}

// IsThrottle reports whether err carries a contention or overload SQLSTATE.
func IsThrottle(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	_, ok := throttleCodes[pgErr.Code]
	return ok
}

func classify(err error) error {
	if IsThrottle(err) {
		return fmt.Errorf("%w: %v", repository.ErrThrottled, err)
	}
	return err
}
