// Package sqlite implements repository.Store on a single SQLite file holding
// every entity as JSON documents.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/okian/reconcile/internal/adapters/repository"
	"github.com/okian/reconcile/internal/domain/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
  entity TEXT NOT NULL,
  id TEXT NOT NULL,
  doc TEXT NOT NULL,
  PRIMARY KEY (entity, id)
);`

// Store is a repository.Store backed by modernc.org/sqlite.
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

// Open creates the file if needed and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// each connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := initDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initDB(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 250",
		schemaSQL,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// List returns one page of entity ordered by q.SortKey then id.
func (s *Store) List(ctx context.Context, entity model.Entity, q repository.ListQuery) ([]model.Record, error) {
	if err := repository.ValidateQuery(q); err != nil {
		return nil, err
	}
	query := strings.Builder{}
	query.WriteString("SELECT id, doc FROM records WHERE entity = ?")
	args := []any{string(entity)}
	addFilters(&query, &args, q.Where)
	if q.SortKey == "" || q.SortKey == model.FieldID {
		query.WriteString(" ORDER BY id")
	} else {
		query.WriteString(" ORDER BY json_extract(doc, ?), id")
		args = append(args, "$."+q.SortKey)
	}
	query.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, q.Limit, q.Offset)
	return s.query(ctx, query.String(), args...)
}

// Filter returns every row of entity whose direct fields match where exactly.
func (s *Store) Filter(ctx context.Context, entity model.Entity, where map[string]any) ([]model.Record, error) {
	if err := repository.ValidateWhere(where); err != nil {
		return nil, err
	}
	query := strings.Builder{}
	query.WriteString("SELECT id, doc FROM records WHERE entity = ?")
	args := []any{string(entity)}
	addFilters(&query, &args, where)
	query.WriteString(" ORDER BY id")
	return s.query(ctx, query.String(), args...)
}

// Update merges fields into the stored document.
func (s *Store) Update(ctx context.Context, entity model.Entity, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: encode fields: %v", repository.ErrInvalid, err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE records SET doc = json_patch(doc, ?) WHERE entity = ? AND id = ?",
		string(patch), string(entity), id)
	if err != nil {
		return classify(err)
	}
	return expectRow(res, entity, id)
}

// Delete removes the row identified by id.
func (s *Store) Delete(ctx context.Context, entity model.Entity, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE entity = ? AND id = ?", string(entity), id)
	if err != nil {
		return classify(err)
	}
	return expectRow(res, entity, id)
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
	_, err = s.db.ExecContext(ctx, "INSERT INTO records (entity, id, doc) VALUES (?, ?, ?)",
		string(entity), rec.ID, string(doc))
	if err != nil {
		var se *sqlitedrv.Error
		if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return fmt.Errorf("%w: %s/%s", repository.ErrConflict, entity, rec.ID)
		}
		return classify(err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []model.Record{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, classify(err)
		}
		fields := map[string]any{}
		if err := json.Unmarshal([]byte(doc), &fields); err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		out = append(out, model.Record{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func addFilters(query *strings.Builder, args *[]any, where map[string]any) {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		query.WriteString(" AND CAST(json_extract(doc, ?) AS TEXT) = ?")
		*args = append(*args, "$."+k, fmt.Sprint(where[k]))
	}
}

func expectRow(res sql.Result, entity model.Entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", repository.ErrNotFound, entity, id)
	}
	return nil
}

// classify maps lock contention to repository.ErrThrottled.
func classify(err error) error {
	var se *sqlitedrv.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", repository.ErrThrottled, err)
		}
	}
	return err
}
