// Package scan walks an entire entity collection page by page.
package scan

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/okian/reconcile/internal/adapters/repository"
	"github.com/okian/reconcile/internal/domain/model"
	"github.com/okian/reconcile/pkg/logger"
	"github.com/okian/reconcile/pkg/metrics"
)

// DefaultPageSize is the number of rows fetched per store call.
const DefaultPageSize = 5000

type config struct {
	pageSize  int
	sortKey   string
	where     map[string]any
	predicate func(model.Record) bool
	removed   func() int
}

// Lister is the part of repository.Store a scan needs.
type Lister interface {
	List(ctx context.Context, entity model.Entity, q repository.ListQuery) ([]model.Record, error)
}

// All returns a lazy sequence over every row of entity.
//
// Pages are requested with increasing offsets until the store returns a page
// shorter than the page size. With WithRemoved the offset is reduced by the
// rows the consumer deleted, since those no longer occupy a position. Each record is normalized before it is yielded.
// A store error is yielded once, after which the sequence ends. Iterating the
// sequence again restarts from the first page.
func All(ctx context.Context, store Lister, entity model.Entity, opts ...Option) iter.Seq2[model.Record, error] {
	cfg := config{pageSize: DefaultPageSize, sortKey: model.FieldID}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(yield func(model.Record, error) bool) {
		log := logger.Get().Named("scan")
		offset, fetched := 0, 0
		for {
			if err := ctx.Err(); err != nil {
				yield(model.Record{}, err)
				return
			}

			start := time.Now()
			page, err := store.List(ctx, entity, repository.ListQuery{
				SortKey: cfg.sortKey,
				Limit:   cfg.pageSize,
				Offset:  offset,
				Where:   cfg.where,
			})
			took := time.Since(start)
			metrics.RecordPageFetch(string(entity), took.Seconds())
			if err != nil {
				metrics.RecordScanError(string(entity))
				log.Error(ctx, "page fetch failed",
					logger.String("entity", string(entity)),
					logger.Int("offset", offset),
					logger.Error(err))
				yield(model.Record{}, fmt.Errorf("list %s at offset %d: %w", entity, offset, err))
				return
			}

			log.Debug(ctx, "page fetched",
				logger.String("entity", string(entity)),
				logger.Int("offset", offset),
				logger.Int("size", len(page)),
				logger.Duration("took", took))
			metrics.RecordRecordsScanned(string(entity), len(page))

			for _, raw := range page {
				rec := model.Normalize(raw)
				if cfg.predicate != nil && !cfg.predicate(rec) {
					continue
				}
				if !yield(rec, nil) {
					return
				}
			}

			if len(page) < cfg.pageSize {
				return
			}
			fetched += len(page)
			offset = fetched
			if cfg.removed != nil {
				offset = max(fetched-cfg.removed(), 0)
			}
		}
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[model.Record, error]) ([]model.Record, error) {
	var out []model.Record
	for rec, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}
