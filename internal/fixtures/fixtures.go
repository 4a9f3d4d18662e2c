// Package fixtures generates synthetic athletes, metrics and performance
// records with a controlled share of defects, and seeds them into a store.
package fixtures

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/reconcile/internal/domain/model"
	"github.com/okian/reconcile/pkg/logger"
)

// namespace makes generated ids stable across runs with the same seed.
var namespace = uuid.MustParse("5b0e4c52-4f7d-4d8e-9a43-0f3b4c1d2e6a")

var (
	badDates     = []string{"", "undefined", "null", "2025-13-40", "2025-02-30", "n/a"}
	teamNames    = []string{"hawks", "owls", "wolves", "foxes", "bears"}
	unknownTeams = []string{"unknown", "Unknown", "UNKNOWN"}
)

// Config controls the size and defect mix of a dataset. Ratios apply per
// record and are mutually exclusive, so their sum should stay below 1.
type Config struct {
	Organizations     int
	AthletesPerOrg    int
	MetricsPerOrg     int
	RecordsPerAthlete int

	MissingOrgRatio   float64 // record or metric without organization_id
	OrphanRatio       float64 // record pointing at an athlete that does not exist
	BadDateRatio      float64 // unparseable recorded_date
	UnpaddedDateRatio float64 // valid date without zero padding
	NestedRatio       float64 // legacy row with fields under "data"
	UnknownTeamRatio  float64 // athlete carrying the unknown team placeholder

	Seed uint64
}

// DefaultConfig returns a small dataset with every defect represented.
func DefaultConfig() Config {
	return Config{
		Organizations:     3,
		AthletesPerOrg:    20,
		MetricsPerOrg:     5,
		RecordsPerAthlete: 10,
		MissingOrgRatio:   0.05,
		OrphanRatio:       0.02,
		BadDateRatio:      0.03,
		UnpaddedDateRatio: 0.05,
		NestedRatio:       0.05,
		UnknownTeamRatio:  0.1,
		Seed:              42,
	}
}

// Summary counts what a dataset contains.
type Summary struct {
	Organizations   int            `json:"organizations"`
	Athletes        int            `json:"athletes"`
	Metrics         int            `json:"metrics"`
	Records         int            `json:"records"`
	MissingOrg      int            `json:"missing_org"`
	MetricsNoOrg    int            `json:"metrics_missing_org"`
	Orphans         int            `json:"orphans"`
	BadDates        int            `json:"bad_dates"`
	UnpaddedDates   int            `json:"unpadded_dates"`
	Nested          int            `json:"nested"`
	UnknownTeams    int            `json:"unknown_teams"`
	RecordsPerOrg   map[string]int `json:"records_per_org"`
	OrphansPerOrg   map[string]int `json:"orphans_per_org"`
	OrganizationIDs []string       `json:"organization_ids"`
}

// Dataset is a generated set of rows.
type Dataset struct {
	Athletes []model.Record
	Metrics  []model.Record
	Records  []model.Record
	Summary  Summary
}

// OrgID returns the id of the i-th generated organization.
func OrgID(i int) string { return fmt.Sprintf("org-%02d", i) }

func stableID(kind string, parts ...any) string {
	return uuid.NewSHA1(namespace, []byte(kind+fmt.Sprint(parts...))).String()
}

// Generate builds a dataset. The same Config always yields the same rows.
func Generate(cfg Config) Dataset {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	ds := Dataset{Summary: Summary{
		RecordsPerOrg: map[string]int{},
		OrphansPerOrg: map[string]int{},
	}}

	for o := 0; o < cfg.Organizations; o++ {
		org := OrgID(o)
		ds.Summary.OrganizationIDs = append(ds.Summary.OrganizationIDs, org)

		metricIDs := make([]string, cfg.MetricsPerOrg)
		for m := range metricIDs {
			metricIDs[m] = stableID("metric", o, m)
			metric := model.Metric{ID: metricIDs[m], OrganizationID: org}
			if rng.Float64() < cfg.MissingOrgRatio {
				metric.OrganizationID = ""
				ds.Summary.MetricsNoOrg++
			}
			ds.Metrics = append(ds.Metrics, metric.Record())
		}

		for a := 0; a < cfg.AthletesPerOrg; a++ {
			athlete := model.Athlete{
				ID:             stableID("athlete", o, a),
				OrganizationID: org,
				Teams:          []string{teamNames[rng.IntN(len(teamNames))]},
			}
			if rng.Float64() < cfg.UnknownTeamRatio {
				athlete.Teams = append(athlete.Teams, unknownTeams[rng.IntN(len(unknownTeams))])
				ds.Summary.UnknownTeams++
			}
			ds.Athletes = append(ds.Athletes, athlete.Record())

			for r := 0; r < cfg.RecordsPerAthlete; r++ {
				if len(metricIDs) == 0 {
					break
				}
				ds.Records = append(ds.Records, generateRecord(rng, cfg, &ds.Summary, o, a, r, athlete, metricIDs))
			}
		}
	}

	ds.Summary.Organizations = cfg.Organizations
	ds.Summary.Athletes = len(ds.Athletes)
	ds.Summary.Metrics = len(ds.Metrics)
	ds.Summary.Records = len(ds.Records)
	return ds
}

func generateRecord(rng *rand.Rand, cfg Config, sum *Summary, o, a, r int, athlete model.Athlete, metricIDs []string) model.Record {
	rec := model.PerformanceRecord{
		ID:             stableID("record", o, a, r),
		AthleteID:      athlete.ID,
		MetricID:       metricIDs[rng.IntN(len(metricIDs))],
		OrganizationID: athlete.OrganizationID,
		RecordedDate:   fmt.Sprintf("2025-%02d-%02d", 1+rng.IntN(12), 1+rng.IntN(28)),
		Value:          float64(rng.IntN(10000)) / 100,
	}

	nested := false
	roll := rng.Float64()
	switch {
	case roll < cfg.MissingOrgRatio:
		rec.OrganizationID = ""
		sum.MissingOrg++
	case roll < cfg.MissingOrgRatio+cfg.OrphanRatio:
		rec.AthleteID = stableID("ghost", o, a, r)
		sum.Orphans++
		sum.OrphansPerOrg[athlete.OrganizationID]++
	case roll < cfg.MissingOrgRatio+cfg.OrphanRatio+cfg.BadDateRatio:
		rec.RecordedDate = badDates[rng.IntN(len(badDates))]
		sum.BadDates++
	case roll < cfg.MissingOrgRatio+cfg.OrphanRatio+cfg.BadDateRatio+cfg.UnpaddedDateRatio:
		rec.RecordedDate = fmt.Sprintf("2025-%d-%d", 1+rng.IntN(9), 1+rng.IntN(9))
		sum.UnpaddedDates++
	case roll < cfg.MissingOrgRatio+cfg.OrphanRatio+cfg.BadDateRatio+cfg.UnpaddedDateRatio+cfg.NestedRatio:
		nested = true
		sum.Nested++
	}
	if rec.OrganizationID != "" {
		sum.RecordsPerOrg[rec.OrganizationID]++
	}

	out := rec.Record()
	if nested {
		data := make(map[string]any, len(out.Fields))
		for k, v := range out.Fields {
			if k != model.FieldID {
				data[k] = v
				delete(out.Fields, k)
			}
		}
		out.Fields[model.NestedDataKey] = data
	}
	return out
}

// Creator is the write side a dataset is seeded through.
type Creator interface {
	Create(ctx context.Context, entity model.Entity, rec model.Record) error
}

// Seed writes ds into store using up to workers concurrent writers.
func Seed(ctx context.Context, store Creator, ds Dataset, workers int) error {
	if workers < 1 {
		workers = 1
	}
	log := logger.Get().Named("fixtures")

	for _, batch := range []struct {
		entity model.Entity
		rows   []model.Record
	}{
		{model.EntityAthletes, ds.Athletes},
		{model.EntityMetrics, ds.Metrics},
		{model.EntityPerformanceRecords, ds.Records},
	} {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, rec := range batch.rows {
			g.Go(func() error {
				if err := store.Create(gctx, batch.entity, rec); err != nil {
					return fmt.Errorf("seed %s/%s: %w", batch.entity, rec.ID, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		log.Info(ctx, "seeded entities",
			logger.String("entity", string(batch.entity)),
			logger.Int("count", len(batch.rows)))
	}
	return nil
}
