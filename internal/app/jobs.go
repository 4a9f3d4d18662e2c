package service

import (
	"context"
	"fmt"

	"github.com/okian/reconcile/internal/domain/classify"
	"github.com/okian/reconcile/internal/domain/index"
	"github.com/okian/reconcile/internal/domain/model"
	"github.com/okian/reconcile/internal/domain/scan"
	"github.com/okian/reconcile/pkg/logger"
	"github.com/okian/reconcile/pkg/metrics"
)

// Registered job names.
const (
	JobBackfillRecordOrg     = "backfill-record-org"
	JobBackfillMetricOrg     = "backfill-metric-org"
	JobDeleteOrphanedRecords = "delete-orphaned-records"
	JobFixRecordDates        = "fix-record-dates"
	JobDeleteOrgRecords      = "delete-org-records"
	JobCleanupUnknownTeam    = "cleanup-unknown-team"
)

// Params are the caller supplied inputs of a run.
type Params struct {
	OrganizationID string `json:"organization_id,omitempty"`
	DryRun         bool   `json:"dry_run,omitempty"`
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Entity      model.Entity `json:"entity"`
	OrgScoped   bool         `json:"org_scoped"`
}

// plan is what a job needs for its primary scan.
type plan struct {
	classifier classify.Classifier
	scanOpts   []scan.Option
}

// job composes a primary scan with the classifier prepared for it.
type job struct {
	JobInfo
	// indexed lists the collections read while preparing the classifier.
	indexed []model.Entity
	// writes lists the fields the job rewrites on its primary collection.
	writes  []string
	prepare func(ctx context.Context, d *Driver, p Params) (plan, error)
}

func (j job) collections() []model.Entity {
	return append([]model.Entity{j.Entity}, j.indexed...)
}

func (d *Driver) registerJobs() {
	for _, j := range []job{
		{
			JobInfo: JobInfo{
				Name:        JobBackfillRecordOrg,
				Description: "Fill missing organization_id on performance records from their athlete",
				Entity:      model.EntityPerformanceRecords,
			},
			indexed: []model.Entity{model.EntityAthletes},
			writes:  []string{model.FieldOrganizationID},
			prepare: func(ctx context.Context, d *Driver, _ Params) (plan, error) {
				athletes, err := d.collect(ctx, model.EntityAthletes)
				if err != nil {
					return plan{}, err
				}
				idx := index.Build(athletes, index.ID, index.StringField(model.FieldOrganizationID), d.indexOpts()...)
				d.reportIndex(ctx, JobBackfillRecordOrg, idx.Len(), idx.Conflicts())
				return plan{classifier: classify.OrgBackfill(idx, model.FieldAthleteID)}, nil
			},
		},
		{
			JobInfo: JobInfo{
				Name:        JobBackfillMetricOrg,
				Description: "Fill missing organization_id on metrics from the records that measure them",
				Entity:      model.EntityMetrics,
			},
			indexed: []model.Entity{model.EntityPerformanceRecords},
			writes:  []string{model.FieldOrganizationID},
			prepare: func(ctx context.Context, d *Driver, _ Params) (plan, error) {
				records, err := d.collect(ctx, model.EntityPerformanceRecords)
				if err != nil {
					return plan{}, err
				}
				idx := index.Build(records,
					index.StringField(model.FieldMetricID),
					index.StringField(model.FieldOrganizationID),
					d.indexOpts()...)
				d.reportIndex(ctx, JobBackfillMetricOrg, idx.Len(), idx.Conflicts())
				return plan{classifier: classify.OrgBackfill(idx, model.FieldID)}, nil
			},
		},
		{
			JobInfo: JobInfo{
				Name:        JobDeleteOrphanedRecords,
				Description: "Delete an organization's performance records whose athlete no longer exists",
				Entity:      model.EntityPerformanceRecords,
				OrgScoped:   true,
			},
			indexed: []model.Entity{model.EntityAthletes},
			prepare: func(ctx context.Context, d *Driver, p Params) (plan, error) {
				where := map[string]any{model.FieldOrganizationID: p.OrganizationID}
				athletes, err := d.store.Filter(ctx, model.EntityAthletes, where)
				if err != nil {
					return plan{}, fmt.Errorf("filter %s: %w", model.EntityAthletes, err)
				}
				ids := index.NewIDSet(athletes)
				d.reportIndex(ctx, JobDeleteOrphanedRecords, len(ids), 0)
				return plan{
					classifier: classify.Orphan(ids),
					scanOpts:   []scan.Option{scan.WithWhere(where)},
				}, nil
			},
		},
		{
			JobInfo: JobInfo{
				Name:        JobFixRecordDates,
				Description: "Delete records with an unparseable recorded_date and zero pad the rest",
				Entity:      model.EntityPerformanceRecords,
			},
			writes: []string{model.FieldRecordedDate},
			prepare: func(_ context.Context, _ *Driver, p Params) (plan, error) {
				return plan{
					classifier: classify.DateValidity(model.FieldRecordedDate),
					scanOpts:   orgFilter(p),
				}, nil
			},
		},
		{
			JobInfo: JobInfo{
				Name:        JobDeleteOrgRecords,
				Description: "Delete every performance record owned by an organization",
				Entity:      model.EntityPerformanceRecords,
				OrgScoped:   true,
			},
			prepare: func(_ context.Context, _ *Driver, p Params) (plan, error) {
				// full scan: legacy rows keep organization_id nested and would
				// escape a store side filter
				return plan{classifier: classify.OrgScoped(p.OrganizationID)}, nil
			},
		},
		{
			JobInfo: JobInfo{
				Name:        JobCleanupUnknownTeam,
				Description: "Remove the unknown team placeholder from athlete team lists",
				Entity:      model.EntityAthletes,
			},
			writes: []string{model.FieldTeams},
			prepare: func(_ context.Context, d *Driver, p Params) (plan, error) {
				return plan{
					classifier: classify.TeamSentinel(d.teamSentinel),
					scanOpts:   orgFilter(p),
				}, nil
			},
		},
	} {
		d.jobs[j.Name] = j
	}
}

// orgFilter narrows optional organization filters on jobs that are not org scoped.
func orgFilter(p Params) []scan.Option {
	if p.OrganizationID == "" {
		return nil
	}
	return []scan.Option{scan.WithWhere(map[string]any{model.FieldOrganizationID: p.OrganizationID})}
}

func (d *Driver) collect(ctx context.Context, entity model.Entity) ([]model.Record, error) {
	return scan.Collect(scan.All(ctx, d.store, entity, d.scanOpts()...))
}

func (d *Driver) reportIndex(ctx context.Context, jobName string, entries, conflicts int) {
	metrics.UpdateIndexEntries(jobName, entries)
	metrics.RecordIndexConflicts(jobName, conflicts)
	if conflicts > 0 {
		d.logger.Warn(ctx, "duplicate index keys with differing values were ignored",
			logger.String("job", jobName),
			logger.Int("conflicts", conflicts),
			logger.String("tie_break", d.tieBreakName()))
	}
}
