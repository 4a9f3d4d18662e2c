package model

// Entity names a collection in the store.
type Entity string

// Collections touched by reconciliation jobs.
const (
	EntityPerformanceRecords Entity = "performance_records"
	EntityAthletes           Entity = "athletes"
	EntityMetrics            Entity = "metrics"
)

// Field names shared by the collections.
const (
	FieldID             = "id"
	FieldAthleteID      = "athlete_id"
	FieldMetricID       = "metric_id"
	FieldOrganizationID = "organization_id"
	FieldRecordedDate   = "recorded_date"
	FieldValue          = "value"
	FieldTeams          = "teams"
)

// PerformanceRecord is one time-series measurement for an athlete.
type PerformanceRecord struct {
	ID             string
	AthleteID      string
	MetricID       string
	OrganizationID string
	RecordedDate   string
	Value          float64
}

// Athlete is read for inference; only Teams is ever mutated.
type Athlete struct {
	ID             string
	OrganizationID string
	Teams          []string
}

// Metric is the definition a performance record measures.
type Metric struct {
	ID             string
	OrganizationID string
}

// PerformanceRecordFrom reads a normalized record.
func PerformanceRecordFrom(r Record) PerformanceRecord {
	v, _ := r.Float(FieldValue)
	return PerformanceRecord{
		ID:             r.ID,
		AthleteID:      r.String(FieldAthleteID),
		MetricID:       r.String(FieldMetricID),
		OrganizationID: r.String(FieldOrganizationID),
		RecordedDate:   r.String(FieldRecordedDate),
		Value:          v,
	}
}

// Record converts back to the store shape.
func (p PerformanceRecord) Record() Record {
	fields := map[string]any{
		FieldID:           p.ID,
		FieldAthleteID:    p.AthleteID,
		FieldMetricID:     p.MetricID,
		FieldRecordedDate: p.RecordedDate,
		FieldValue:        p.Value,
	}
	if p.OrganizationID != "" {
		fields[FieldOrganizationID] = p.OrganizationID
	}
	return Record{ID: p.ID, Fields: fields}
}

// AthleteFrom reads a normalized record.
func AthleteFrom(r Record) Athlete {
	return Athlete{
		ID:             r.ID,
		OrganizationID: r.String(FieldOrganizationID),
		Teams:          r.Strings(FieldTeams),
	}
}

// Record converts back to the store shape.
func (a Athlete) Record() Record {
	fields := map[string]any{FieldID: a.ID}
	if a.OrganizationID != "" {
		fields[FieldOrganizationID] = a.OrganizationID
	}
	if a.Teams != nil {
		teams := make([]any, len(a.Teams))
		for i, t := range a.Teams {
			teams[i] = t
		}
		fields[FieldTeams] = teams
	}
	return Record{ID: a.ID, Fields: fields}
}

// MetricFrom reads a normalized record.
func MetricFrom(r Record) Metric {
	return Metric{ID: r.ID, OrganizationID: r.String(FieldOrganizationID)}
}

// Record converts back to the store shape.
func (m Metric) Record() Record {
	fields := map[string]any{FieldID: m.ID}
	if m.OrganizationID != "" {
		fields[FieldOrganizationID] = m.OrganizationID
	}
	return Record{ID: m.ID, Fields: fields}
}
