package classify

import (
	"strings"

	"github.com/okian/reconcile/internal/domain/model"
)

// Resolver looks up the organization that owns a related entity.
type Resolver interface {
	Lookup(key string) (string, bool)
}

// OrgBackfill fills a missing organization_id from the entity referenced by
// foreignKey; pass model.FieldID to resolve by the record's own id. Records whose
// reference cannot be resolved are skipped, never deleted.
func OrgBackfill(idx Resolver, foreignKey string) Classifier {
	return func(r model.Record) Verdict {
		if r.Has(model.FieldOrganizationID) {
			return skip(ReasonAlreadyCorrect)
		}
		ref := r.String(foreignKey)
		if foreignKey == model.FieldID {
			ref = r.ID
		}
		if ref == "" {
			return skip(ReasonMissingField)
		}
		org, ok := idx.Lookup(ref)
		if !ok || org == "" {
			return skip(ReasonUnresolvable)
		}
		return correct(model.FieldOrganizationID, org, ReasonMissingField)
	}
}

// IDs is the membership test used for orphan detection.
type IDs interface {
	Contains(id string) bool
}

// Orphan deletes records whose athlete_id is not among athletes.
func Orphan(athletes IDs) Classifier {
	return func(r model.Record) Verdict {
		if athletes.Contains(r.String(model.FieldAthleteID)) {
			return skip(ReasonAlreadyCorrect)
		}
		return remove(ReasonOrphaned)
	}
}

// DateValidity deletes records whose field is not a calendar date and pads
// valid dates that are missing leading zeros.
func DateValidity(field string) Classifier {
	return func(r model.Record) Verdict {
		raw := r.String(field)
		if _, ok := ParseDate(raw); !ok {
			return remove(ReasonInvalidDate)
		}
		padded := PadDate(strings.TrimSpace(raw))
		if padded == raw {
			return skip(ReasonAlreadyCorrect)
		}
		return correct(field, padded, ReasonUnpaddedDate)
	}
}

// OrgScoped deletes every record owned by orgID. Ownership is read after
// normalization so rows that keep the id under the nested container match too.
func OrgScoped(orgID string) Classifier {
	return func(r model.Record) Verdict {
		if orgID != "" && r.String(model.FieldOrganizationID) == orgID {
			return remove(ReasonOrganization)
		}
		return skip(ReasonOutOfScope)
	}
}

// TeamSentinel strips every case variant of sentinel from an athlete's teams.
// The update carries the whole filtered list.
func TeamSentinel(sentinel string) Classifier {
	return func(r model.Record) Verdict {
		teams := r.Strings(model.FieldTeams)
		if len(teams) == 0 {
			return skip(ReasonAlreadyCorrect)
		}
		kept := make([]string, 0, len(teams))
		for _, t := range teams {
			if strings.EqualFold(strings.TrimSpace(t), sentinel) {
				continue
			}
			kept = append(kept, t)
		}
		if len(kept) == len(teams) {
			return skip(ReasonAlreadyCorrect)
		}
		return correct(model.FieldTeams, kept, ReasonSentinelTeam)
	}
}
