// Package classify decides, per record, whether it is correct, fixable or
// must be removed. Classifiers are pure and never fail.
package classify

import "github.com/okian/reconcile/internal/domain/model"

// Kind is the decision taken for one record.
type Kind int

const (
	// Skip leaves the record untouched.
	Skip Kind = iota
	// Correct sets Field to Target.
	Correct
	// Delete removes the record.
	Delete
)

func (k Kind) String() string {
	switch k {
	case Correct:
		return "correct"
	case Delete:
		return "delete"
	default:
		return "skip"
	}
}

// Reasons attached to verdicts.
const (
	ReasonAlreadyCorrect = "already_correct"
	ReasonUnresolvable   = "unresolvable"
	ReasonMissingField   = "missing_field"
	ReasonOrphaned       = "orphaned"
	ReasonInvalidDate    = "invalid_date"
	ReasonUnpaddedDate   = "unpadded_date"
	ReasonOutOfScope     = "out_of_scope"
	ReasonOrganization   = "organization_match"
	ReasonSentinelTeam   = "sentinel_team"
)

// Verdict is the classification of one record.
type Verdict struct {
	Kind   Kind
	Field  string
	Target any
	Reason string
}

// Classifier maps a normalized record to a verdict.
type Classifier func(model.Record) Verdict

func skip(reason string) Verdict { return Verdict{Kind: Skip, Reason: reason} }

func correct(field string, target any, reason string) Verdict {
	return Verdict{Kind: Correct, Field: field, Target: target, Reason: reason}
}

func remove(reason string) Verdict { return Verdict{Kind: Delete, Reason: reason} }
