package model

import "time"

// JobRequest asks for one named job to run. It flows through the async queue.
type JobRequest struct {
	RunID          string    // assigned at submission, used to look the run up later
	Job            string    // registered job name, e.g. "fix-record-dates"
	OrganizationID string    // required by organization scoped jobs
	DryRun         bool      // classify and count without mutating
	Principal      string    // caller identity, checked by the authorizer
	SubmittedAt    time.Time // when the request was accepted
}
