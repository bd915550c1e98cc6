package core

import "time"

const (
	JobRecalculate JobKind = "recalculate"
	JobResync      JobKind = "resync"
)

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	// JobPartial means the batch finished but some dates were not persisted.
	JobPartial JobStatus = "partial"
	JobFailed  JobStatus = "failed"
)

type (
	JobKind string

	JobStatus string

	// RecalcJob is a queued recalculation or resync request.
	RecalcJob struct {
		ID            string    `json:"id"`
		Kind          JobKind   `json:"kind"`
		Start         string    `json:"start"`
		End           string    `json:"end,omitempty"`
		AnchorOpening *string   `json:"anchor_opening,omitempty"`
		Status        JobStatus `json:"status"`
		Error         string    `json:"error,omitempty"`
		CreatedAt     time.Time `json:"created_at"`
		UpdatedAt     time.Time `json:"updated_at"`
	}
)

func (k JobKind) Valid() bool {
	return k == JobRecalculate || k == JobResync
}

// Finished reports whether the job reached a terminal status.
func (s JobStatus) Finished() bool {
	return s == JobDone || s == JobPartial || s == JobFailed
}
