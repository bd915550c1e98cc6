package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"saldo/internal/core"
)

// RecalculationJobMessage carries the job id plus enough of the request to
// run it even if the job row is gone.
type RecalculationJobMessage struct {
	JobID         string       `json:"job_id"`
	Kind          core.JobKind `json:"kind"`
	Start         string       `json:"start"`
	End           string       `json:"end,omitempty"`
	AnchorOpening *string      `json:"anchor_opening,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// NewRecalculationJobMessage builds the message for a stored job.
func NewRecalculationJobMessage(job core.RecalcJob) *RecalculationJobMessage {
	return &RecalculationJobMessage{
		JobID:         job.ID,
		Kind:          job.Kind,
		Start:         job.Start,
		End:           job.End,
		AnchorOpening: job.AnchorOpening,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecalculationJobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecalculationJobMessageFromJSON decodes and checks a message.
func RecalculationJobMessageFromJSON(data []byte) (*RecalculationJobMessage, error) {
	var msg RecalculationJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.JobID == "" {
		return nil, fmt.Errorf("message has no job id")
	}
	if !msg.Kind.Valid() {
		return nil, fmt.Errorf("unknown job kind %q", msg.Kind)
	}
	return &msg, nil
}

// Job converts the message back into a job request.
func (m *RecalculationJobMessage) Job() core.RecalcJob {
	return core.RecalcJob{
		ID:            m.JobID,
		Kind:          m.Kind,
		Start:         m.Start,
		End:           m.End,
		AnchorOpening: m.AnchorOpening,
		Status:        core.JobPending,
	}
}
