package delayq

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Well-known logical queue names used by the delivery engines.
const (
	QueueCampaignSends     = "campaign-sends"
	QueueCampaignScheduler = "campaign-scheduler"
	QueueSequenceSteps     = "sequence-steps"
)

// Job is a unit of deferred work. The queue treats Data as opaque JSON;
// only dispatch handlers interpret it. Timestamps are epoch milliseconds
// to keep the wire shape language-neutral.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Data        json.RawMessage `json:"data,omitempty"`
	EnqueuedAt  int64           `json:"enqueued_at"`
	ReadyAt     int64           `json:"ready_at,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
}

// Delayed reports whether the job was enqueued into the delayed tier.
func (j Job) Delayed() bool {
	return j.ReadyAt > j.EnqueuedAt
}

// Unmarshal decodes the job payload into v.
func (j Job) Unmarshal(v any) error {
	if len(j.Data) == 0 {
		return ErrEmptyPayload
	}
	return json.Unmarshal(j.Data, v)
}

// jobIDNamespace scopes deterministic job IDs to this package.
var jobIDNamespace = uuid.MustParse("9f2dcb0a-54c1-4aa8-8d1e-3b1a7e6f0c42")

// DeterministicID derives a stable job ID from the given parts. Enqueueing
// the same logical work twice with a deterministic ID lets the store
// de-duplicate instead of producing double effective work.
func DeterministicID(parts ...string) string {
	return uuid.NewSHA1(jobIDNamespace, []byte(strings.Join(parts, "/"))).String()
}

// NewID returns a random job ID.
func NewID() string {
	return uuid.NewString()
}
