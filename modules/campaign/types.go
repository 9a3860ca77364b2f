package campaign

import "time"

// Status is the campaign lifecycle state. Transitions are validated
// against the transition table below and persisted with a
// read-check-write so concurrent dispatcher runs cannot both win.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusQueued    Status = "queued"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusPaused    Status = "paused"
	StatusFailed    Status = "failed"
)

// transitions lists the allowed next states per current state. Sent is
// terminal. Failed campaigns can be resumed back to queued.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusScheduled, StatusQueued},
	StatusScheduled: {StatusScheduled, StatusQueued},
	StatusQueued:    {StatusSending, StatusPaused},
	StatusSending:   {StatusSent, StatusPaused},
	StatusPaused:    {StatusQueued},
	StatusFailed:    {StatusQueued},
}

// CanTransition reports whether from → to is a legal status change.
// Any non-terminal state may fail.
func CanTransition(from, to Status) bool {
	if to == StatusFailed {
		return from != StatusSent && from != StatusFailed
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status permits no further transitions
// other than operator intervention.
func (s Status) Terminal() bool { return s == StatusSent }

// Campaign is a one-shot email blast to the members of one or more
// contact lists.
type Campaign struct {
	ID             string
	BrandID        string
	Status         Status
	Subject        string
	FromName       string
	FromEmail      string
	ReplyTo        string
	BodyHTML       string
	ContactListIDs []string
	ScheduledAt    *time.Time
	SentAt         *time.Time
	FailureReason  string
}

// Recipient is one deliverable address resolved from a campaign's
// contact lists.
type Recipient struct {
	ContactID string
	Email     string
}

// SendRecord logs one delivered (or attempted) campaign email.
type SendRecord struct {
	CampaignID string
	ContactID  string
	Email      string
	MessageID  string
	SentAt     time.Time
}
