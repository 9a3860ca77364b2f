package campaign

import (
	"context"
	"time"
)

// Store is the narrow persistence contract the campaign engine
// consumes. Implementations must make TransitionStatus a
// read-check-write against the current persisted status, never against
// a status the caller assumed earlier: overlapping dispatcher runs race
// on these rows.
type Store interface {
	// GetCampaign returns the campaign or ErrCampaignNotFound.
	GetCampaign(ctx context.Context, id string) (Campaign, error)

	// TransitionStatus moves the campaign to status to if its current
	// persisted status is one of from and the transition table permits
	// it. Returns ErrInvalidTransition otherwise.
	TransitionStatus(ctx context.Context, id string, from []Status, to Status) error

	// SetScheduledAt records the campaign's due time.
	SetScheduledAt(ctx context.Context, id string, at time.Time) error

	// MarkSent transitions sending → sent and records the completion time.
	MarkSent(ctx context.Context, id string, at time.Time) error

	// SetFailureReason records why a campaign terminally failed.
	SetFailureReason(ctx context.Context, id string, reason string) error

	// ListOverdueScheduled returns campaigns still in scheduled whose
	// due time is at or before the cutoff.
	ListOverdueScheduled(ctx context.Context, cutoff time.Time) ([]Campaign, error)

	// CountRecipients returns the number of distinct deliverable
	// contacts across the given lists.
	CountRecipients(ctx context.Context, listIDs []string) (int, error)

	// ListRecipients pages distinct deliverable contacts across the
	// given lists in a stable order.
	ListRecipients(ctx context.Context, listIDs []string, offset, limit int) ([]Recipient, error)

	// LogSend records one campaign email delivery.
	LogSend(ctx context.Context, rec SendRecord) error
}
