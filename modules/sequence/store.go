package sequence

import (
	"context"
	"time"
)

// Store is the narrow persistence contract the sequence engine
// consumes. Enrollment mutations are read-check-write against the
// current persisted status; CreateEnrollment enforces the one
// enrollment per (sequence, contact) invariant at the store level.
type Store interface {
	// GetSequence returns the sequence or ErrSequenceNotFound.
	GetSequence(ctx context.Context, id string) (Sequence, error)

	// ListSteps returns the sequence's steps in ascending order index.
	ListSteps(ctx context.Context, sequenceID string) ([]Step, error)

	// ListTriggerListIDs returns the distinct contact list IDs
	// referenced by active list-triggered sequences.
	ListTriggerListIDs(ctx context.Context) ([]string, error)

	// ListSequencesByTriggerList returns active sequences whose trigger
	// targets the given list.
	ListSequencesByTriggerList(ctx context.Context, listID string) ([]Sequence, error)

	// GetEnrollment returns the enrollment or ErrEnrollmentNotFound.
	GetEnrollment(ctx context.Context, id string) (Enrollment, error)

	// CreateEnrollment inserts a new enrollment, or returns
	// ErrEnrollmentExists when the (sequence, contact) pair has one.
	CreateEnrollment(ctx context.Context, e Enrollment) error

	// AdvanceEnrollment moves an active enrollment's current step
	// forward. Returns ErrEnrollmentNotActive on terminal enrollments.
	AdvanceEnrollment(ctx context.Context, id string, step int) error

	// CompleteEnrollment transitions active → completed and records the
	// completion time.
	CompleteEnrollment(ctx context.Context, id string, at time.Time) error

	// UnsubscribeEnrollment transitions active → unsubscribed.
	UnsubscribeEnrollment(ctx context.Context, id string) error

	// GetContact returns the contact or ErrContactNotFound.
	GetContact(ctx context.Context, id string) (Contact, error)

	// ListNewListContacts returns eligible contacts added to the list
	// with creation time in (since, until].
	ListNewListContacts(ctx context.Context, listID string, since, until time.Time) ([]Contact, error)

	// GetListCursor returns the list's poll watermark and whether one
	// has been set.
	GetListCursor(ctx context.Context, listID string) (time.Time, bool, error)

	// SetListCursor advances the list's poll watermark.
	SetListCursor(ctx context.Context, listID string, at time.Time) error

	// LogStepSend records one sequence step delivery.
	LogStepSend(ctx context.Context, rec StepSendRecord) error
}
