package sequence

import "time"

// SequenceStatus is the administrative state of a drip sequence. Only
// active sequences enroll contacts and execute steps.
type SequenceStatus string

const (
	SequenceActive   SequenceStatus = "active"
	SequencePaused   SequenceStatus = "paused"
	SequenceArchived SequenceStatus = "archived"
)

// TriggerType names how contacts enter a sequence. List triggers are
// the only kind this engine polls for; API triggers arrive as explicit
// Enroll calls.
type TriggerType string

const (
	TriggerList TriggerType = "list"
	TriggerAPI  TriggerType = "api"
)

// Sequence is an ordered drip of timed emails.
type Sequence struct {
	ID             string
	BrandID        string
	Status         SequenceStatus
	Name           string
	FromName       string
	FromEmail      string
	ReplyTo        string
	TriggerType    TriggerType
	TriggerListIDs []string
}

// Step is one email within a sequence. Steps execute strictly in
// ascending OrderIndex; DelayAmount/DelayUnit gate each step relative
// to the previous one (or to enrollment time for the first step).
type Step struct {
	ID          string
	SequenceID  string
	OrderIndex  int
	Subject     string
	BodyHTML    string
	DelayAmount int
	DelayUnit   string
}

// Delay units accepted by StepDelay.
const (
	UnitMinutes = "minutes"
	UnitHours   = "hours"
	UnitDays    = "days"
)

// StepDelay converts a step's delay into a duration. Unrecognized units
// fall back to treating the amount as seconds rather than zero, so a
// typo in stored data slows a step down instead of firing it instantly.
func StepDelay(amount int, unit string) time.Duration {
	if amount <= 0 {
		return 0
	}
	switch unit {
	case UnitMinutes:
		return time.Duration(amount) * time.Minute
	case UnitHours:
		return time.Duration(amount) * time.Hour
	case UnitDays:
		return time.Duration(amount) * 24 * time.Hour
	default:
		return time.Duration(amount) * time.Second
	}
}

// EnrollmentStatus is the state of one contact's run through a
// sequence. Completed and unsubscribed are terminal and never reopened.
type EnrollmentStatus string

const (
	EnrollmentActive       EnrollmentStatus = "active"
	EnrollmentCompleted    EnrollmentStatus = "completed"
	EnrollmentUnsubscribed EnrollmentStatus = "unsubscribed"
)

// Enrollment records one contact's progress through one sequence.
// At most one enrollment ever exists per (sequence, contact) pair.
type Enrollment struct {
	ID          string
	SequenceID  string
	ContactID   string
	BrandID     string
	Status      EnrollmentStatus
	CurrentStep int
	EnrolledAt  time.Time
	CompletedAt *time.Time
}

// ContactStatus is the deliverability state of a contact.
type ContactStatus string

const (
	ContactActive       ContactStatus = "active"
	ContactUnsubscribed ContactStatus = "unsubscribed"
	ContactBounced      ContactStatus = "bounced"
	ContactComplained   ContactStatus = "complained"
)

// Contact is the slice of the contact record this engine reads:
// identity, address, and eligibility.
type Contact struct {
	ID        string
	Email     string
	Status    ContactStatus
	CreatedAt time.Time
}

// Eligible reports whether the contact may receive sequence email.
func (c Contact) Eligible() bool { return c.Status == ContactActive }

// StepSendRecord logs one delivered sequence step email.
type StepSendRecord struct {
	EnrollmentID string
	SequenceID   string
	ContactID    string
	StepIndex    int
	Email        string
	MessageID    string
	SentAt       time.Time
}
