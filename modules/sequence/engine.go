package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dmitrymomot/dripkit/pkg/delayq"
)

// stepPayload rides the sequence-steps queue: execute one step of one
// enrollment.
type stepPayload struct {
	EnrollmentID string `json:"enrollment_id"`
	StepIndex    int    `json:"step_index"`
}

// stepJobID is stable per (enrollment, step) so a racing enqueue of the
// same step upserts instead of double-scheduling it.
func stepJobID(enrollmentID string, stepIndex int) string {
	return delayq.DeterministicID("sequence-step", enrollmentID, strconv.Itoa(stepIndex))
}

// enrollmentID is stable per (sequence, contact), matching the one
// enrollment per pair invariant.
func enrollmentID(sequenceID, contactID string) string {
	return delayq.DeterministicID("enrollment", sequenceID, contactID)
}

// Engine creates enrollments and schedules their first step. Step
// execution belongs to the queue handler; the engine only decides who
// enters a sequence.
type Engine struct {
	store Store
	queue *delayq.Router
	log   *slog.Logger
	now   func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the engine logger.
func WithEngineLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithEngineClock injects a clock for deterministic tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a sequence enrollment engine.
func NewEngine(store Store, queue *delayq.Router, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if queue == nil {
		return nil, ErrRouterNil
	}

	e := &Engine{
		store: store,
		queue: queue,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Enroll creates an enrollment for the contact and schedules the first
// step. Unmet preconditions (ineligible contact, inactive sequence, no
// steps, existing enrollment) skip the enrollment without error; that
// is the expected outcome for most poll cycles, not a failure. The
// returned bool reports whether an enrollment was created.
func (e *Engine) Enroll(ctx context.Context, sequenceID, contactID string) (bool, error) {
	seq, err := e.store.GetSequence(ctx, sequenceID)
	if err != nil {
		return false, fmt.Errorf("sequence: enroll: %w", err)
	}
	if seq.Status != SequenceActive {
		return false, nil
	}

	contact, err := e.store.GetContact(ctx, contactID)
	if err != nil {
		return false, fmt.Errorf("sequence: enroll: %w", err)
	}
	if !contact.Eligible() {
		return false, nil
	}

	steps, err := e.store.ListSteps(ctx, sequenceID)
	if err != nil {
		return false, fmt.Errorf("sequence: enroll: %w", err)
	}
	if len(steps) == 0 {
		return false, nil
	}
	first := steps[0]

	enrollment := Enrollment{
		ID:          enrollmentID(sequenceID, contactID),
		SequenceID:  sequenceID,
		ContactID:   contactID,
		BrandID:     seq.BrandID,
		Status:      EnrollmentActive,
		CurrentStep: first.OrderIndex,
		EnrolledAt:  e.now(),
	}
	if err := e.store.CreateEnrollment(ctx, enrollment); err != nil {
		if errors.Is(err, ErrEnrollmentExists) {
			return false, nil
		}
		return false, fmt.Errorf("sequence: enroll: %w", err)
	}

	if _, err := e.queue.Queue(delayq.QueueSequenceSteps).Add(ctx,
		stepPayload{EnrollmentID: enrollment.ID, StepIndex: first.OrderIndex},
		delayq.WithJobID(stepJobID(enrollment.ID, first.OrderIndex)),
		delayq.WithDelay(StepDelay(first.DelayAmount, first.DelayUnit)),
	); err != nil {
		return false, fmt.Errorf("sequence: enroll: schedule first step: %w", err)
	}

	e.log.InfoContext(ctx, "contact enrolled",
		slog.String("sequence_id", sequenceID),
		slog.String("contact_id", contactID),
		slog.Int("first_step", first.OrderIndex))
	return true, nil
}
