package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/dripkit/modules/dispatch"
	"github.com/dmitrymomot/dripkit/pkg/delayq"
	"github.com/dmitrymomot/dripkit/pkg/email"
)

// StepHandler executes sequence-steps jobs: deliver one step's email
// and schedule the next one, or finish the enrollment.
type StepHandler struct {
	store  Store
	queue  *delayq.Router
	sender email.Sender
	log    *slog.Logger
	now    func() time.Time
}

// StepHandlerOption configures a StepHandler.
type StepHandlerOption func(*StepHandler)

// WithStepHandlerLogger sets the handler logger.
func WithStepHandlerLogger(log *slog.Logger) StepHandlerOption {
	return func(h *StepHandler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithStepHandlerClock injects a clock for deterministic tests.
func WithStepHandlerClock(now func() time.Time) StepHandlerOption {
	return func(h *StepHandler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewStepHandler creates the sequence step handler.
func NewStepHandler(store Store, queue *delayq.Router, sender email.Sender, opts ...StepHandlerOption) (*StepHandler, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if queue == nil {
		return nil, ErrRouterNil
	}
	if sender == nil {
		return nil, ErrSenderNil
	}

	h := &StepHandler{
		store:  store,
		queue:  queue,
		sender: sender,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Queue implements dispatch.Handler.
func (h *StepHandler) Queue() string { return delayq.QueueSequenceSteps }

// Handle implements dispatch.Handler. Eligibility is re-checked here,
// at execution time: the delay window between steps can be days long
// and the contact may have unsubscribed during it.
func (h *StepHandler) Handle(ctx context.Context, job delayq.Job) error {
	var p stepPayload
	if err := job.Unmarshal(&p); err != nil {
		return fmt.Errorf("%w: bad step payload: %w", dispatch.ErrIntegrity, err)
	}

	enrollment, err := h.store.GetEnrollment(ctx, p.EnrollmentID)
	if err != nil {
		if errors.Is(err, ErrEnrollmentNotFound) {
			return fmt.Errorf("%w: %w", dispatch.ErrIntegrity, err)
		}
		return err
	}
	if enrollment.Status != EnrollmentActive {
		return fmt.Errorf("%w: enrollment %s is %s", dispatch.ErrSkip, enrollment.ID, enrollment.Status)
	}

	contact, err := h.store.GetContact(ctx, enrollment.ContactID)
	if err != nil {
		if errors.Is(err, ErrContactNotFound) {
			return fmt.Errorf("%w: %w", dispatch.ErrIntegrity, err)
		}
		return err
	}
	if !contact.Eligible() {
		if err := h.store.UnsubscribeEnrollment(ctx, enrollment.ID); err != nil {
			return fmt.Errorf("unsubscribe enrollment %s: %w", enrollment.ID, err)
		}
		h.log.InfoContext(ctx, "enrollment unsubscribed, contact no longer eligible",
			slog.String("enrollment_id", enrollment.ID),
			slog.String("contact_id", contact.ID),
			slog.String("contact_status", string(contact.Status)))
		return nil
	}

	seq, err := h.store.GetSequence(ctx, enrollment.SequenceID)
	if err != nil {
		if errors.Is(err, ErrSequenceNotFound) {
			return fmt.Errorf("%w: %w", dispatch.ErrIntegrity, err)
		}
		return err
	}

	steps, err := h.store.ListSteps(ctx, enrollment.SequenceID)
	if err != nil {
		return err
	}
	step, next, ok := findStep(steps, p.StepIndex)
	if !ok {
		return fmt.Errorf("%w: sequence %s has no step %d", dispatch.ErrIntegrity, seq.ID, p.StepIndex)
	}

	messageID, err := h.sender.Send(ctx, email.Message{
		From:     seq.FromEmail,
		FromName: seq.FromName,
		To:       contact.Email,
		ReplyTo:  seq.ReplyTo,
		Subject:  step.Subject,
		BodyHTML: step.BodyHTML,
		Tag:      "sequence",
	})
	if err != nil {
		// Transient by default; the dispatcher retries with backoff and
		// leaves the enrollment active if retries run out.
		return fmt.Errorf("send step %d of sequence %s: %w", step.OrderIndex, seq.ID, err)
	}

	if err := h.store.LogStepSend(ctx, StepSendRecord{
		EnrollmentID: enrollment.ID,
		SequenceID:   seq.ID,
		ContactID:    contact.ID,
		StepIndex:    step.OrderIndex,
		Email:        contact.Email,
		MessageID:    messageID,
		SentAt:       h.now(),
	}); err != nil {
		h.log.ErrorContext(ctx, "step sent but logging failed",
			slog.String("enrollment_id", enrollment.ID),
			slog.Int("step", step.OrderIndex),
			slog.String("error", err.Error()))
	}

	if next == nil {
		if err := h.store.CompleteEnrollment(ctx, enrollment.ID, h.now()); err != nil {
			return fmt.Errorf("complete enrollment %s: %w", enrollment.ID, err)
		}
		h.log.InfoContext(ctx, "enrollment completed",
			slog.String("enrollment_id", enrollment.ID),
			slog.String("sequence_id", seq.ID))
		return nil
	}

	if err := h.store.AdvanceEnrollment(ctx, enrollment.ID, next.OrderIndex); err != nil {
		return fmt.Errorf("advance enrollment %s: %w", enrollment.ID, err)
	}
	if _, err := h.queue.Queue(delayq.QueueSequenceSteps).Add(ctx,
		stepPayload{EnrollmentID: enrollment.ID, StepIndex: next.OrderIndex},
		delayq.WithJobID(stepJobID(enrollment.ID, next.OrderIndex)),
		delayq.WithDelay(StepDelay(next.DelayAmount, next.DelayUnit)),
	); err != nil {
		return fmt.Errorf("schedule step %d for enrollment %s: %w", next.OrderIndex, enrollment.ID, err)
	}
	return nil
}

// Exhausted returns the exhaustion callback for the step queue. A step
// that burned its retry budget leaves the enrollment active for manual
// intervention; it is never silently completed.
func (h *StepHandler) Exhausted() dispatch.ExhaustedFunc {
	return func(ctx context.Context, job delayq.Job, cause error) {
		var p stepPayload
		if err := job.Unmarshal(&p); err != nil {
			h.log.ErrorContext(ctx, "exhausted step job has unreadable payload",
				slog.String("job_id", job.ID))
			return
		}
		h.log.ErrorContext(ctx, "sequence step abandoned after exhausting retries, enrollment needs attention",
			slog.String("enrollment_id", p.EnrollmentID),
			slog.Int("step", p.StepIndex),
			slog.String("error", cause.Error()))
	}
}

// findStep locates the step with the given order index and the step
// after it in traversal order. Steps are assumed sorted ascending.
func findStep(steps []Step, orderIndex int) (current *Step, next *Step, ok bool) {
	for i := range steps {
		if steps[i].OrderIndex == orderIndex {
			current = &steps[i]
			if i+1 < len(steps) {
				next = &steps[i+1]
			}
			return current, next, true
		}
	}
	return nil, nil, false
}
