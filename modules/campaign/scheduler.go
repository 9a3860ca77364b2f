package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/dripkit/pkg/delayq"
)

// Scheduler turns user intent ("send now", "send at 3pm Friday") into
// queued jobs and the matching campaign status transitions. It never
// sends email itself; the dispatcher's handlers do that.
type Scheduler struct {
	store Store
	queue *delayq.Router
	log   *slog.Logger
	now   func() time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(log *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSchedulerClock injects a clock for deterministic tests.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler creates a campaign scheduler.
func NewScheduler(store Store, queue *delayq.Router, opts ...SchedulerOption) (*Scheduler, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if queue == nil {
		return nil, ErrRouterNil
	}

	s := &Scheduler{
		store: store,
		queue: queue,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Schedule gates the campaign behind its due time. A past due time is
// treated as immediate. Re-scheduling a still-scheduled campaign moves
// the pending job's due time instead of duplicating it, because the job
// ID is stable per campaign.
//
// The status transition lands before the enqueue: if the enqueue fails,
// the campaign is left scheduled with its due time set and the watchdog
// recovers it.
func (s *Scheduler) Schedule(ctx context.Context, campaignID string, at time.Time) error {
	if at.Before(s.now()) {
		at = s.now()
	}

	if err := s.store.TransitionStatus(ctx, campaignID,
		[]Status{StatusDraft, StatusScheduled}, StatusScheduled); err != nil {
		return fmt.Errorf("campaign: schedule %s: %w", campaignID, err)
	}
	if err := s.store.SetScheduledAt(ctx, campaignID, at); err != nil {
		return fmt.Errorf("campaign: schedule %s: %w", campaignID, err)
	}

	_, err := s.queue.Queue(delayq.QueueCampaignScheduler).Add(ctx,
		schedulePayload{CampaignID: campaignID},
		delayq.WithJobID(scheduleJobID(campaignID)),
		delayq.WithReadyAt(at),
	)
	if err != nil {
		return fmt.Errorf("campaign: schedule %s: %w", campaignID, err)
	}

	s.log.InfoContext(ctx, "campaign scheduled",
		slog.String("campaign_id", campaignID),
		slog.Time("scheduled_at", at))
	return nil
}

// SendNow queues the campaign for immediate delivery with a recipient
// count snapshot taken at queue time.
func (s *Scheduler) SendNow(ctx context.Context, campaignID string) error {
	c, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("campaign: send now %s: %w", campaignID, err)
	}

	total, err := s.store.CountRecipients(ctx, c.ContactListIDs)
	if err != nil {
		return fmt.Errorf("campaign: send now %s: %w", campaignID, err)
	}
	if total == 0 {
		return fmt.Errorf("campaign: send now %s: %w", campaignID, ErrNoRecipients)
	}

	if err := s.store.TransitionStatus(ctx, campaignID,
		[]Status{StatusDraft, StatusScheduled}, StatusQueued); err != nil {
		return fmt.Errorf("campaign: send now %s: %w", campaignID, err)
	}

	_, err = s.queue.Queue(delayq.QueueCampaignSends).Add(ctx,
		sendPayload{CampaignID: campaignID, Offset: 0, Total: total},
		delayq.WithJobID(sendJobID(campaignID, 0)),
	)
	if err != nil {
		return fmt.Errorf("campaign: send now %s: %w", campaignID, err)
	}

	s.log.InfoContext(ctx, "campaign queued",
		slog.String("campaign_id", campaignID),
		slog.Int("recipients", total))
	return nil
}

// Pause stops a queued or in-flight campaign. An already-popped batch
// job is not retracted; the batch handler checks the persisted status
// before each batch and aborts cooperatively.
func (s *Scheduler) Pause(ctx context.Context, campaignID string) error {
	if err := s.store.TransitionStatus(ctx, campaignID,
		[]Status{StatusQueued, StatusSending}, StatusPaused); err != nil {
		return fmt.Errorf("campaign: pause %s: %w", campaignID, err)
	}
	s.log.InfoContext(ctx, "campaign paused", slog.String("campaign_id", campaignID))
	return nil
}

// Resume re-queues a paused or failed campaign. The batch job gets a
// fresh ID so the retried run is distinguishable from the original in
// the send log and the queue.
func (s *Scheduler) Resume(ctx context.Context, campaignID string) error {
	c, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("campaign: resume %s: %w", campaignID, err)
	}

	total, err := s.store.CountRecipients(ctx, c.ContactListIDs)
	if err != nil {
		return fmt.Errorf("campaign: resume %s: %w", campaignID, err)
	}

	if err := s.store.TransitionStatus(ctx, campaignID,
		[]Status{StatusPaused, StatusFailed}, StatusQueued); err != nil {
		return fmt.Errorf("campaign: resume %s: %w", campaignID, err)
	}
	if c.FailureReason != "" {
		if err := s.store.SetFailureReason(ctx, campaignID, ""); err != nil {
			return fmt.Errorf("campaign: resume %s: %w", campaignID, err)
		}
	}

	_, err = s.queue.Queue(delayq.QueueCampaignSends).Add(ctx,
		sendPayload{CampaignID: campaignID, Offset: 0, Total: total},
		delayq.WithJobID(delayq.NewID()),
	)
	if err != nil {
		return fmt.Errorf("campaign: resume %s: %w", campaignID, err)
	}

	s.log.InfoContext(ctx, "campaign resumed", slog.String("campaign_id", campaignID))
	return nil
}
