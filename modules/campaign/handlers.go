package campaign

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

// Handlers owns the queue-side half of the campaign engine: promoting
// due scheduled campaigns and delivering send batches. Handlers run
// under the dispatcher's at-least-once contract, so every effect is
// gated on the campaign's persisted status.
type Handlers struct {
	store     Store
	queue     *delayq.Router
	sender    email.Sender
	batchSize int
	log       *slog.Logger
	now       func() time.Time
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(log *slog.Logger) HandlerOption {
	return func(h *Handlers) {
		if log != nil {
			h.log = log
		}
	}
}

// WithHandlerClock injects a clock for deterministic tests.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handlers) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandlers creates the campaign queue handlers.
func NewHandlers(store Store, queue *delayq.Router, sender email.Sender, cfg Config, opts ...HandlerOption) (*Handlers, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if queue == nil {
		return nil, ErrRouterNil
	}
	if sender == nil {
		return nil, ErrSenderNil
	}

	h := &Handlers{
		store:     store,
		queue:     queue,
		sender:    sender,
		batchSize: cfg.SendBatchSize,
		log:       slog.Default(),
		now:       time.Now,
	}
	if h.batchSize <= 0 {
		h.batchSize = 50
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ScheduleDue handles campaign-scheduler jobs: a scheduled campaign's
// due time has arrived, move it to queued and start the first batch.
func (h *Handlers) ScheduleDue() dispatch.Handler {
	return dispatch.FuncHandler(delayq.QueueCampaignScheduler, h.handleScheduleDue)
}

// SendBatch handles campaign-sends jobs: deliver one page of
// recipients, then chain the next page or mark the campaign sent.
func (h *Handlers) SendBatch() dispatch.Handler {
	return dispatch.FuncHandler(delayq.QueueCampaignSends, h.handleSendBatch)
}

// FailCampaign is the exhaustion callback for both campaign queues: a
// job that burned its retry budget moves the campaign to failed with a
// retained reason instead of vanishing.
func (h *Handlers) FailCampaign() dispatch.ExhaustedFunc {
	return func(ctx context.Context, job delayq.Job, cause error) {
		var p struct {
			CampaignID string `json:"campaign_id"`
		}
		if err := job.Unmarshal(&p); err != nil || p.CampaignID == "" {
			h.log.ErrorContext(ctx, "exhausted campaign job has unreadable payload",
				slog.String("job_id", job.ID))
			return
		}

		if err := h.store.TransitionStatus(ctx, p.CampaignID,
			[]Status{StatusDraft, StatusScheduled, StatusQueued, StatusSending, StatusPaused},
			StatusFailed); err != nil {
			h.log.ErrorContext(ctx, "failed to mark campaign failed",
				slog.String("campaign_id", p.CampaignID),
				slog.String("error", err.Error()))
			return
		}
		if err := h.store.SetFailureReason(ctx, p.CampaignID, cause.Error()); err != nil {
			h.log.ErrorContext(ctx, "failed to record campaign failure reason",
				slog.String("campaign_id", p.CampaignID),
				slog.String("error", err.Error()))
		}
	}
}

func (h *Handlers) handleScheduleDue(ctx context.Context, job delayq.Job) error {
	var p schedulePayload
	if err := job.Unmarshal(&p); err != nil {
		return fmt.Errorf("%w: bad scheduler payload: %w", dispatch.ErrIntegrity, err)
	}

	c, err := h.store.GetCampaign(ctx, p.CampaignID)
	if err != nil {
		if errors.Is(err, ErrCampaignNotFound) {
			return fmt.Errorf("%w: %w", dispatch.ErrIntegrity, err)
		}
		return err
	}
	if c.Status != StatusScheduled {
		// Paused, already queued by the watchdog, or sent. Nothing to do.
		return fmt.Errorf("%w: campaign %s is %s, not scheduled", dispatch.ErrSkip, c.ID, c.Status)
	}

	total, err := h.store.CountRecipients(ctx, c.ContactListIDs)
	if err != nil {
		return err
	}

	if err := h.store.TransitionStatus(ctx, c.ID,
		[]Status{StatusScheduled}, StatusQueued); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return fmt.Errorf("%w: campaign %s moved concurrently", dispatch.ErrSkip, c.ID)
		}
		return err
	}

	if _, err := h.queue.Queue(delayq.QueueCampaignSends).Add(ctx,
		sendPayload{CampaignID: c.ID, Offset: 0, Total: total},
		delayq.WithJobID(sendJobID(c.ID, 0)),
	); err != nil {
		return fmt.Errorf("enqueue first batch for campaign %s: %w", c.ID, err)
	}
	return nil
}

func (h *Handlers) handleSendBatch(ctx context.Context, job delayq.Job) error {
	var p sendPayload
	if err := job.Unmarshal(&p); err != nil {
		return fmt.Errorf("%w: bad send payload: %w", dispatch.ErrIntegrity, err)
	}

	c, err := h.store.GetCampaign(ctx, p.CampaignID)
	if err != nil {
		if errors.Is(err, ErrCampaignNotFound) {
			return fmt.Errorf("%w: %w", dispatch.ErrIntegrity, err)
		}
		return err
	}

	// Cooperative pause: the persisted status is re-read before every
	// batch, so a pause lands between batches at the latest.
	switch c.Status {
	case StatusQueued:
		if err := h.store.TransitionStatus(ctx, c.ID,
			[]Status{StatusQueued}, StatusSending); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				return fmt.Errorf("%w: campaign %s moved concurrently", dispatch.ErrSkip, c.ID)
			}
			return err
		}
	case StatusSending:
		// Continuation batch.
	default:
		return fmt.Errorf("%w: campaign %s is %s, not sendable", dispatch.ErrSkip, c.ID, c.Status)
	}

	recipients, err := h.store.ListRecipients(ctx, c.ContactListIDs, p.Offset, h.batchSize)
	if err != nil {
		return err
	}

	sent, failed := 0, 0
	for _, r := range recipients {
		if err := h.deliver(ctx, c, r); err != nil {
			// One bad address must not abort the batch.
			failed++
			h.log.WarnContext(ctx, "campaign send failed for recipient",
				slog.String("campaign_id", c.ID),
				slog.String("contact_id", r.ContactID),
				slog.String("error", err.Error()))
			continue
		}
		sent++
	}

	if len(recipients) > 0 && sent == 0 {
		// Every send in the batch failed, which smells like a provider
		// outage rather than bad addresses. Retry the whole batch; no
		// recipient was logged as sent, so the retry cannot double-send.
		return fmt.Errorf("all %d sends failed in batch at offset %d for campaign %s",
			failed, p.Offset, c.ID)
	}

	if len(recipients) == h.batchSize {
		next := p.Offset + h.batchSize
		if _, err := h.queue.Queue(delayq.QueueCampaignSends).Add(ctx,
			sendPayload{CampaignID: c.ID, Offset: next, Total: p.Total},
			delayq.WithJobID(sendJobID(c.ID, next)),
		); err != nil {
			return fmt.Errorf("enqueue next batch for campaign %s: %w", c.ID, err)
		}
		h.log.InfoContext(ctx, "campaign batch delivered",
			slog.String("campaign_id", c.ID),
			slog.Int("offset", p.Offset),
			slog.Int("sent", sent),
			slog.Int("failed", failed))
		return nil
	}

	if err := h.store.MarkSent(ctx, c.ID, h.now()); err != nil {
		return fmt.Errorf("mark campaign %s sent: %w", c.ID, err)
	}
	h.log.InfoContext(ctx, "campaign completed",
		slog.String("campaign_id", c.ID),
		slog.Int("total", p.Total),
		slog.Int("sent", sent),
		slog.Int("failed", failed))
	return nil
}

func (h *Handlers) deliver(ctx context.Context, c Campaign, r Recipient) error {
	msg := email.Message{
		From:     c.FromEmail,
		FromName: c.FromName,
		To:       r.Email,
		ReplyTo:  c.ReplyTo,
		Subject:  c.Subject,
		BodyHTML: c.BodyHTML,
		Tag:      "campaign",
	}
	messageID, err := h.sender.Send(ctx, msg)
	if err != nil {
		return err
	}
	return h.store.LogSend(ctx, SendRecord{
		CampaignID: c.ID,
		ContactID:  r.ContactID,
		Email:      r.Email,
		MessageID:  messageID,
		SentAt:     h.now(),
	})
}
