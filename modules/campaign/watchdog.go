package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/dripkit/pkg/delayq"
	"github.com/dmitrymomot/dripkit/pkg/ttlcache"
)

// CredentialChecker reports whether a brand currently holds valid send
// credentials. Implementations typically call the email provider's
// account API, which is why the watchdog caches results.
type CredentialChecker interface {
	Valid(ctx context.Context, brandID string) (bool, error)
}

// CredentialCheckerFunc adapts a function into a CredentialChecker.
type CredentialCheckerFunc func(ctx context.Context, brandID string) (bool, error)

func (f CredentialCheckerFunc) Valid(ctx context.Context, brandID string) (bool, error) {
	return f(ctx, brandID)
}

// Watchdog recovers scheduled campaigns whose due time passed without
// the scheduler job being picked up, which happens when the queue store
// lost the job or the enqueue after the status transition failed.
//
// The delay mechanism is a passive marker, not a clock: a due job only
// runs when an external trigger arrives after its due time. The
// watchdog is the safety net for due times nobody arrived for.
type Watchdog struct {
	store        Store
	queue        *delayq.Router
	checker      CredentialChecker
	creds        *ttlcache.Cache[string, bool]
	grace        time.Duration
	requeueDelay time.Duration
	log          *slog.Logger
	now          func() time.Time
}

// WatchdogOption configures a Watchdog.
type WatchdogOption func(*Watchdog)

// WithWatchdogLogger sets the watchdog logger.
func WithWatchdogLogger(log *slog.Logger) WatchdogOption {
	return func(w *Watchdog) {
		if log != nil {
			w.log = log
		}
	}
}

// WithWatchdogClock injects a clock for deterministic tests.
func WithWatchdogClock(now func() time.Time) WatchdogOption {
	return func(w *Watchdog) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWatchdog creates a scheduler watchdog. Credential check results
// are cached for cfg.CredentialTTL; when a fresh check fails, the last
// known result is served stale so transient provider outages do not
// block recovery.
func NewWatchdog(store Store, queue *delayq.Router, checker CredentialChecker, cfg Config, opts ...WatchdogOption) (*Watchdog, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if queue == nil {
		return nil, ErrRouterNil
	}
	if checker == nil {
		return nil, ErrCheckerNil
	}

	w := &Watchdog{
		store:        store,
		queue:        queue,
		checker:      checker,
		grace:        cfg.WatchdogGrace,
		requeueDelay: cfg.WatchdogRequeueDelay,
		log:          slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}

	w.creds = ttlcache.New(cfg.CredentialTTL,
		ttlcache.WithClock[string, bool](w.now),
		ttlcache.WithStaleCallback[string, bool](func(brandID string) {
			w.log.Warn("credential check failed, serving cached result",
				slog.String("brand_id", brandID))
		}),
	)
	return w, nil
}

// Reconcile finds scheduled campaigns overdue beyond the grace window
// and re-queues the ones whose brand still has valid credentials.
// Campaigns with invalid credentials stay scheduled and are logged for
// operator attention rather than silently failed. Re-running Reconcile
// on a campaign another pass already queued is a no-op because only
// status scheduled is selected and the transition is checked against
// the persisted status.
func (w *Watchdog) Reconcile(ctx context.Context) error {
	cutoff := w.now().Add(-w.grace)
	overdue, err := w.store.ListOverdueScheduled(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("campaign: watchdog: list overdue: %w", err)
	}

	var errs []error
	for _, c := range overdue {
		if err := w.recover(ctx, c); err != nil {
			// One stuck campaign must not block recovery of the rest.
			errs = append(errs, fmt.Errorf("campaign: watchdog: recover %s: %w", c.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (w *Watchdog) recover(ctx context.Context, c Campaign) error {
	valid, err := w.creds.GetOrLoad(ctx, c.BrandID, func(ctx context.Context) (bool, error) {
		return w.checker.Valid(ctx, c.BrandID)
	})
	if err != nil {
		return fmt.Errorf("check credentials for brand %s: %w", c.BrandID, err)
	}
	if !valid {
		w.log.WarnContext(ctx, "overdue campaign has invalid send credentials, leaving scheduled",
			slog.String("campaign_id", c.ID),
			slog.String("brand_id", c.BrandID))
		return nil
	}

	total, err := w.store.CountRecipients(ctx, c.ContactListIDs)
	if err != nil {
		return fmt.Errorf("count recipients: %w", err)
	}

	if err := w.store.TransitionStatus(ctx, c.ID,
		[]Status{StatusScheduled}, StatusQueued); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Lost the race against the scheduler job or another
			// watchdog pass. The campaign is already on its way.
			return nil
		}
		return err
	}

	if _, err := w.queue.Queue(delayq.QueueCampaignSends).Add(ctx,
		sendPayload{CampaignID: c.ID, Offset: 0, Total: total},
		delayq.WithJobID(sendJobID(c.ID, 0)),
		delayq.WithDelay(w.requeueDelay),
	); err != nil {
		return fmt.Errorf("enqueue send: %w", err)
	}

	w.log.InfoContext(ctx, "recovered missed campaign",
		slog.String("campaign_id", c.ID),
		slog.Duration("overdue_by", w.now().Sub(*c.ScheduledAt)))
	return nil
}
