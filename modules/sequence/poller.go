package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config holds the sequence engine settings.
type Config struct {
	// PollInterval is how often the external trigger should invoke the
	// poller. The poller itself does not tick; this value sizes the
	// deployment's cron schedule.
	PollInterval time.Duration `env:"SEQUENCE_POLL_INTERVAL" envDefault:"1m"`

	// PollLookback bounds the first scan window for a list that has
	// never been polled.
	PollLookback time.Duration `env:"SEQUENCE_POLL_LOOKBACK" envDefault:"5m"`
}

// Poller is the sequence engine's trigger source: it scans the contact
// lists referenced by active sequences for newly added contacts and
// enrolls them. It runs on external periodic invocation, matching the
// rest of the delivery engine's no-resident-worker model.
type Poller struct {
	store    Store
	engine   *Engine
	lookback time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollerLogger sets the poller logger.
func WithPollerLogger(log *slog.Logger) PollerOption {
	return func(p *Poller) {
		if log != nil {
			p.log = log
		}
	}
}

// WithPollerClock injects a clock for deterministic tests.
func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPoller creates a contact-list poller.
func NewPoller(store Store, engine *Engine, cfg Config, opts ...PollerOption) (*Poller, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if engine == nil {
		return nil, ErrEngineNil
	}

	p := &Poller{
		store:    store,
		engine:   engine,
		lookback: cfg.PollLookback,
		log:      slog.Default(),
		now:      time.Now,
	}
	if p.lookback <= 0 {
		p.lookback = 5 * time.Minute
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// RunOnce polls every trigger list once. Lists are processed
// independently; one list's failure neither blocks the others nor
// stops its own cursor from advancing. The cursor moves to now
// unconditionally, even on a cycle that found nothing, so the scan
// window never grows without bound.
func (p *Poller) RunOnce(ctx context.Context) error {
	listIDs, err := p.store.ListTriggerListIDs(ctx)
	if err != nil {
		return fmt.Errorf("sequence: poll: list triggers: %w", err)
	}

	var errs []error
	for _, listID := range listIDs {
		if err := p.pollList(ctx, listID); err != nil {
			errs = append(errs, fmt.Errorf("sequence: poll list %s: %w", listID, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Poller) pollList(ctx context.Context, listID string) (retErr error) {
	now := p.now()

	since, ok, err := p.store.GetListCursor(ctx, listID)
	if err != nil {
		return fmt.Errorf("get cursor: %w", err)
	}
	if !ok {
		since = now.Add(-p.lookback)
	}

	// Advance even when the scan fails: re-reading an ever-growing
	// window is worse than missing one cycle's contacts.
	defer func() {
		if err := p.store.SetListCursor(ctx, listID, now); err != nil {
			retErr = errors.Join(retErr, fmt.Errorf("advance cursor: %w", err))
		}
	}()

	contacts, err := p.store.ListNewListContacts(ctx, listID, since, now)
	if err != nil {
		return fmt.Errorf("list new contacts: %w", err)
	}
	if len(contacts) == 0 {
		return nil
	}

	sequences, err := p.store.ListSequencesByTriggerList(ctx, listID)
	if err != nil {
		return fmt.Errorf("list sequences: %w", err)
	}

	var errs []error
	enrolled := 0
	for _, seq := range sequences {
		for _, contact := range contacts {
			created, err := p.engine.Enroll(ctx, seq.ID, contact.ID)
			if err != nil {
				// One contact's failure must not stop the sweep.
				errs = append(errs, fmt.Errorf("enroll contact %s in %s: %w", contact.ID, seq.ID, err))
				continue
			}
			if created {
				enrolled++
			}
		}
	}

	if enrolled > 0 {
		p.log.InfoContext(ctx, "poll cycle enrolled contacts",
			slog.String("list_id", listID),
			slog.Int("new_contacts", len(contacts)),
			slog.Int("enrolled", enrolled))
	}
	return errors.Join(errs...)
}
