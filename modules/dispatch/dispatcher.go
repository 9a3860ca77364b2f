package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dmitrymomot/dripkit/pkg/delayq"
)

// Handler processes jobs from one logical queue.
type Handler interface {
	Queue() string
	Handle(ctx context.Context, job delayq.Job) error
}

// FuncHandler adapts a function into a Handler.
func FuncHandler(queue string, fn func(ctx context.Context, job delayq.Job) error) Handler {
	return funcHandler{queue: queue, fn: fn}
}

type funcHandler struct {
	queue string
	fn    func(ctx context.Context, job delayq.Job) error
}

func (h funcHandler) Queue() string                                    { return h.queue }
func (h funcHandler) Handle(ctx context.Context, job delayq.Job) error { return h.fn(ctx, job) }

// ExhaustedFunc is invoked when a job has burned through its retry
// budget (or hit an integrity error), letting the owning engine move its
// domain record into a terminal failed state instead of the job being
// silently dropped.
type ExhaustedFunc func(ctx context.Context, job delayq.Job, cause error)

// Config holds the dispatcher's retry defaults.
type Config struct {
	BackoffBase time.Duration `env:"DISPATCH_BACKOFF_BASE" envDefault:"30s"`
	BackoffCap  time.Duration `env:"DISPATCH_BACKOFF_CAP" envDefault:"1h"`
}

// Dispatcher is the periodic entry point of the delivery engine. Each
// invocation pops at most one ready job per queue and runs the matching
// handler; it holds no long-lived workers and relies on an external
// periodic trigger (cron, scheduled HTTP call) to be invoked at all.
//
// Handlers must tolerate at-least-once, possibly concurrent execution:
// overlapping trigger windows may run two dispatcher invocations at once.
type Dispatcher struct {
	router      *delayq.Router
	handlers    map[string]Handler
	onExhausted map[string]ExhaustedFunc
	backoffBase time.Duration
	backoffCap  time.Duration
	log         *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// WithBackoff sets the retry backoff base and cap.
func WithBackoff(base, cap time.Duration) Option {
	return func(d *Dispatcher) {
		d.backoffBase = base
		d.backoffCap = cap
	}
}

// New creates a Dispatcher over the given queue router.
func New(router *delayq.Router, opts ...Option) (*Dispatcher, error) {
	if router == nil {
		return nil, ErrRouterNil
	}

	d := &Dispatcher{
		router:      router,
		handlers:    make(map[string]Handler),
		onExhausted: make(map[string]ExhaustedFunc),
		backoffBase: 30 * time.Second,
		backoffCap:  time.Hour,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Register adds a handler for its queue. An optional ExhaustedFunc
// receives jobs that terminally fail.
func (d *Dispatcher) Register(h Handler, onExhausted ...ExhaustedFunc) error {
	if h == nil {
		return ErrHandlerNil
	}
	queue := h.Queue()
	if queue == "" {
		return delayq.ErrQueueNameEmpty
	}
	if _, exists := d.handlers[queue]; exists {
		return fmt.Errorf("%w: %q", ErrHandlerExists, queue)
	}

	d.handlers[queue] = h
	if len(onExhausted) > 0 && onExhausted[0] != nil {
		d.onExhausted[queue] = onExhausted[0]
	}
	return nil
}

// Queues returns the registered queue names in stable order.
func (d *Dispatcher) Queues() []string {
	queues := make([]string, 0, len(d.handlers))
	for q := range d.handlers {
		queues = append(queues, q)
	}
	slices.Sort(queues)
	return queues
}

// Dispatch pops at most one ready job from the named queue and runs its
// handler. An empty queue is a successful no-op; invoking Dispatch more
// often than jobs become due is safe and expected.
func (d *Dispatcher) Dispatch(ctx context.Context, queue string) error {
	handler, ok := d.handlers[queue]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoHandler, queue)
	}

	job, err := d.router.Queue(queue).Pop(ctx)
	if err != nil {
		return fmt.Errorf("dispatch: pop %q: %w", queue, err)
	}
	if job == nil {
		return nil
	}

	err = d.runHandler(ctx, handler, *job)
	switch {
	case err == nil:
		d.log.InfoContext(ctx, "job completed",
			slog.String("queue", queue),
			slog.String("job_id", job.ID))
		return nil

	case errors.Is(err, ErrSkip):
		// Precondition-not-met is an expected outcome, not a failure.
		d.log.DebugContext(ctx, "job skipped",
			slog.String("queue", queue),
			slog.String("job_id", job.ID),
			slog.String("reason", err.Error()))
		return nil

	case errors.Is(err, ErrIntegrity):
		d.log.ErrorContext(ctx, "job terminally failed: integrity error",
			slog.String("queue", queue),
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
		d.exhaust(ctx, queue, *job, err)
		return nil

	default:
		return d.retry(ctx, queue, *job, err)
	}
}

// DispatchAll runs one Dispatch per registered queue, isolating
// failures so one broken queue cannot starve the others.
func (d *Dispatcher) DispatchAll(ctx context.Context) error {
	var errs []error
	for _, queue := range d.Queues() {
		if err := d.Dispatch(ctx, queue); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runHandler invokes the handler with panic containment; a panicking
// handler is a failed job, not a crashed dispatcher.
func (d *Dispatcher) runHandler(ctx context.Context, h Handler, job delayq.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	return h.Handle(ctx, job)
}

// retry re-enqueues a transiently-failed job with exponential backoff,
// or terminally fails it once the retry budget is exhausted.
func (d *Dispatcher) retry(ctx context.Context, queue string, job delayq.Job, cause error) error {
	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		d.log.ErrorContext(ctx, "job terminally failed: retries exhausted",
			slog.String("queue", queue),
			slog.String("job_id", job.ID),
			slog.Int("attempts", attempts),
			slog.String("error", cause.Error()))
		d.exhaust(ctx, queue, job, cause)
		return nil
	}

	delay := delayq.Backoff(d.backoffBase, job.Attempts, d.backoffCap)
	_, err := d.router.Queue(queue).Add(ctx, json.RawMessage(job.Data),
		delayq.WithJobID(job.ID),
		delayq.WithDelay(delay),
		delayq.WithAttempts(attempts),
		delayq.WithMaxAttempts(job.MaxAttempts),
	)
	if err != nil {
		// The job is out of the queue and could not be put back; report
		// both so the caller's trigger surfaces the loss instead of
		// swallowing it.
		return errors.Join(
			fmt.Errorf("dispatch: re-enqueue job %s on %q: %w", job.ID, queue, err),
			cause,
		)
	}

	d.log.WarnContext(ctx, "job failed, retry scheduled",
		slog.String("queue", queue),
		slog.String("job_id", job.ID),
		slog.Int("attempt", attempts),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.Duration("backoff", delay),
		slog.String("error", cause.Error()))
	return nil
}

func (d *Dispatcher) exhaust(ctx context.Context, queue string, job delayq.Job, cause error) {
	if fn, ok := d.onExhausted[queue]; ok {
		fn(ctx, job, cause)
	}
}
