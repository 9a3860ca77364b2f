package delayq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// PromoteOrder controls where a delayed job lands in the ready tier once
// its due time passes, relative to jobs that were added ready directly.
type PromoteOrder string

const (
	// PromoteOldestFirst places promoted jobs at the pop end of the ready
	// tier: a job whose due time has passed is considered the oldest
	// available work. This is the default.
	PromoteOldestFirst PromoteOrder = "oldest-first"

	// PromoteNewestFirst places promoted jobs at the push end, behind any
	// jobs already waiting in the ready tier.
	PromoteNewestFirst PromoteOrder = "newest-first"
)

// Valid reports whether the order is one of the supported policies.
func (o PromoteOrder) Valid() bool {
	return o == PromoteOldestFirst || o == PromoteNewestFirst
}

// Queue is a named, two-tier job queue: a ready tier popped FIFO by
// arrival and a delayed tier ordered by ready-at time. Pop promotes due
// delayed jobs before reading the ready tier and returns (nil, nil) when
// nothing is ready, which is a normal outcome rather than an error.
// Store errors are always propagated to the caller.
type Queue interface {
	Add(ctx context.Context, queue string, payload any, opts ...AddOption) (Job, error)
	Pop(ctx context.Context, queue string) (*Job, error)
	Count(ctx context.Context, queue string) (int64, error)
	DelayedCount(ctx context.Context, queue string) (int64, error)
}

// AddOption customizes a single Add call.
type AddOption func(*addOptions)

type addOptions struct {
	delay       time.Duration
	readyAt     time.Time
	jobID       string
	attempts    int
	maxAttempts int
}

// WithDelay gates the job behind the delayed tier for the given duration.
// Non-positive delays enqueue the job as immediately ready.
func WithDelay(delay time.Duration) AddOption {
	return func(o *addOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

// WithReadyAt gates the job until the given wall-clock time.
func WithReadyAt(at time.Time) AddOption {
	return func(o *addOptions) {
		o.readyAt = at
	}
}

// WithJobID sets a caller-supplied job ID. Re-adding an ID that is still
// queued is an upsert, not a duplicate: a delayed re-add moves the job's
// due time and payload, a ready re-add leaves the queued job as is.
func WithJobID(id string) AddOption {
	return func(o *addOptions) {
		if id != "" {
			o.jobID = id
		}
	}
}

// WithAttempts carries a prior attempt count onto the job, used when a
// failed job is re-enqueued for a backoff retry.
func WithAttempts(n int) AddOption {
	return func(o *addOptions) {
		if n > 0 {
			o.attempts = n
		}
	}
}

// WithMaxAttempts overrides the default retry budget carried on the job.
func WithMaxAttempts(n int) AddOption {
	return func(o *addOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// buildJob normalizes an Add call into the wire-shape Job. now is the
// queue's clock reading for this call.
func buildJob(queue string, payload any, now time.Time, defaultMaxAttempts int, opts []AddOption) (Job, error) {
	if queue == "" {
		return Job{}, ErrQueueNameEmpty
	}
	if payload == nil {
		return Job{}, ErrPayloadNil
	}

	options := &addOptions{maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(options)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("%w: payload of type %T: %w", ErrPayloadMarshal, payload, err)
	}

	id := options.jobID
	if id == "" {
		id = NewID()
	}

	enqueuedAt := now.UnixMilli()
	readyAt := enqueuedAt
	if !options.readyAt.IsZero() {
		readyAt = options.readyAt.UnixMilli()
	} else if options.delay > 0 {
		readyAt = now.Add(options.delay).UnixMilli()
	}
	if readyAt < enqueuedAt {
		// Past-due schedules are treated as immediate.
		readyAt = enqueuedAt
	}

	return Job{
		ID:          id,
		Queue:       queue,
		Data:        data,
		EnqueuedAt:  enqueuedAt,
		ReadyAt:     readyAt,
		Attempts:    options.attempts,
		MaxAttempts: options.maxAttempts,
	}, nil
}
