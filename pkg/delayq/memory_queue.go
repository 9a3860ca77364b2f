package delayq

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryQueue implements Queue in process memory for tests and local
// development. A single mutex covers both tiers, so promotion is atomic
// by construction and a job can never be observed in neither tier.
type MemoryQueue struct {
	mu      sync.Mutex
	ready   map[string][]Job // FIFO: append at the back, pop the front
	delayed map[string][]Job // kept sorted by ReadyAt ascending
	queued  map[string]map[string]struct{}

	order       PromoteOrder
	maxAttempts int
	now         func() time.Time
}

// MemoryOption configures a MemoryQueue.
type MemoryOption func(*MemoryQueue)

// WithMemoryPromoteOrder sets the promotion ordering policy.
func WithMemoryPromoteOrder(order PromoteOrder) MemoryOption {
	return func(q *MemoryQueue) { q.order = order }
}

// WithMemoryClock injects a clock for deterministic delay tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(q *MemoryQueue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithMemoryMaxAttempts sets the retry budget stamped on new jobs.
func WithMemoryMaxAttempts(n int) MemoryOption {
	return func(q *MemoryQueue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// NewMemoryQueue creates an in-memory delay queue.
func NewMemoryQueue(opts ...MemoryOption) (*MemoryQueue, error) {
	q := &MemoryQueue{
		ready:       make(map[string][]Job),
		delayed:     make(map[string][]Job),
		queued:      make(map[string]map[string]struct{}),
		order:       PromoteOldestFirst,
		maxAttempts: 3,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	if !q.order.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPromoteOrder, q.order)
	}
	return q, nil
}

// Add enqueues a job. Re-adding a job ID that is still queued is an
// upsert, matching the Redis store: a delayed re-add moves the job's due
// time and payload, a ready re-add keeps the job's existing FIFO position.
func (q *MemoryQueue) Add(ctx context.Context, queue string, payload any, opts ...AddOption) (Job, error) {
	job, err := buildJob(queue, payload, q.now(), q.maxAttempts, opts)
	if err != nil {
		return Job{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ids, ok := q.queued[queue]
	if !ok {
		ids = make(map[string]struct{})
		q.queued[queue] = ids
	}
	if _, exists := ids[job.ID]; exists {
		if !job.Delayed() && q.inReadyLocked(queue, job.ID) {
			return job, nil
		}
		q.removeLocked(queue, job.ID)
	}
	ids[job.ID] = struct{}{}

	if job.Delayed() {
		q.delayed[queue] = append(q.delayed[queue], job)
		slices.SortStableFunc(q.delayed[queue], func(a, b Job) int {
			return cmp.Compare(a.ReadyAt, b.ReadyAt)
		})
	} else {
		q.ready[queue] = append(q.ready[queue], job)
	}
	return job, nil
}

// Pop promotes due delayed jobs then returns the oldest ready job, or
// (nil, nil) when nothing is ready.
func (q *MemoryQueue) Pop(ctx context.Context, queue string) (*Job, error) {
	if queue == "" {
		return nil, ErrQueueNameEmpty
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.promoteLocked(queue)

	jobs := q.ready[queue]
	if len(jobs) == 0 {
		return nil, nil
	}
	job := jobs[0]
	q.ready[queue] = jobs[1:]
	delete(q.queued[queue], job.ID)
	return &job, nil
}

func (q *MemoryQueue) inReadyLocked(queue, id string) bool {
	return slices.ContainsFunc(q.ready[queue], func(j Job) bool { return j.ID == id })
}

// removeLocked drops a job from both tiers. Must be called with the
// mutex held.
func (q *MemoryQueue) removeLocked(queue, id string) {
	match := func(j Job) bool { return j.ID == id }
	q.ready[queue] = slices.DeleteFunc(q.ready[queue], match)
	q.delayed[queue] = slices.DeleteFunc(q.delayed[queue], match)
}

// promoteLocked moves due delayed jobs into the ready tier. Must be
// called with the mutex held.
func (q *MemoryQueue) promoteLocked(queue string) {
	nowMs := q.now().UnixMilli()
	pending := q.delayed[queue]

	due := 0
	for due < len(pending) && pending[due].ReadyAt <= nowMs {
		due++
	}
	if due == 0 {
		return
	}

	promoted := pending[:due]
	q.delayed[queue] = pending[due:]

	switch q.order {
	case PromoteOldestFirst:
		q.ready[queue] = append(slices.Clone(promoted), q.ready[queue]...)
	default: // PromoteNewestFirst
		q.ready[queue] = append(q.ready[queue], promoted...)
	}
}

// Count returns the ready-tier depth only.
func (q *MemoryQueue) Count(ctx context.Context, queue string) (int64, error) {
	if queue == "" {
		return 0, ErrQueueNameEmpty
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ready[queue])), nil
}

// DelayedCount returns the delayed-tier depth.
func (q *MemoryQueue) DelayedCount(ctx context.Context, queue string) (int64, error) {
	if queue == "" {
		return 0, ErrQueueNameEmpty
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.delayed[queue])), nil
}
