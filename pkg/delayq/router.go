package delayq

import "context"

// Router hands out per-named-queue facades over one queue store handle.
// It is constructor-injected wherever the engines need to enqueue, so
// tests can swap in a MemoryQueue and multiple isolated instances can
// coexist in one process.
type Router struct {
	q Queue
}

// NewRouter creates a Router over the given queue store.
func NewRouter(q Queue) (*Router, error) {
	if q == nil {
		return nil, ErrQueueNil
	}
	return &Router{q: q}, nil
}

// Queue binds a logical queue name into a NamedQueue facade.
func (r *Router) Queue(name string) *NamedQueue {
	return &NamedQueue{name: name, q: r.q}
}

// NamedQueue exposes add/pop/count for one logical queue. It normalizes
// the job shape: any payload is marshaled to JSON and stamped with the
// queue name and timestamps by the underlying store.
type NamedQueue struct {
	name string
	q    Queue
}

// Name returns the logical queue name.
func (n *NamedQueue) Name() string { return n.name }

// Add enqueues a job on this queue.
func (n *NamedQueue) Add(ctx context.Context, payload any, opts ...AddOption) (Job, error) {
	return n.q.Add(ctx, n.name, payload, opts...)
}

// Pop returns the oldest ready job, or (nil, nil) when nothing is ready.
func (n *NamedQueue) Pop(ctx context.Context) (*Job, error) {
	return n.q.Pop(ctx, n.name)
}

// Count returns the ready-tier depth.
func (n *NamedQueue) Count(ctx context.Context) (int64, error) {
	return n.q.Count(ctx, n.name)
}

// DelayedCount returns the delayed-tier depth.
func (n *NamedQueue) DelayedCount(ctx context.Context) (int64, error) {
	return n.q.DelayedCount(ctx, n.name)
}
