package delayq_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dripkit/pkg/delayq"
)

// fakeClock is a manually-advanced clock for deterministic delay tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testPayload struct {
	Name string `json:"name"`
}

func TestMemoryQueue_FIFO(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, err := delayq.NewMemoryQueue()
	require.NoError(t, err)

	_, err = q.Add(ctx, "jobs", testPayload{Name: "A"})
	require.NoError(t, err)
	_, err = q.Add(ctx, "jobs", testPayload{Name: "B"})
	require.NoError(t, err)

	first, err := q.Pop(ctx, "jobs")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := q.Pop(ctx, "jobs")
	require.NoError(t, err)
	require.NotNil(t, second)

	var p testPayload
	require.NoError(t, first.Unmarshal(&p))
	assert.Equal(t, "A", p.Name)
	require.NoError(t, second.Unmarshal(&p))
	assert.Equal(t, "B", p.Name)

	empty, err := q.Pop(ctx, "jobs")
	require.NoError(t, err)
	assert.Nil(t, empty, "empty queue is a normal outcome, not an error")
}

func TestMemoryQueue_DelayHonored(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	q, err := delayq.NewMemoryQueue(delayq.WithMemoryClock(clock.Now))
	require.NoError(t, err)

	job, err := q.Add(ctx, "jobs", testPayload{Name: "later"}, delayq.WithDelay(2*time.Second))
	require.NoError(t, err)
	assert.True(t, job.Delayed())

	// Not ready before the delay elapses.
	got, err := q.Pop(ctx, "jobs")
	require.NoError(t, err)
	assert.Nil(t, got)

	clock.Advance(1999 * time.Millisecond)
	got, err = q.Pop(ctx, "jobs")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Ready once the due time passes, returned exactly once.
	clock.Advance(time.Millisecond)
	got, err = q.Pop(ctx, "jobs")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)

	got, err = q.Pop(ctx, "jobs")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryQueue_PromoteOrdering(t *testing.T) {
	t.Parallel()

	popNames := func(t *testing.T, q *delayq.MemoryQueue) []string {
		t.Helper()
		var names []string
		for {
			job, err := q.Pop(context.Background(), "jobs")
			require.NoError(t, err)
			if job == nil {
				return names
			}
			var p testPayload
			require.NoError(t, job.Unmarshal(&p))
			names = append(names, p.Name)
		}
	}

	seed := func(t *testing.T, q *delayq.MemoryQueue, clock *fakeClock) {
		t.Helper()
		ctx := context.Background()
		_, err := q.Add(ctx, "jobs", testPayload{Name: "delayed"}, delayq.WithDelay(time.Second))
		require.NoError(t, err)
		_, err = q.Add(ctx, "jobs", testPayload{Name: "organic"})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	t.Run("oldest first pops promoted job before organic", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		q, err := delayq.NewMemoryQueue(
			delayq.WithMemoryClock(clock.Now),
			delayq.WithMemoryPromoteOrder(delayq.PromoteOldestFirst),
		)
		require.NoError(t, err)

		seed(t, q, clock)
		assert.Equal(t, []string{"delayed", "organic"}, popNames(t, q))
	})

	t.Run("newest first pops organic job before promoted", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		q, err := delayq.NewMemoryQueue(
			delayq.WithMemoryClock(clock.Now),
			delayq.WithMemoryPromoteOrder(delayq.PromoteNewestFirst),
		)
		require.NoError(t, err)

		seed(t, q, clock)
		assert.Equal(t, []string{"organic", "delayed"}, popNames(t, q))
	})
}

func TestMemoryQueue_CountExcludesDelayed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	q, err := delayq.NewMemoryQueue(delayq.WithMemoryClock(clock.Now))
	require.NoError(t, err)

	_, err = q.Add(ctx, "jobs", testPayload{Name: "ready"})
	require.NoError(t, err)
	_, err = q.Add(ctx, "jobs", testPayload{Name: "gated"}, delayq.WithDelay(time.Minute))
	require.NoError(t, err)

	ready, err := q.Count(ctx, "jobs")
	require.NoError(t, err)
	assert.EqualValues(t, 1, ready)

	delayed, err := q.DelayedCount(ctx, "jobs")
	require.NoError(t, err)
	assert.EqualValues(t, 1, delayed)
}

func TestMemoryQueue_IdempotentAdd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, err := delayq.NewMemoryQueue()
	require.NoError(t, err)

	id := delayq.DeterministicID("campaign", "c-1")
	_, err = q.Add(ctx, "jobs", testPayload{Name: "once"}, delayq.WithJobID(id))
	require.NoError(t, err)
	_, err = q.Add(ctx, "jobs", testPayload{Name: "once"}, delayq.WithJobID(id))
	require.NoError(t, err)

	n, err := q.Count(ctx, "jobs")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "re-adding the same job ID must not duplicate work")

	// After the job is popped, the ID may be reused for a fresh attempt.
	job, err := q.Pop(ctx, "jobs")
	require.NoError(t, err)
	require.NotNil(t, job)

	_, err = q.Add(ctx, "jobs", testPayload{Name: "retry"}, delayq.WithJobID(id))
	require.NoError(t, err)
	n, err = q.Count(ctx, "jobs")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMemoryQueue_ReaddMovesDueTime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("re-added delay postpones the job", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		q, err := delayq.NewMemoryQueue(delayq.WithMemoryClock(clock.Now))
		require.NoError(t, err)

		id := delayq.DeterministicID("campaign", "c-1")
		_, err = q.Add(ctx, "jobs", testPayload{Name: "first"},
			delayq.WithJobID(id), delayq.WithDelay(time.Hour))
		require.NoError(t, err)
		_, err = q.Add(ctx, "jobs", testPayload{Name: "moved"},
			delayq.WithJobID(id), delayq.WithDelay(3*time.Hour))
		require.NoError(t, err)

		// The original due time no longer applies.
		clock.Advance(time.Hour + time.Minute)
		got, err := q.Pop(ctx, "jobs")
		require.NoError(t, err)
		require.Nil(t, got, "job must not fire at its superseded due time")

		delayed, err := q.DelayedCount(ctx, "jobs")
		require.NoError(t, err)
		assert.EqualValues(t, 1, delayed)

		clock.Advance(2 * time.Hour)
		got, err = q.Pop(ctx, "jobs")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, id, got.ID)

		var p testPayload
		require.NoError(t, got.Unmarshal(&p))
		assert.Equal(t, "moved", p.Name, "re-add must carry the latest payload")

		got, err = q.Pop(ctx, "jobs")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("re-add without delay makes a delayed job immediate", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		q, err := delayq.NewMemoryQueue(delayq.WithMemoryClock(clock.Now))
		require.NoError(t, err)

		id := delayq.DeterministicID("campaign", "c-2")
		_, err = q.Add(ctx, "jobs", testPayload{Name: "later"},
			delayq.WithJobID(id), delayq.WithDelay(time.Hour))
		require.NoError(t, err)
		_, err = q.Add(ctx, "jobs", testPayload{Name: "now"}, delayq.WithJobID(id))
		require.NoError(t, err)

		delayed, err := q.DelayedCount(ctx, "jobs")
		require.NoError(t, err)
		assert.Zero(t, delayed)

		got, err := q.Pop(ctx, "jobs")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, id, got.ID)
	})
}

func TestMemoryQueue_NoLoss(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	q, err := delayq.NewMemoryQueue(delayq.WithMemoryClock(clock.Now))
	require.NoError(t, err)

	added := map[string]bool{}
	for i := range 20 {
		opts := []delayq.AddOption{}
		if i%3 == 0 {
			opts = append(opts, delayq.WithDelay(time.Duration(i)*time.Second))
		}
		job, err := q.Add(ctx, "jobs", testPayload{Name: "n"}, opts...)
		require.NoError(t, err)
		added[job.ID] = false
	}

	clock.Advance(time.Minute)
	for {
		job, err := q.Pop(ctx, "jobs")
		require.NoError(t, err)
		if job == nil {
			break
		}
		assert.False(t, added[job.ID], "job %s popped twice", job.ID)
		added[job.ID] = true
	}

	for id, popped := range added {
		assert.True(t, popped, "job %s was never returned", id)
	}
}

func TestMemoryQueue_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, err := delayq.NewMemoryQueue()
	require.NoError(t, err)

	_, err = q.Add(ctx, "", testPayload{})
	assert.ErrorIs(t, err, delayq.ErrQueueNameEmpty)

	_, err = q.Add(ctx, "jobs", nil)
	assert.ErrorIs(t, err, delayq.ErrPayloadNil)

	_, err = q.Pop(ctx, "")
	assert.ErrorIs(t, err, delayq.ErrQueueNameEmpty)

	_, err = delayq.NewMemoryQueue(delayq.WithMemoryPromoteOrder("sideways"))
	assert.ErrorIs(t, err, delayq.ErrInvalidPromoteOrder)
}

func TestMemoryQueue_PastDueScheduleIsImmediate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	q, err := delayq.NewMemoryQueue(delayq.WithMemoryClock(clock.Now))
	require.NoError(t, err)

	job, err := q.Add(ctx, "jobs", testPayload{Name: "late"},
		delayq.WithReadyAt(clock.Now().Add(-time.Hour)))
	require.NoError(t, err)
	assert.False(t, job.Delayed())

	got, err := q.Pop(ctx, "jobs")
	require.NoError(t, err)
	require.NotNil(t, got)
}
