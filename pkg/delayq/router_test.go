package delayq_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dripkit/pkg/delayq"
)

func TestRouter(t *testing.T) {
	t.Parallel()

	t.Run("nil queue rejected", func(t *testing.T) {
		t.Parallel()

		router, err := delayq.NewRouter(nil)
		assert.ErrorIs(t, err, delayq.ErrQueueNil)
		assert.Nil(t, router)
	})

	t.Run("named queues are isolated", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		q, err := delayq.NewMemoryQueue()
		require.NoError(t, err)
		router, err := delayq.NewRouter(q)
		require.NoError(t, err)

		sends := router.Queue(delayq.QueueCampaignSends)
		steps := router.Queue(delayq.QueueSequenceSteps)
		assert.Equal(t, delayq.QueueCampaignSends, sends.Name())

		_, err = sends.Add(ctx, testPayload{Name: "send"})
		require.NoError(t, err)

		job, err := steps.Pop(ctx)
		require.NoError(t, err)
		assert.Nil(t, job, "jobs must not leak across logical queues")

		job, err = sends.Pop(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, delayq.QueueCampaignSends, job.Queue)
	})

	t.Run("options pass through", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		q, err := delayq.NewMemoryQueue()
		require.NoError(t, err)
		router, err := delayq.NewRouter(q)
		require.NoError(t, err)

		sched := router.Queue(delayq.QueueCampaignScheduler)
		job, err := sched.Add(ctx, testPayload{Name: "later"},
			delayq.WithDelay(time.Minute),
			delayq.WithMaxAttempts(5),
		)
		require.NoError(t, err)
		assert.True(t, job.Delayed())
		assert.Equal(t, 5, job.MaxAttempts)

		delayed, err := sched.DelayedCount(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, delayed)
	})
}

func TestDeterministicID(t *testing.T) {
	t.Parallel()

	a := delayq.DeterministicID("campaign", "c-1")
	b := delayq.DeterministicID("campaign", "c-1")
	c := delayq.DeterministicID("campaign", "c-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEmpty(t, delayq.NewID())
	assert.NotEqual(t, delayq.NewID(), delayq.NewID())
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	base := 30 * time.Second
	max := 10 * time.Minute

	assert.Equal(t, 30*time.Second, delayq.Backoff(base, 0, max))
	assert.Equal(t, time.Minute, delayq.Backoff(base, 1, max))
	assert.Equal(t, 2*time.Minute, delayq.Backoff(base, 2, max))
	assert.Equal(t, max, delayq.Backoff(base, 10, max), "growth is capped")
	assert.Equal(t, max, delayq.Backoff(base, 63, max), "large attempts do not overflow")
	assert.Equal(t, 30*time.Second, delayq.Backoff(base, -1, max))
	assert.Equal(t, time.Duration(0), delayq.Backoff(0, 3, max))
}
