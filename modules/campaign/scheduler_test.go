package campaign_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dripkit/modules/campaign"
	"github.com/dmitrymomot/dripkit/pkg/delayq"
	"github.com/dmitrymomot/dripkit/pkg/email"
)

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

type mockSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (m *mockSender) Send(ctx context.Context, msg email.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return delayq.NewID(), nil
}

func (m *mockSender) Sent() []email.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]email.Message(nil), m.sent...)
}

func newQueueRouter(t *testing.T, clock *fakeClock) *delayq.Router {
	t.Helper()
	q, err := delayq.NewMemoryQueue(delayq.WithMemoryClock(clock.Now))
	require.NoError(t, err)
	r, err := delayq.NewRouter(q)
	require.NoError(t, err)
	return r
}

func seedCampaign(store *campaign.MemoryStore, status campaign.Status) campaign.Campaign {
	c := campaign.Campaign{
		ID:             "cmp-1",
		BrandID:        "brand-1",
		Status:         status,
		Subject:        "Launch day",
		FromName:       "Acme",
		FromEmail:      "hello@acme.test",
		BodyHTML:       "<h1>We launched</h1>",
		ContactListIDs: []string{"list-1"},
	}
	store.PutCampaign(c)
	store.PutRecipients("list-1",
		campaign.Recipient{ContactID: "ct-1", Email: "one@example.com"},
		campaign.Recipient{ContactID: "ct-2", Email: "two@example.com"},
	)
	return c
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := [][2]campaign.Status{
		{campaign.StatusDraft, campaign.StatusScheduled},
		{campaign.StatusDraft, campaign.StatusQueued},
		{campaign.StatusScheduled, campaign.StatusQueued},
		{campaign.StatusQueued, campaign.StatusSending},
		{campaign.StatusQueued, campaign.StatusPaused},
		{campaign.StatusSending, campaign.StatusSent},
		{campaign.StatusSending, campaign.StatusPaused},
		{campaign.StatusPaused, campaign.StatusQueued},
		{campaign.StatusFailed, campaign.StatusQueued},
		{campaign.StatusSending, campaign.StatusFailed},
		{campaign.StatusDraft, campaign.StatusFailed},
	}
	for _, tr := range allowed {
		assert.True(t, campaign.CanTransition(tr[0], tr[1]), "%s → %s", tr[0], tr[1])
	}

	denied := [][2]campaign.Status{
		{campaign.StatusSent, campaign.StatusQueued},
		{campaign.StatusSent, campaign.StatusFailed},
		{campaign.StatusDraft, campaign.StatusSending},
		{campaign.StatusScheduled, campaign.StatusSent},
		{campaign.StatusFailed, campaign.StatusFailed},
	}
	for _, tr := range denied {
		assert.False(t, campaign.CanTransition(tr[0], tr[1]), "%s → %s", tr[0], tr[1])
	}
}

func TestScheduler_Schedule(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("future send sits in the delayed tier", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		store := campaign.NewMemoryStore()
		router := newQueueRouter(t, clock)
		seedCampaign(store, campaign.StatusDraft)

		s, err := campaign.NewScheduler(store, router, campaign.WithSchedulerClock(clock.Now))
		require.NoError(t, err)

		at := clock.Now().Add(2 * time.Second)
		require.NoError(t, s.Schedule(ctx, "cmp-1", at))

		c, err := store.GetCampaign(ctx, "cmp-1")
		require.NoError(t, err)
		assert.Equal(t, campaign.StatusScheduled, c.Status)
		require.NotNil(t, c.ScheduledAt)
		assert.True(t, c.ScheduledAt.Equal(at))

		// Not due yet.
		job, err := router.Queue(delayq.QueueCampaignScheduler).Pop(ctx)
		require.NoError(t, err)
		assert.Nil(t, job)

		clock.Advance(2 * time.Second)
		job, err = router.Queue(delayq.QueueCampaignScheduler).Pop(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)

		// Exactly once.
		job, err = router.Queue(delayq.QueueCampaignScheduler).Pop(ctx)
		require.NoError(t, err)
		assert.Nil(t, job)
	})

	t.Run("past due time is treated as immediate", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		store := campaign.NewMemoryStore()
		router := newQueueRouter(t, clock)
		seedCampaign(store, campaign.StatusDraft)

		s, err := campaign.NewScheduler(store, router, campaign.WithSchedulerClock(clock.Now))
		require.NoError(t, err)

		require.NoError(t, s.Schedule(ctx, "cmp-1", clock.Now().Add(-time.Hour)))

		job, err := router.Queue(delayq.QueueCampaignScheduler).Pop(ctx)
		require.NoError(t, err)
		assert.NotNil(t, job)
	})

	t.Run("re-scheduling moves the pending job instead of duplicating", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		store := campaign.NewMemoryStore()
		router := newQueueRouter(t, clock)
		seedCampaign(store, campaign.StatusDraft)

		s, err := campaign.NewScheduler(store, router, campaign.WithSchedulerClock(clock.Now))
		require.NoError(t, err)

		require.NoError(t, s.Schedule(ctx, "cmp-1", clock.Now().Add(time.Hour)))
		require.NoError(t, s.Schedule(ctx, "cmp-1", clock.Now().Add(2*time.Hour)))

		delayed, err := router.Queue(delayq.QueueCampaignScheduler).DelayedCount(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, delayed)

		// The first due time was superseded; nothing fires at it.
		clock.Advance(time.Hour + time.Minute)
		job, err := router.Queue(delayq.QueueCampaignScheduler).Pop(ctx)
		require.NoError(t, err)
		require.Nil(t, job, "rescheduled campaign must not fire at the old time")

		clock.Advance(time.Hour)
		job, err = router.Queue(delayq.QueueCampaignScheduler).Pop(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)

		job, err = router.Queue(delayq.QueueCampaignScheduler).Pop(ctx)
		require.NoError(t, err)
		assert.Nil(t, job)
	})

	t.Run("cannot schedule a sending campaign", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		store := campaign.NewMemoryStore()
		router := newQueueRouter(t, clock)
		seedCampaign(store, campaign.StatusSending)

		s, err := campaign.NewScheduler(store, router, campaign.WithSchedulerClock(clock.Now))
		require.NoError(t, err)

		err = s.Schedule(ctx, "cmp-1", clock.Now().Add(time.Hour))
		require.ErrorIs(t, err, campaign.ErrInvalidTransition)
	})
}

func TestScheduler_SendNow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("queues immediately with a recipient snapshot", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		store := campaign.NewMemoryStore()
		router := newQueueRouter(t, clock)
		seedCampaign(store, campaign.StatusDraft)

		s, err := campaign.NewScheduler(store, router, campaign.WithSchedulerClock(clock.Now))
		require.NoError(t, err)
		require.NoError(t, s.SendNow(ctx, "cmp-1"))

		c, err := store.GetCampaign(ctx, "cmp-1")
		require.NoError(t, err)
		assert.Equal(t, campaign.StatusQueued, c.Status)

		job, err := router.Queue(delayq.QueueCampaignSends).Pop(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)

		var p struct {
			CampaignID string `json:"campaign_id"`
			Offset     int    `json:"offset"`
			Total      int    `json:"total"`
		}
		require.NoError(t, job.Unmarshal(&p))
		assert.Equal(t, "cmp-1", p.CampaignID)
		assert.Zero(t, p.Offset)
		assert.Equal(t, 2, p.Total)
	})

	t.Run("rejects empty audience", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		store := campaign.NewMemoryStore()
		router := newQueueRouter(t, clock)
		store.PutCampaign(campaign.Campaign{
			ID: "cmp-1", Status: campaign.StatusDraft, ContactListIDs: []string{"empty"},
		})

		s, err := campaign.NewScheduler(store, router, campaign.WithSchedulerClock(clock.Now))
		require.NoError(t, err)
		require.ErrorIs(t, s.SendNow(ctx, "cmp-1"), campaign.ErrNoRecipients)
	})
}

func TestScheduler_PauseResume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clock := newFakeClock()
	store := campaign.NewMemoryStore()
	router := newQueueRouter(t, clock)
	seedCampaign(store, campaign.StatusSending)

	s, err := campaign.NewScheduler(store, router, campaign.WithSchedulerClock(clock.Now))
	require.NoError(t, err)

	require.NoError(t, s.Pause(ctx, "cmp-1"))
	c, err := store.GetCampaign(ctx, "cmp-1")
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusPaused, c.Status)

	// Pausing twice is rejected against the persisted status.
	require.ErrorIs(t, s.Pause(ctx, "cmp-1"), campaign.ErrInvalidTransition)

	require.NoError(t, s.Resume(ctx, "cmp-1"))
	c, err = store.GetCampaign(ctx, "cmp-1")
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusQueued, c.Status)

	ready, err := router.Queue(delayq.QueueCampaignSends).Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, ready)
}
