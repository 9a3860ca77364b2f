package sequence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dripkit/modules/sequence"
)

func pollerConfig() sequence.Config {
	return sequence.Config{
		PollInterval: time.Minute,
		PollLookback: 5 * time.Minute,
	}
}

func newPollerFixture(t *testing.T, clock *fakeClock) (*sequence.MemoryStore, *sequence.Poller) {
	t.Helper()

	store := sequence.NewMemoryStore()
	router := newQueueRouter(t, clock)
	engine, err := sequence.NewEngine(store, router, sequence.WithEngineClock(clock.Now))
	require.NoError(t, err)
	p, err := sequence.NewPoller(store, engine, pollerConfig(),
		sequence.WithPollerClock(clock.Now))
	require.NoError(t, err)
	return store, p
}

func TestPoller_RunOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("enrolls newly added contacts", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		store, p := newPollerFixture(t, clock)
		seedSequence(store, sequence.SequenceActive, twoSteps()...)

		store.PutContact(sequence.Contact{ID: "ct-1", Email: "one@example.com", Status: sequence.ContactActive})
		store.AddToList("list-1", "ct-1", clock.Now().Add(-time.Minute))

		require.NoError(t, p.RunOnce(ctx))

		enr, ok := store.EnrollmentByPair("seq-1", "ct-1")
		require.True(t, ok)
		assert.Equal(t, sequence.EnrollmentActive, enr.Status)
	})

	t.Run("ignores contacts added before the cursor", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		store, p := newPollerFixture(t, clock)
		seedSequence(store, sequence.SequenceActive, twoSteps()...)

		// Added an hour ago, outside the first-run lookback window.
		store.PutContact(sequence.Contact{ID: "ct-old", Email: "old@example.com", Status: sequence.ContactActive})
		store.AddToList("list-1", "ct-old", clock.Now().Add(-time.Hour))

		require.NoError(t, p.RunOnce(ctx))

		_, ok := store.EnrollmentByPair("seq-1", "ct-old")
		assert.False(t, ok)
	})

	t.Run("cursor advances even when nothing is found", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		store, p := newPollerFixture(t, clock)
		seedSequence(store, sequence.SequenceActive, twoSteps()...)

		require.NoError(t, p.RunOnce(ctx))
		first, ok, err := store.GetListCursor(ctx, "list-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, first.Equal(clock.Now()))

		clock.Advance(time.Minute)
		require.NoError(t, p.RunOnce(ctx))
		second, ok, err := store.GetListCursor(ctx, "list-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, second.After(first), "cursor is non-decreasing across cycles")
	})

	t.Run("repeated polls do not duplicate enrollments", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		store, p := newPollerFixture(t, clock)
		seedSequence(store, sequence.SequenceActive, twoSteps()...)

		store.PutContact(sequence.Contact{ID: "ct-1", Email: "one@example.com", Status: sequence.ContactActive})

		// The same membership stays inside two successive scan windows.
		store.AddToList("list-1", "ct-1", clock.Now().Add(-time.Minute))
		store.AddToList("list-1", "ct-1", clock.Now().Add(-time.Minute))

		require.NoError(t, p.RunOnce(ctx))
		require.NoError(t, p.RunOnce(ctx))

		enr, ok := store.EnrollmentByPair("seq-1", "ct-1")
		require.True(t, ok)
		assert.Equal(t, sequence.EnrollmentActive, enr.Status)
	})

	t.Run("one list's failure does not block the others", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		store := sequence.NewMemoryStore()
		router := newQueueRouter(t, clock)
		engine, err := sequence.NewEngine(store, router, sequence.WithEngineClock(clock.Now))
		require.NoError(t, err)

		failing := &failingCursorStore{MemoryStore: store, failList: "list-bad"}
		p, err := sequence.NewPoller(failing, engine, pollerConfig(),
			sequence.WithPollerClock(clock.Now))
		require.NoError(t, err)

		store.PutSequence(sequence.Sequence{
			ID: "seq-bad", Status: sequence.SequenceActive, TriggerType: sequence.TriggerList,
			TriggerListIDs: []string{"list-bad"}, FromEmail: "hello@acme.test",
		}, twoSteps()[0])
		seedSequence(store, sequence.SequenceActive, twoSteps()...)

		store.PutContact(sequence.Contact{ID: "ct-1", Email: "one@example.com", Status: sequence.ContactActive})
		store.AddToList("list-1", "ct-1", clock.Now().Add(-time.Minute))

		err = p.RunOnce(ctx)
		require.Error(t, err, "the broken list surfaces its failure")

		_, ok := store.EnrollmentByPair("seq-1", "ct-1")
		assert.True(t, ok, "healthy list is still processed")
	})
}

// failingCursorStore makes one list's contact query fail.
type failingCursorStore struct {
	*sequence.MemoryStore
	failList string
}

func (s *failingCursorStore) ListNewListContacts(ctx context.Context, listID string, since, until time.Time) ([]sequence.Contact, error) {
	if listID == s.failList {
		return nil, assert.AnError
	}
	return s.MemoryStore.ListNewListContacts(ctx, listID, since, until)
}
