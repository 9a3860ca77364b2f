package sequence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dripkit/modules/dispatch"
	"github.com/dmitrymomot/dripkit/modules/sequence"
	"github.com/dmitrymomot/dripkit/pkg/delayq"
)

func newStepFixture(t *testing.T, clock *fakeClock) (*sequence.MemoryStore, *delayq.Router, *mockSender, *sequence.Engine, *dispatch.Dispatcher) {
	t.Helper()

	store := sequence.NewMemoryStore()
	router := newQueueRouter(t, clock)
	sender := &mockSender{}

	engine, err := sequence.NewEngine(store, router, sequence.WithEngineClock(clock.Now))
	require.NoError(t, err)

	handler, err := sequence.NewStepHandler(store, router, sender,
		sequence.WithStepHandlerClock(clock.Now))
	require.NoError(t, err)

	d, err := dispatch.New(router)
	require.NoError(t, err)
	require.NoError(t, d.Register(handler, handler.Exhausted()))

	return store, router, sender, engine, d
}

func TestStepHandler_Traversal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clock := newFakeClock()
	store, _, sender, engine, d := newStepFixture(t, clock)
	seedSequence(store, sequence.SequenceActive, twoSteps()...)
	store.PutContact(sequence.Contact{ID: "ct-1", Email: "one@example.com", Status: sequence.ContactActive})

	created, err := engine.Enroll(ctx, "seq-1", "ct-1")
	require.NoError(t, err)
	require.True(t, created)

	// Step 0 executes immediately.
	require.NoError(t, d.Dispatch(ctx, delayq.QueueSequenceSteps))
	require.Len(t, sender.Sent(), 1)
	assert.Equal(t, "Welcome", sender.Sent()[0].Subject)

	enr, ok := store.EnrollmentByPair("seq-1", "ct-1")
	require.True(t, ok)
	assert.Equal(t, sequence.EnrollmentActive, enr.Status, "enrollment stays active between steps")
	assert.Equal(t, 1, enr.CurrentStep)

	// Step 1 is gated behind its one-day delay.
	require.NoError(t, d.Dispatch(ctx, delayq.QueueSequenceSteps))
	assert.Len(t, sender.Sent(), 1, "day-two email must not fire early")

	clock.Advance(24 * time.Hour)
	require.NoError(t, d.Dispatch(ctx, delayq.QueueSequenceSteps))
	require.Len(t, sender.Sent(), 2)
	assert.Equal(t, "Day two", sender.Sent()[1].Subject)

	enr, ok = store.EnrollmentByPair("seq-1", "ct-1")
	require.True(t, ok)
	assert.Equal(t, sequence.EnrollmentCompleted, enr.Status, "last step completes the enrollment")
	assert.NotNil(t, enr.CompletedAt)

	// Steps executed strictly in order index.
	sends := store.StepSends()
	require.Len(t, sends, 2)
	assert.Equal(t, 0, sends[0].StepIndex)
	assert.Equal(t, 1, sends[1].StepIndex)
}

func TestStepHandler_IneligibleContact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clock := newFakeClock()
	store, _, sender, engine, d := newStepFixture(t, clock)
	seedSequence(store, sequence.SequenceActive, twoSteps()...)
	store.PutContact(sequence.Contact{ID: "ct-1", Email: "one@example.com", Status: sequence.ContactActive})

	created, err := engine.Enroll(ctx, "seq-1", "ct-1")
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, d.Dispatch(ctx, delayq.QueueSequenceSteps))
	require.Len(t, sender.Sent(), 1)

	// The contact unsubscribes during step 1's delay window.
	store.PutContact(sequence.Contact{ID: "ct-1", Email: "one@example.com", Status: sequence.ContactUnsubscribed})

	clock.Advance(24 * time.Hour)
	require.NoError(t, d.Dispatch(ctx, delayq.QueueSequenceSteps))
	assert.Len(t, sender.Sent(), 1, "no send to an unsubscribed contact")

	enr, ok := store.EnrollmentByPair("seq-1", "ct-1")
	require.True(t, ok)
	assert.Equal(t, sequence.EnrollmentUnsubscribed, enr.Status)
}

func TestStepHandler_TerminalEnrollmentSkips(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clock := newFakeClock()
	store, router, sender, engine, d := newStepFixture(t, clock)
	seedSequence(store, sequence.SequenceActive, twoSteps()...)
	store.PutContact(sequence.Contact{ID: "ct-1", Email: "one@example.com", Status: sequence.ContactActive})

	created, err := engine.Enroll(ctx, "seq-1", "ct-1")
	require.NoError(t, err)
	require.True(t, created)

	enr, ok := store.EnrollmentByPair("seq-1", "ct-1")
	require.True(t, ok)
	require.NoError(t, store.UnsubscribeEnrollment(ctx, enr.ID))

	// The pending step job finds a terminal enrollment and drops.
	require.NoError(t, d.Dispatch(ctx, delayq.QueueSequenceSteps))
	assert.Empty(t, sender.Sent())

	delayed, err := router.Queue(delayq.QueueSequenceSteps).DelayedCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, delayed, "skipped jobs are not retried")
}

func TestStepHandler_MissingEnrollment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clock := newFakeClock()
	_, router, sender, _, d := newStepFixture(t, clock)

	_, err := router.Queue(delayq.QueueSequenceSteps).Add(ctx,
		map[string]any{"enrollment_id": "ghost", "step_index": 0})
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(ctx, delayq.QueueSequenceSteps))
	assert.Empty(t, sender.Sent())

	delayed, err := router.Queue(delayq.QueueSequenceSteps).DelayedCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, delayed, "integrity failures are not retried")
}
