package dispatch

import "errors"

var (
	// ErrRouterNil is returned when a nil queue router is provided.
	ErrRouterNil = errors.New("queue router cannot be nil")

	// ErrHandlerNil is returned when registering a nil handler.
	ErrHandlerNil = errors.New("handler cannot be nil")

	// ErrHandlerExists is returned when two handlers claim one queue.
	ErrHandlerExists = errors.New("handler already registered for queue")

	// ErrNoHandler is returned when dispatching a queue nobody handles.
	ErrNoHandler = errors.New("no handler registered for queue")

	// ErrSkip classifies a precondition-not-met outcome: the job's work
	// is no longer applicable (contact ineligible, campaign paused,
	// duplicate enrollment). Skipped jobs are dropped without retry and
	// without being treated as failures.
	ErrSkip = errors.New("job skipped: precondition not met")

	// ErrIntegrity classifies a data integrity failure: a referenced
	// record is missing or malformed. Retrying cannot help, so the job
	// is terminally failed and logged for operator attention.
	ErrIntegrity = errors.New("job failed: data integrity error")
)
