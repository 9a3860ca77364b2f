package delayq

import "errors"

var (
	// ErrQueueNil is returned when a nil queue handle is provided.
	ErrQueueNil = errors.New("queue cannot be nil")

	// ErrQueueNameEmpty is returned when a queue name is missing.
	ErrQueueNameEmpty = errors.New("queue name cannot be empty")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload.
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrPayloadMarshal is returned when payload marshaling fails.
	ErrPayloadMarshal = errors.New("failed to marshal payload to JSON")

	// ErrEmptyPayload is returned when decoding a job without a payload.
	ErrEmptyPayload = errors.New("job has no payload")

	// ErrJobBodyMissing indicates a job ID was present in a tier but its
	// body was gone from the store. Signals data corruption, never loss
	// caused by this package.
	ErrJobBodyMissing = errors.New("job body missing from store")

	// ErrInvalidPromoteOrder is returned for an unknown promotion ordering.
	ErrInvalidPromoteOrder = errors.New("invalid promotion order")
)
