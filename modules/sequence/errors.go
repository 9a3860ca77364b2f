package sequence

import "errors"

var (
	// ErrStoreNil is returned when a nil sequence store is provided.
	ErrStoreNil = errors.New("sequence store cannot be nil")

	// ErrRouterNil is returned when a nil queue router is provided.
	ErrRouterNil = errors.New("queue router cannot be nil")

	// ErrSenderNil is returned when a nil email sender is provided.
	ErrSenderNil = errors.New("email sender cannot be nil")

	// ErrEngineNil is returned when a nil enrollment engine is provided.
	ErrEngineNil = errors.New("enrollment engine cannot be nil")

	// ErrSequenceNotFound is returned when the referenced sequence does
	// not exist in the store.
	ErrSequenceNotFound = errors.New("sequence not found")

	// ErrEnrollmentNotFound is returned when the referenced enrollment
	// does not exist in the store.
	ErrEnrollmentNotFound = errors.New("enrollment not found")

	// ErrContactNotFound is returned when the referenced contact does
	// not exist in the store.
	ErrContactNotFound = errors.New("contact not found")

	// ErrEnrollmentExists is returned by CreateEnrollment when the
	// (sequence, contact) pair already has one. Uniqueness is enforced
	// by the store, not the caller, so concurrent creation attempts
	// cannot both win.
	ErrEnrollmentExists = errors.New("enrollment already exists for contact")

	// ErrEnrollmentNotActive is returned when mutating a terminal
	// enrollment. Terminal states are never reopened.
	ErrEnrollmentNotActive = errors.New("enrollment is not active")
)
