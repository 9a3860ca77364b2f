package campaign

import "errors"

var (
	// ErrStoreNil is returned when a nil campaign store is provided.
	ErrStoreNil = errors.New("campaign store cannot be nil")

	// ErrRouterNil is returned when a nil queue router is provided.
	ErrRouterNil = errors.New("queue router cannot be nil")

	// ErrSenderNil is returned when a nil email sender is provided.
	ErrSenderNil = errors.New("email sender cannot be nil")

	// ErrCheckerNil is returned when a nil credential checker is provided.
	ErrCheckerNil = errors.New("credential checker cannot be nil")

	// ErrCampaignNotFound is returned when the referenced campaign does
	// not exist in the store.
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrInvalidTransition is returned when a status change is not
	// permitted from the campaign's current persisted status.
	ErrInvalidTransition = errors.New("invalid campaign status transition")

	// ErrNoRecipients is returned when a campaign targets lists that
	// resolve to zero deliverable contacts.
	ErrNoRecipients = errors.New("campaign has no recipients")
)
