package email

import "errors"

var (
	ErrSendFailed      = errors.New("email.errors.send_failed")
	ErrInvalidMessage  = errors.New("email.errors.invalid_message")
	ErrInvalidConfig   = errors.New("email.errors.invalid_config")
	ErrCredentialCheck = errors.New("email.errors.credential_check")
)
