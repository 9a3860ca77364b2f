package email

import (
	"context"
	"fmt"
	"regexp"
)

// Sender is the single send capability this subsystem consumes. Provider
// selection and credentials are resolved by whoever constructs the
// Sender, before any engine code runs.
type Sender interface {
	// Send delivers one email and returns the provider message ID.
	Send(ctx context.Context, msg Message) (messageID string, err error)
}

// CredentialVerifier is implemented by senders that can confirm their
// provider credentials without sending anything. Callers type-assert on
// the Sender; senders without a provider account simply don't implement
// it.
type CredentialVerifier interface {
	// VerifyCredentials reports whether the provider accepts the
	// configured credentials. A false with nil error means the provider
	// rejected them; a non-nil error means the answer is unknown.
	VerifyCredentials(ctx context.Context) (bool, error)
}

// Message is the provider-neutral send request.
type Message struct {
	From     string `json:"from"`
	FromName string `json:"from_name,omitempty"`
	To       string `json:"to"`
	ReplyTo  string `json:"reply_to,omitempty"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	Tag      string `json:"tag,omitempty"`
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Validate checks the message has the fields every provider requires.
func (m Message) Validate() error {
	if m.From == "" || !emailRegex.MatchString(m.From) {
		return fmt.Errorf("%w: From must be a valid email address", ErrInvalidMessage)
	}
	if m.To == "" || !emailRegex.MatchString(m.To) {
		return fmt.Errorf("%w: To must be a valid email address", ErrInvalidMessage)
	}
	if m.Subject == "" {
		return fmt.Errorf("%w: Subject is required", ErrInvalidMessage)
	}
	if m.BodyHTML == "" {
		return fmt.Errorf("%w: BodyHTML is required", ErrInvalidMessage)
	}
	if m.ReplyTo != "" && !emailRegex.MatchString(m.ReplyTo) {
		return fmt.Errorf("%w: ReplyTo must be a valid email address", ErrInvalidMessage)
	}
	return nil
}
