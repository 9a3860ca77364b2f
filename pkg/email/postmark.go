package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

type postmarkSender struct {
	client *postmark.Client
}

// NewPostmarkSender creates a Postmark-backed Sender. Both tokens are
// required so misconfiguration fails at startup instead of at first send.
func NewPostmarkSender(cfg Config) (Sender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}

	return &postmarkSender{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
	}, nil
}

// MustNewPostmarkSender creates a Postmark sender that panics on invalid
// config, for callers that treat the provider as a hard startup dependency.
func MustNewPostmarkSender(cfg Config) Sender {
	s, err := NewPostmarkSender(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// VerifyCredentials implements CredentialVerifier by fetching the server
// the token belongs to. An API rejection means the token is invalid;
// transport failures are returned as errors so callers can tell invalid
// apart from unknown.
func (s *postmarkSender) VerifyCredentials(ctx context.Context) (bool, error) {
	_, err := s.client.GetCurrentServer(ctx)
	if err == nil {
		return true, nil
	}

	var apiErr postmark.APIError
	if errors.As(err, &apiErr) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %w", ErrCredentialCheck, err)
}

// Send implements Sender via Postmark's transactional API. Open tracking
// is enabled; link tracking covers HTML only to stay out of plain text.
func (s *postmarkSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	from := msg.From
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.From)
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       from,
		ReplyTo:    msg.ReplyTo,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.BodyHTML,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return "", errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return "", errors.Join(
			ErrSendFailed,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return resp.MessageID, nil
}
