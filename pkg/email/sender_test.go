package email_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dripkit/pkg/email"
)

func validMessage() email.Message {
	return email.Message{
		From:     "news@example.com",
		FromName: "Example News",
		To:       "reader@example.com",
		ReplyTo:  "support@example.com",
		Subject:  "Welcome",
		BodyHTML: "<p>Hello</p>",
		Tag:      "welcome",
	}
}

func TestMessage_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid message", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, validMessage().Validate())
	})

	t.Run("rejects bad fields", func(t *testing.T) {
		t.Parallel()

		for name, mutate := range map[string]func(*email.Message){
			"missing from":    func(m *email.Message) { m.From = "" },
			"bad from":        func(m *email.Message) { m.From = "not-an-email" },
			"missing to":      func(m *email.Message) { m.To = "" },
			"bad reply-to":    func(m *email.Message) { m.ReplyTo = "nope" },
			"missing subject": func(m *email.Message) { m.Subject = "" },
			"missing body":    func(m *email.Message) { m.BodyHTML = "" },
		} {
			t.Run(name, func(t *testing.T) {
				msg := validMessage()
				mutate(&msg)
				assert.ErrorIs(t, msg.Validate(), email.ErrInvalidMessage)
			})
		}
	})
}

func TestNewPostmarkSender_ConfigValidation(t *testing.T) {
	t.Parallel()

	_, err := email.NewPostmarkSender(email.Config{})
	assert.ErrorIs(t, err, email.ErrInvalidConfig)

	_, err = email.NewPostmarkSender(email.Config{PostmarkServerToken: "server"})
	assert.ErrorIs(t, err, email.ErrInvalidConfig)

	s, err := email.NewPostmarkSender(email.Config{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
	})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestDevSender(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sender := email.NewDevSender(filepath.Join(dir, "emails"))

	id, err := sender.Send(context.Background(), validMessage())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := os.ReadDir(filepath.Join(dir, "emails"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var htmlFile, jsonFile string
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".html"):
			htmlFile = e.Name()
		case strings.HasSuffix(e.Name(), ".json"):
			jsonFile = e.Name()
		}
	}
	require.NotEmpty(t, htmlFile)
	require.NotEmpty(t, jsonFile)

	body, err := os.ReadFile(filepath.Join(dir, "emails", htmlFile))
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello</p>", string(body))

	raw, err := os.ReadFile(filepath.Join(dir, "emails", jsonFile))
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, id, meta["message_id"])
	assert.Equal(t, "reader@example.com", meta["to"])

	t.Run("invalid message rejected", func(t *testing.T) {
		msg := validMessage()
		msg.To = ""
		_, err := sender.Send(context.Background(), msg)
		assert.ErrorIs(t, err, email.ErrInvalidMessage)
	})
}
