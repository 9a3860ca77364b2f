package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DevSender implements Sender for local development. Instead of calling
// a provider it writes each message to disk as an HTML file plus a JSON
// metadata file.
type DevSender struct {
	dir string
}

// NewDevSender creates a development sender writing into dir. The
// directory is created on first send if missing.
func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir}
}

type devMetadata struct {
	MessageID string `json:"message_id"`
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	To        string `json:"to"`
	ReplyTo   string `json:"reply_to,omitempty"`
	Subject   string `json:"subject"`
	Tag       string `json:"tag,omitempty"`
}

// Send writes the message to disk and returns a generated message ID.
func (d *DevSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create directory: %v", ErrSendFailed, err)
	}

	messageID := uuid.NewString()
	now := time.Now()

	identifier := msg.Tag
	if identifier == "" {
		identifier = msg.Subject
	}
	base := fmt.Sprintf("%s_%s", now.Format("2006_01_02_150405"), sanitizeFilename(identifier))

	htmlPath := filepath.Join(d.dir, base+".html")
	if err := os.WriteFile(htmlPath, []byte(msg.BodyHTML), 0644); err != nil {
		return "", fmt.Errorf("%w: failed to write HTML file: %v", ErrSendFailed, err)
	}

	meta := devMetadata{
		MessageID: messageID,
		Timestamp: now.Format(time.RFC3339),
		From:      msg.From,
		To:        msg.To,
		ReplyTo:   msg.ReplyTo,
		Subject:   msg.Subject,
		Tag:       msg.Tag,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal metadata: %v", ErrSendFailed, err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), data, 0644); err != nil {
		return "", fmt.Errorf("%w: failed to write JSON file: %v", ErrSendFailed, err)
	}

	return messageID, nil
}

var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = sanitizeRegex.ReplaceAllString(s, "")

	const maxLength = 100
	if len(s) > maxLength {
		s = s[:maxLength]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}
