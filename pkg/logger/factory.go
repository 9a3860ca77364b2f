// Package logger builds log/slog loggers the delivery engines share:
// JSON for production aggregation, text for development, with static
// attributes stamped on every record.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Format represents logger output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds logger configuration read from the environment.
type Config struct {
	Level  slog.Level `env:"LOG_LEVEL" envDefault:"info"`
	Format Format     `env:"LOG_FORMAT" envDefault:"json"`
}

// Option configures logger creation.
type Option func(*settings)

type settings struct {
	level  slog.Level
	format Format
	output io.Writer
	attrs  []slog.Attr
}

// WithLevel sets the minimum level.
func WithLevel(l slog.Level) Option {
	return func(s *settings) { s.level = l }
}

// WithFormat sets the output format. Unknown formats fall back to JSON
// rather than failing, since losing logs is worse than losing pretty logs.
func WithFormat(f Format) Option {
	return func(s *settings) { s.format = f }
}

// WithOutput sets a custom output destination, ignoring nil writers.
func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.output = w
		}
	}
}

// WithAttr adds static attributes to every log record.
func WithAttr(attrs ...slog.Attr) Option {
	return func(s *settings) { s.attrs = append(s.attrs, attrs...) }
}

// New creates a slog.Logger with the given options. Defaults are JSON
// output to stderr at info level.
func New(opts ...Option) *slog.Logger {
	s := &settings{
		level:  slog.LevelInfo,
		format: FormatJSON,
		output: os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}

	handlerOpts := &slog.HandlerOptions{Level: s.level}

	var handler slog.Handler
	switch s.format {
	case FormatText:
		handler = slog.NewTextHandler(s.output, handlerOpts)
	default:
		handler = slog.NewJSONHandler(s.output, handlerOpts)
	}

	if len(s.attrs) > 0 {
		handler = handler.WithAttrs(s.attrs)
	}
	return slog.New(handler)
}

// NewFromConfig creates a logger from environment-driven configuration
// with the service name stamped on every record.
func NewFromConfig(cfg Config, service string) *slog.Logger {
	opts := []Option{WithLevel(cfg.Level), WithFormat(cfg.Format)}
	if service != "" {
		opts = append(opts, WithAttr(slog.String("service", service)))
	}
	return New(opts...)
}
