package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dripkit/pkg/logger"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json output with static attrs", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := logger.New(
			logger.WithOutput(&buf),
			logger.WithFormat(logger.FormatJSON),
			logger.WithAttr(slog.String("service", "dripkit")),
		)
		log.Info("hello", slog.String("queue", "campaign-sends"))

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "hello", record["msg"])
		assert.Equal(t, "dripkit", record["service"])
		assert.Equal(t, "campaign-sends", record["queue"])
	})

	t.Run("level filtering", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithLevel(slog.LevelWarn))
		log.Info("dropped")
		log.Warn("kept")

		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("text format", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatText))
		log.Info("plain")

		assert.True(t, strings.Contains(buf.String(), "msg=plain"))
	})
}
