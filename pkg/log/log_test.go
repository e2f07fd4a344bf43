package log_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/dukex/warden/pkg/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{" warning ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, log.ParseLevel(tt.in))
		})
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer

	logger := log.New(&buf, "warn").With("module", "engine")
	logger.Info("hidden")
	logger.Warn("Plan rejected by policy", "workspace_id", "guild-1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "module=engine")
	assert.Contains(t, out, "workspace_id=guild-1")
}
