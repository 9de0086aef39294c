package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/ecodata/aqsync/pkg/config"
	"github.com/ecodata/aqsync/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, logger.ParseLevel(tt.input), tt.input)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&config.LogConfig{Format: "json", Level: "info"}, &buf)

	log.Debug("hidden")
	log.Info("sync started", "mode", "full")

	out := buf.String()
	assert.NotContains(t, out, "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entry))
	assert.Equal(t, "sync started", entry["msg"])
	assert.Equal(t, "full", entry["mode"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&config.LogConfig{Format: "text", Level: "debug"}, &buf)

	log.Debug("planning", "units", 3)
	assert.True(t, strings.Contains(buf.String(), "units=3"))
}
