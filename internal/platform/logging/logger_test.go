package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/pscheid92/moonwatch/internal/platform/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_JSONFormatCarriesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")

	ctx := correlation.WithID(context.Background(), "cafe0001")
	logger.InfoContext(ctx, "Broadcasting position", "message", `RA: 01:00:00, DEC: +01° 00' 00"`)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "Broadcasting position", record["msg"])
	assert.Equal(t, "cafe0001", record["correlation_id"])
	assert.Equal(t, `RA: 01:00:00, DEC: +01° 00' 00"`, record["message"])
}

func TestNew_LevelFiltersRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "text")

	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestInitLogger_InstallsDefault(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	InitLogger("debug", "json")

	assert.NotSame(t, previous, slog.Default())
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
	assert.IsType(t, &correlation.Handler{}, slog.Default().Handler())
}
