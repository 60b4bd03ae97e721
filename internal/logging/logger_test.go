package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{" Error ", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "input %q", tt.in)
	}
}

func TestJSONOutputIncludesComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: LevelDebug, Format: "json", Output: &buf})

	logger.WithComponent("mqtt").Info(context.Background(), "connected", "broker", "tcp://localhost:1883")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "connected", entry["msg"])
	assert.Equal(t, "mqtt", entry["component"])
	assert.Equal(t, "tcp://localhost:1883", entry["broker"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: LevelWarn, Format: "text", Output: &buf})

	logger.Debug(context.Background(), "dropped")
	logger.Info(context.Background(), "dropped too")
	assert.Zero(t, buf.Len())

	logger.Warn(context.Background(), errors.New("boom"), "kept")
	assert.Contains(t, buf.String(), "kept")
	assert.Contains(t, buf.String(), "boom")
}

func TestWithCarriesFieldsForward(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: LevelDebug, Format: "json", Output: &buf})

	scoped := logger.With("device", "lobby-1")
	scoped.Info(context.Background(), "command sent", "command", "refresh")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "lobby-1", entry["device"])
	assert.Equal(t, "refresh", entry["command"])
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "****", Redact("short"))
	assert.Equal(t, "ghp_…yz", Redact("ghp_abcdefghixyz"))
}
