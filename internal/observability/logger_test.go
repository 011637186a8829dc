package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	initLogger(&buf, "info", "json")

	FromContext(context.Background()).Info("message appended", "channel_id", "general")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "message appended", entry["msg"])
	assert.Equal(t, "general", entry["channel_id"])
}

func TestInitLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	initLogger(&buf, "info", "text")

	FromContext(context.Background()).Info("hub started")

	assert.Contains(t, buf.String(), "msg=\"hub started\"")
}

func TestInitLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	initLogger(&buf, "warn", "text")

	FromContext(context.Background()).Info("ignored")
	FromContext(context.Background()).Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "ignored")
	assert.Contains(t, out, "kept")
}

func TestFromContext_AttachesIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	initLogger(&buf, "debug", "json")

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "alice")
	ctx = WithConnectionID(ctx, "conn-9")

	FromContext(ctx).Debug("joined")

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "alice", entry["user_id"])
	assert.Equal(t, "conn-9", entry["connection_id"])
}

func TestFromContext_IgnoresEmptyValues(t *testing.T) {
	var buf bytes.Buffer
	initLogger(&buf, "info", "json")

	FromContext(WithUserID(context.Background(), "")).Info("anonymous")

	assert.NotContains(t, buf.String(), "user_id")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
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
