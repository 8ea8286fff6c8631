// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/gymcrm/gymcrm/pkg/errutil"
)

func newJSON(t *testing.T, level string) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := New(Options{Service: "gymcrm", Version: "1.0.0", Level: level, Writer: &buf})
	require.NoError(t, err)
	return logger, &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "not JSON: %s", buf.String())
	return entry
}

func TestNew_JSONByDefault(t *testing.T) {
	logger, buf := newJSON(t, "")
	logger.Info("user registered")

	entry := decode(t, buf)
	assert.Equal(t, "user registered", entry["msg"])
	assert.Equal(t, "gymcrm", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Service: "gymcrm", Format: "text", Writer: &buf})
	require.NoError(t, err)

	logger.Info("login")
	assert.Contains(t, buf.String(), "msg=login")
	assert.Contains(t, buf.String(), "service=gymcrm")
}

func TestNew_RejectsUnknownFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	errutil.AssertErrorCode(t, err, "LOG_FORMAT_INVALID")
}

func TestNew_Level(t *testing.T) {
	logger, buf := newJSON(t, "warn")
	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Equal(t, "kept", decode(t, buf)["msg"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("loud")
	errutil.AssertErrorCode(t, err, "LOG_LEVEL_INVALID")
}

func TestHandler_TraceContext(t *testing.T) {
	logger, buf := newJSON(t, "")

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	logger.InfoContext(ctx, "traced")

	entry := decode(t, buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_RedactsSecrets(t *testing.T) {
	logger, buf := newJSON(t, "")

	logger.With("token", "eyJhbGciOi").
		WithGroup("request").
		Info("change password",
			"username", "jdoe",
			"old_password", "hunter2",
			"New_Password", "hunter3",
			"signing_key", "0123456789abcdef",
		)

	entry := decode(t, buf)
	assert.Equal(t, Redacted, entry["token"])
	req, ok := entry["request"].(map[string]any)
	require.True(t, ok, "request group missing: %v", entry)
	assert.Equal(t, "jdoe", req["username"])
	assert.Equal(t, Redacted, req["old_password"])
	assert.Equal(t, Redacted, req["New_Password"])
	assert.Equal(t, Redacted, req["signing_key"])
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger, err := SetDefault(Options{Service: "gymcrm", Version: "2.0.0"})
	require.NoError(t, err)
	assert.Same(t, logger, slog.Default())
}
