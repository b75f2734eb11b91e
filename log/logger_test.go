package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Level
	}{
		{"debug level", "debug", LevelDebug},
		{"info level", "info", LevelInfo},
		{"warn level", "warn", LevelWarn},
		{"warning alias", "warning", LevelWarn},
		{"error level", "error", LevelError},
		{"none", "none", LevelNone},
		{"uppercase", "DEBUG", LevelDebug},
		{"mixed case", "WaRn", LevelWarn},
		{"invalid level", "invalid", defaultLevel},
		{"empty string", "", defaultLevel},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, LevelFromString(tc.input))
		})
	}
}

func TestNullLogger(t *testing.T) {
	logger := NewNullLogger()
	logger.Debug("debug message", "key", "value")
	logger.Error("error message", "key", "value")
	require.IsType(t, &NullLogger{}, logger.With("context", "value"))
	require.IsType(t, &NullLogger{}, OrNull(nil))
	require.Equal(t, Logger(logger), OrNull(logger))
}

func TestStructuredLoggerWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOptions(Options{Writer: &buf, Level: LevelInfo})

	logger.Debug("hidden")
	logger.Info("visible", "execution_id", "e1")
	logger.With("component", "store").Warn("warned")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "visible")
	require.Contains(t, out, "execution_id=e1")
	require.Contains(t, out, "component=store")
	require.Contains(t, out, "caller=")
}

func TestStructuredLoggerNone(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOptions(Options{Writer: &buf, Level: LevelNone})
	logger.Error("nope")
	require.Empty(t, buf.String())
}

func TestContextFunctions(t *testing.T) {
	logger := NewNullLogger()

	ctx := WithLogger(context.Background(), logger)
	require.Equal(t, Logger(logger), Ctx(ctx))

	emptyLogger := Ctx(context.Background())
	require.IsType(t, &StructuredLogger{}, emptyLogger)
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	rec.Debug("debug message")
	rec.With("key", "value").Warn("warn message", "n", 1)
	rec.Error("error message")

	records := rec.Records()
	require.Len(t, records, 3)
	require.Equal(t, "warn message", records[1].Message)
	require.Equal(t, []any{"key", "value", "n", 1}, records[1].Args)
	require.Equal(t, []string{"warn message", "error message"}, rec.Messages(LevelWarn))
}
