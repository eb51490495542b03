package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"verbose", InfoLevel},
		{"", InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(New(WarnLevel, "json", zapcore.AddSync(&buf)))
	t.Cleanup(func() { SetDefault(nil) })

	Debug("hidden %d", 1)
	Info("hidden %d", 2)
	Warn("shown %d", 3)
	Error("shown %d", 4)
	Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "shown 3", entry["msg"])
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(New(DebugLevel, "text", zapcore.AddSync(&buf)))
	t.Cleanup(func() { SetDefault(nil) })

	Debug("instrument %s skipped", "MOAT")
	Sync()

	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "instrument MOAT skipped")
	assert.Contains(t, out, "logger_test.go")
}

func TestUninitializedIsNoop(t *testing.T) {
	SetDefault(nil)
	assert.NotPanics(t, func() {
		Info("nothing %s", "here")
		Sync()
	})
}
