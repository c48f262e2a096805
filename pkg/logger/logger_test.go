package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		entries = append(entries, entry)
	}
	return entries
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"verbose", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn")

	log.Debug("dropped")
	log.Info("dropped")
	log.Warn("daily table older than intervals")
	log.Error("membership store missing")

	entries := decode(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "error", entries[1]["level"])
	assert.Equal(t, "membership store missing", entries[1]["message"])
}

func TestLevelIsPerLogger(t *testing.T) {
	var quiet, loud bytes.Buffer
	NewWithWriter(&quiet, "error").Info("dropped")
	NewWithWriter(&loud, "debug").Debug("kept")

	assert.Zero(t, quiet.Len())
	assert.Len(t, decode(t, &loud), 1)
}

func TestFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, "debug").WithField("module", "completeness")

	base.WithFields(map[string]interface{}{
		"ticker":       "AMD",
		"missing_days": 12,
	}).Info("Completeness checked")

	base.WithError(errors.New("no overlap")).Warn("Skipped ticker")

	entries := decode(t, &buf)
	require.Len(t, entries, 2)

	assert.Equal(t, "completeness", entries[0]["module"])
	assert.Equal(t, "AMD", entries[0]["ticker"])
	assert.Equal(t, float64(12), entries[0]["missing_days"])
	assert.Contains(t, entries[0], "time")

	assert.Equal(t, "completeness", entries[1]["module"])
	assert.Equal(t, "no overlap", entries[1]["error"])
	assert.NotContains(t, entries[1], "ticker", "child loggers must not leak fields into siblings")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "console", "info").Info("console message")

	out := buf.String()
	assert.Contains(t, out, "console message")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "console output is not JSON")
}

func TestNop(t *testing.T) {
	log := Nop()
	assert.NotPanics(t, func() {
		log.WithField("ticker", "AAPL").WithError(errors.New("x")).Error("ignored")
	})
}
