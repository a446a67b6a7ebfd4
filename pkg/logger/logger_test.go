package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorHandlerWritesLevelsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	log.Info("persisting entities", "count", 42)
	log.Error("backend unavailable")

	out := buf.String()
	assert.Contains(t, out, "persisting entities")
	assert.Contains(t, out, "count=42")
	assert.Contains(t, out, colorRed)
	assert.Contains(t, out, "backend unavailable")
}

func TestColorHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	log.Info("dropped")
	log.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestColorHandlerGroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorHandler(&buf, nil)).WithGroup("search").With("strategy", "parallel")

	log.Info("query done", "took", "12ms")

	out := buf.String()
	assert.Contains(t, out, "search.strategy=parallel")
	assert.Contains(t, out, "search.took=12ms")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
