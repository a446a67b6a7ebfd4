package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasgraph/atlas/pkg/types"
)

func newTestHandler(t *testing.T) (*ParquetHandler, string) {
	t.Helper()
	dir := t.TempDir()
	next := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})
	h, err := NewParquetHandler(next, dir)
	require.NoError(t, err)
	return h, dir
}

func readRecords(t *testing.T, dir string) []LogRecord {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	require.NoError(t, err)
	var out []LogRecord
	for _, m := range matches {
		rows, err := parquet.ReadFile[LogRecord](m)
		require.NoError(t, err)
		out = append(out, rows...)
	}
	return out
}

func TestParquetHandlerPersistsErrors(t *testing.T) {
	h, dir := newTestHandler(t)
	logger := slog.New(h)

	ctx := context.WithValue(context.Background(), types.ContextKeyRequestID, "req-1")
	ctx = context.WithValue(ctx, types.ContextKeyRequestSource, "server")

	logger.ErrorContext(ctx, "backend unavailable", "backend", "neo4j")
	require.NoError(t, h.Close())

	records := readRecords(t, dir)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "ERROR", rec.Level)
	assert.Equal(t, "backend unavailable", rec.Message)
	assert.Equal(t, "req-1", rec.RequestID)
	assert.Equal(t, "server", rec.RequestSource)
	assert.Contains(t, rec.Attributes, "neo4j")
	assert.NotEmpty(t, rec.ID)
}

func TestParquetHandlerSkipsInfo(t *testing.T) {
	h, dir := newTestHandler(t)
	logger := slog.New(h)

	logger.Info("startup complete")
	logger.Warn("cache miss")
	require.NoError(t, h.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParquetHandlerFlushesFullBatch(t *testing.T) {
	h, dir := newTestHandler(t)
	h.batchSize = 3
	logger := slog.New(h)

	for i := 0; i < 3; i++ {
		logger.Error("boom")
	}

	// Batch is full, so records are on disk before Close.
	records := readRecords(t, dir)
	assert.Len(t, records, 3)
}
