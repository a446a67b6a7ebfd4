package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "badger", cfg.Graph.Provider)
	assert.Equal(t, uint32(5), cfg.Breaker.MaxFailures)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 0.85, cfg.Patterns.DedupThreshold)
	assert.Equal(t, 10, cfg.Patterns.HistoryLimit)
	assert.Equal(t, 5*time.Second, cfg.Search.QueryTimeout)
	assert.False(t, cfg.Telemetry.Enabled)

	// Fusion weights must sum to one out of the box.
	require.NoError(t, cfg.Search.Weights.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ATLAS_NEO4J_URI", "bolt://graph:7687")
	t.Setenv("ATLAS_NEO4J_USERNAME", "neo4j")
	t.Setenv("ATLAS_NEO4J_PASSWORD", "secret")
	t.Setenv("ATLAS_DATA_DIR", "/var/lib/atlas")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "neo4j", cfg.Graph.Provider)
	assert.Equal(t, "bolt://graph:7687", cfg.Graph.URI)
	assert.Equal(t, "neo4j", cfg.Graph.Username)
	assert.Equal(t, "secret", cfg.Graph.Password)
	assert.Equal(t, "/var/lib/atlas", cfg.Graph.Path)
}
