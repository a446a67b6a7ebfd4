// Package config loads application configuration from file and
// environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/atlasgraph/atlas/pkg/driver"
	"github.com/atlasgraph/atlas/pkg/embedder"
	"github.com/atlasgraph/atlas/pkg/patterns"
	"github.com/atlasgraph/atlas/pkg/search"
)

// Config holds all configuration for the application.
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Graph storage backend configuration
	Graph driver.Config `mapstructure:"graph"`

	// Breaker guards graph backend calls
	Breaker driver.BreakerConfig `mapstructure:"breaker"`

	// Retry policy for transient graph failures
	Retry driver.RetryConfig `mapstructure:"retry"`

	// Embedding provider configuration
	Embedding embedder.Config `mapstructure:"embedding"`

	// Extraction pipeline configuration
	Patterns PatternsConfig `mapstructure:"patterns"`

	// Search orchestrator configuration
	Search search.Config `mapstructure:"search"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// PatternsConfig holds extraction configuration.
type PatternsConfig struct {
	patterns.Config `mapstructure:",squash"`
	// File optionally points to a YAML pattern set loaded on top of the
	// built-in patterns.
	File string `mapstructure:"file"`
}

// TelemetryConfig holds telemetry configuration.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ParquetPath string `mapstructure:"parquet_path"`
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)
	return config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")

	// Graph defaults
	viper.SetDefault("graph.provider", "badger")
	viper.SetDefault("graph.path", "./atlas_db")
	viper.SetDefault("graph.uri", "")
	viper.SetDefault("graph.username", "")
	viper.SetDefault("graph.password", "")
	viper.SetDefault("graph.database", "")
	viper.SetDefault("graph.history_limit", 10)

	viper.SetDefault("breaker.max_failures", 5)
	viper.SetDefault("breaker.timeout", 30*time.Second)
	viper.SetDefault("breaker.interval", time.Minute)

	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.initial_delay", 100*time.Millisecond)
	viper.SetDefault("retry.max_delay", 2*time.Second)

	// Embedding defaults
	viper.SetDefault("embedding.provider", "local")
	viper.SetDefault("embedding.model", "")
	viper.SetDefault("embedding.dimensions", embedder.DefaultLocalDimensions)
	viper.SetDefault("embedding.batch_size", 100)

	// Extraction defaults
	viper.SetDefault("patterns.dedup_threshold", 0.85)
	viper.SetDefault("patterns.use_embedding_dedup", false)
	viper.SetDefault("patterns.embedding_threshold", 0.9)
	viper.SetDefault("patterns.history_limit", 10)
	viper.SetDefault("patterns.file", "")

	// Search defaults
	viper.SetDefault("search.weights.vector", 0.35)
	viper.SetDefault("search.weights.graph", 0.30)
	viper.SetDefault("search.weights.recency", 0.15)
	viper.SetDefault("search.weights.quality", 0.10)
	viper.SetDefault("search.weights.confidence", 0.10)
	viper.SetDefault("search.query_timeout", 5*time.Second)
	viper.SetDefault("search.branch_timeout", 2*time.Second)
	viper.SetDefault("search.cache_ttl", search.DefaultCacheTTL)
	viper.SetDefault("search.recency_half_life", 30*24*time.Hour)
	viper.SetDefault("search.seed_limit", 5)
	viper.SetDefault("search.seed_min_similarity", 0.5)
	viper.SetDefault("search.context_results", 5)
	viper.SetDefault("search.explain_capacity", search.DefaultExplainCapacity)
	viper.SetDefault("search.overfetch", 2)

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", false)
	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("telemetry.parquet_path", fmt.Sprintf("%s/.atlas/telemetry", home))
	}
}

// overrideWithEnv overrides config with environment variables.
func overrideWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Embedding.APIKey = apiKey
	}
	if uri := os.Getenv("ATLAS_NEO4J_URI"); uri != "" {
		config.Graph.Provider = string(driver.ProviderNeo4j)
		config.Graph.URI = uri
	}
	if user := os.Getenv("ATLAS_NEO4J_USERNAME"); user != "" {
		config.Graph.Username = user
	}
	if pass := os.Getenv("ATLAS_NEO4J_PASSWORD"); pass != "" {
		config.Graph.Password = pass
	}
	if path := os.Getenv("ATLAS_DATA_DIR"); path != "" {
		config.Graph.Path = path
	}
}
