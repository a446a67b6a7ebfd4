// Package embedder provides text embedding clients for vector
// representations. The local hashing embedder is the default; an OpenAI
// client is available where a real embedding model is configured.
package embedder

import (
	"context"
	"fmt"
)

// Client is the interface every embedding provider implements.
type Client interface {
	// Embed generates embeddings for the given texts, one vector per
	// input in the same order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle is a convenience wrapper for one text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding width.
	Dimensions() int

	// Close cleans up any resources.
	Close() error
}

// Config holds common embedder settings.
type Config struct {
	// Provider is one of "local", "openai".
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// New creates an embedding client for the configured provider.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocalEmbedder(cfg.Dimensions), nil
	case "openai":
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
