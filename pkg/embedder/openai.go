package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIBatchSize = 100

// OpenAIEmbedder implements Client against the OpenAI embeddings API, or
// any compatible server when BaseURL is set.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dims      int
	batchSize int
}

// NewOpenAIEmbedder creates an OpenAI embedding client.
func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder requires an api key")
	}

	var client *openai.Client
	if cfg.BaseURL != "" {
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		clientConfig.BaseURL = cfg.BaseURL
		client = openai.NewClientWithConfig(clientConfig)
	} else {
		client = openai.NewClient(cfg.APIKey)
	}

	model := openai.EmbeddingModel(cfg.Model)
	if cfg.Model == "" {
		model = openai.SmallEmbedding3
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 1536
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultOpenAIBatchSize
	}

	return &OpenAIEmbedder{
		client:    client,
		model:     model,
		dims:      dims,
		batchSize: batchSize,
	}, nil
}

// Embed generates embeddings for the given texts, batching requests to
// stay within provider limits.
func (o *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += o.batchSize {
		end := start + o.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[start:end],
			Model: o.model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("expected %d embeddings, got %d", end-start, len(resp.Data))
		}
		for _, item := range resp.Data {
			out = append(out, item.Embedding)
		}
	}
	return out, nil
}

// EmbedSingle generates an embedding for a single text.
func (o *OpenAIEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := o.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embeddings[0], nil
}

// Dimensions returns the embedding width.
func (o *OpenAIEmbedder) Dimensions() int {
	return o.dims
}

// Close cleans up any resources.
func (o *OpenAIEmbedder) Close() error {
	return nil
}
