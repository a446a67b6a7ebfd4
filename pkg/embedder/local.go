package embedder

import (
	"context"
	"hash/fnv"

	"github.com/atlasgraph/atlas/pkg/utils"
)

// DefaultLocalDimensions is the width of locally hashed embeddings.
const DefaultLocalDimensions = 256

// LocalEmbedder produces deterministic embeddings by feature-hashing
// token trigrams into a fixed-width vector. It needs no model or network
// and always maps identical text to identical vectors, which the dedup
// and caching layers rely on.
type LocalEmbedder struct {
	dims int
}

// NewLocalEmbedder creates a hashing embedder. Dimensions <= 0 selects
// the default width.
func NewLocalEmbedder(dims int) *LocalEmbedder {
	if dims <= 0 {
		dims = DefaultLocalDimensions
	}
	return &LocalEmbedder{dims: dims}
}

func (l *LocalEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, l.dims)
	tokens := utils.Tokenize(text)
	if len(tokens) == 0 {
		return vec
	}

	bump := func(feature string, weight float32) {
		h := fnv.New64a()
		h.Write([]byte(feature))
		sum := h.Sum64()
		slot := int(sum % uint64(l.dims))
		// Low bit picks the sign so collisions tend to cancel rather
		// than pile up.
		if sum&(1<<63) != 0 {
			weight = -weight
		}
		vec[slot] += weight
	}

	for _, tok := range tokens {
		bump(tok, 1.0)
	}
	for i := 0; i+1 < len(tokens); i++ {
		bump(tokens[i]+" "+tokens[i+1], 0.5)
	}

	utils.NormalizeVector(vec)
	return vec
}

// Embed generates embeddings for the given texts.
func (l *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		out[i] = l.embedOne(text)
	}
	return out, nil
}

// EmbedSingle generates an embedding for a single text.
func (l *LocalEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := l.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Dimensions returns the embedding width.
func (l *LocalEmbedder) Dimensions() int {
	return l.dims
}

// Close is a no-op.
func (l *LocalEmbedder) Close() error {
	return nil
}
