// Package vector provides the embedding index used by the search layer.
// It keeps entity embeddings in memory and answers brute-force cosine
// top-k queries; corpus sizes here are small enough that an approximate
// index would only add moving parts.
package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atlasgraph/atlas/pkg/types"
	"github.com/atlasgraph/atlas/pkg/utils"
)

// Match is one scored hit from a similarity query.
type Match struct {
	ID         string  `json:"id"`
	EntityType string  `json:"entity_type"`
	Score      float64 `json:"score"`
}

// QueryOptions filters and sizes a top-k query.
type QueryOptions struct {
	// TopK is the number of hits to return, default 10.
	TopK int
	// EntityTypes restricts hits to the given types. Empty means all.
	EntityTypes []string
	// MinScore drops hits below the floor.
	MinScore float64
}

type entry struct {
	id         string
	entityType string
	embedding  []float32
}

// Index is a thread-safe in-memory embedding index.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*entry
	dims    int

	unavailable bool
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]*entry)}
}

// SetUnavailable forces every subsequent query to fail with
// types.ErrBackendUnavailable. Used by degradation tests.
func (idx *Index) SetUnavailable(down bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.unavailable = down
}

func (idx *Index) check() error {
	if idx.unavailable {
		return fmt.Errorf("vector index: %w", types.ErrBackendUnavailable)
	}
	return nil
}

// Upsert stores or replaces an embedding. The first non-empty embedding
// fixes the index dimensionality; later mismatches are rejected.
func (idx *Index) Upsert(id, entityType string, embedding []float32) error {
	if id == "" {
		return types.ErrEmptyUUID
	}
	if len(embedding) == 0 {
		return types.NewValidationError("embedding", "cannot be empty")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.check(); err != nil {
		return err
	}

	if idx.dims == 0 {
		idx.dims = len(embedding)
	} else if len(embedding) != idx.dims {
		return types.NewValidationError("embedding",
			fmt.Sprintf("dimension mismatch: got %d, index holds %d", len(embedding), idx.dims))
	}

	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	idx.entries[id] = &entry{id: id, entityType: entityType, embedding: vec}
	return nil
}

// Delete removes an embedding. Unknown ids are a no-op.
func (idx *Index) Delete(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, id)
}

// TopK returns the k nearest entries by cosine similarity, ordered by
// score descending with uuid as tie-break so rankings are stable.
func (idx *Index) TopK(ctx context.Context, query []float32, opts *QueryOptions) ([]Match, error) {
	if opts == nil {
		opts = &QueryOptions{}
	}
	k := opts.TopK
	if k <= 0 {
		k = 10
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if err := idx.check(); err != nil {
		return nil, err
	}
	if len(query) == 0 {
		return nil, types.NewValidationError("query", "embedding cannot be empty")
	}

	var typeFilter map[string]bool
	if len(opts.EntityTypes) > 0 {
		typeFilter = make(map[string]bool, len(opts.EntityTypes))
		for _, et := range opts.EntityTypes {
			typeFilter[et] = true
		}
	}

	matches := make([]Match, 0, len(idx.entries))
	for _, e := range idx.entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if typeFilter != nil && !typeFilter[e.entityType] {
			continue
		}
		score := utils.CosineSimilarity(query, e.embedding)
		if score < opts.MinScore {
			continue
		}
		matches = append(matches, Match{ID: e.id, EntityType: e.entityType, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Len returns the number of indexed embeddings.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Dimensions returns the index dimensionality, 0 while empty.
func (idx *Index) Dimensions() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dims
}
