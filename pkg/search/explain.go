package search

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/atlasgraph/atlas/pkg/types"
)

// DefaultExplainCapacity bounds how many past queries stay explainable.
const DefaultExplainCapacity = 256

// Explanation is the per-entity score breakdown for one past query.
type Explanation struct {
	QueryID    string                `json:"query_id"`
	EntityID   string                `json:"entity_id"`
	Strategy   Strategy              `json:"strategy"`
	Scores     types.ComponentScores `json:"scores"`
	FinalScore float64               `json:"final_score"`
	Rank       int                   `json:"rank"`
	// Paths holds the edge uuid sequences that reached the entity during
	// graph traversal, empty for pure vector hits.
	Paths [][]string `json:"paths,omitempty"`
}

type explainRecord struct {
	strategy Strategy
	entries  map[string]*Explanation
}

// explainStore retains score breakdowns for recent queries in a bounded
// LRU so the explain endpoint can answer after the fact.
type explainStore struct {
	cache *lru.Cache[string, *explainRecord]
}

func newExplainStore(capacity int) (*explainStore, error) {
	if capacity <= 0 {
		capacity = DefaultExplainCapacity
	}
	cache, err := lru.New[string, *explainRecord](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create explain store: %w", err)
	}
	return &explainStore{cache: cache}, nil
}

func (s *explainStore) record(queryID string, strategy Strategy, results []*types.RankedResult, paths map[string][][]string) {
	rec := &explainRecord{
		strategy: strategy,
		entries:  make(map[string]*Explanation, len(results)),
	}
	for _, r := range results {
		rec.entries[r.Entity.Uuid] = &Explanation{
			QueryID:    queryID,
			EntityID:   r.Entity.Uuid,
			Strategy:   strategy,
			Scores:     r.Scores,
			FinalScore: r.FinalScore,
			Rank:       r.Rank,
			Paths:      paths[r.Entity.Uuid],
		}
	}
	s.cache.Add(queryID, rec)
}

// lookup returns the explanation for one (query, entity) pair.
// types.ErrNotFound covers both expired queries and entities that were
// not part of the result set.
func (s *explainStore) lookup(queryID, entityID string) (*Explanation, error) {
	rec, ok := s.cache.Get(queryID)
	if !ok {
		return nil, fmt.Errorf("query %s: %w", queryID, types.ErrNotFound)
	}
	entry, ok := rec.entries[entityID]
	if !ok {
		return nil, fmt.Errorf("entity %s in query %s: %w", entityID, queryID, types.ErrNotFound)
	}
	return entry, nil
}
