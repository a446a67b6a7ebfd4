package search

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/atlasgraph/atlas/pkg/types"
	"github.com/atlasgraph/atlas/pkg/utils"
)

// Weights control score fusion. They must sum to 1.0.
type Weights struct {
	Vector     float64 `mapstructure:"vector"`
	Graph      float64 `mapstructure:"graph"`
	Recency    float64 `mapstructure:"recency"`
	Quality    float64 `mapstructure:"quality"`
	Confidence float64 `mapstructure:"confidence"`
}

// DefaultWeights returns the standard fusion weights.
func DefaultWeights() Weights {
	return Weights{
		Vector:     0.35,
		Graph:      0.30,
		Recency:    0.15,
		Quality:    0.10,
		Confidence: 0.10,
	}
}

// Validate rejects weight sets that do not sum to 1.0.
func (w Weights) Validate() error {
	sum := w.Vector + w.Graph + w.Recency + w.Quality + w.Confidence
	if math.Abs(sum-1.0) > 1e-6 {
		return types.NewValidationError("weights", fmt.Sprintf("must sum to 1.0, got %.4f", sum))
	}
	for name, v := range map[string]float64{
		"vector": w.Vector, "graph": w.Graph, "recency": w.Recency,
		"quality": w.Quality, "confidence": w.Confidence,
	} {
		if v < 0 {
			return types.NewValidationError("weights", fmt.Sprintf("%s cannot be negative", name))
		}
	}
	return nil
}

// graphRelevance decays with hop distance and scales by the confidence
// of the edge that reached the node. Seeds sit at hop 0 with relevance 1.
func graphRelevance(hops int, edgeConfidence float64) float64 {
	if hops <= 0 {
		return 1.0
	}
	return utils.ClampScore(edgeConfidence / float64(1+hops))
}

// recencyScore applies exponential decay to the entity's age with the
// configured half-life.
func recencyScore(updatedAt, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 || updatedAt.IsZero() {
		return 0
	}
	age := now.Sub(updatedAt)
	if age <= 0 {
		return 1.0
	}
	return utils.ClampScore(math.Exp(-math.Ln2 * float64(age) / float64(halfLife)))
}

// fuse combines component scores into the final score.
func (w Weights) fuse(s types.ComponentScores) float64 {
	return utils.ClampScore(w.Vector*s.VectorSimilarity +
		w.Graph*s.GraphRelevance +
		w.Recency*s.RecencyScore +
		w.Quality*s.SourceQuality +
		w.Confidence*s.PatternConfidence)
}

// rankResults orders by final score with the deterministic tie-break
// chain: quality, then newer update, then smaller uuid. Rank fields are
// assigned 1-based after sorting.
func rankResults(results []*types.RankedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if a.Entity.QualityScore != b.Entity.QualityScore {
			return a.Entity.QualityScore > b.Entity.QualityScore
		}
		if !a.Entity.UpdatedAt.Equal(b.Entity.UpdatedAt) {
			return a.Entity.UpdatedAt.After(b.Entity.UpdatedAt)
		}
		return a.Entity.Uuid < b.Entity.Uuid
	})
	for i, r := range results {
		r.Rank = i + 1
	}
}
