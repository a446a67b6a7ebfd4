package types

import (
	"sort"
	"strings"
	"time"
)

// SearchMode selects which retrieval subsystems a query may use.
type SearchMode string

const (
	SearchModeVectorOnly SearchMode = "vector_only"
	SearchModeGraphOnly  SearchMode = "graph_only"
	SearchModeHybrid     SearchMode = "hybrid"
)

// SearchQuery is a normalized retrieval request.
type SearchQuery struct {
	Text       string        `json:"text"`
	Mode       SearchMode    `json:"mode"`
	Filters    SearchFilters `json:"filters"`
	MaxResults int           `json:"max_results"`
	// GraphDepth bounds traversal, 1-3 hops.
	GraphDepth int `json:"graph_depth"`
}

// SearchFilters constrains search results.
type SearchFilters struct {
	EntityTypes []string `json:"entity_types,omitempty"`
	Domains     []string `json:"domains,omitempty"`
}

// Normalize lowercases and collapses whitespace in the query text and
// applies defaults, so equal queries share a cache key.
func (q *SearchQuery) Normalize() {
	q.Text = strings.Join(strings.Fields(strings.ToLower(q.Text)), " ")
	if q.Mode == "" {
		q.Mode = SearchModeHybrid
	}
	if q.MaxResults <= 0 {
		q.MaxResults = 10
	}
	if q.GraphDepth < 1 {
		q.GraphDepth = 1
	}
	if q.GraphDepth > 3 {
		q.GraphDepth = 3
	}
	sort.Strings(q.Filters.EntityTypes)
	sort.Strings(q.Filters.Domains)
}

// Validate checks the query after normalization.
func (q *SearchQuery) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return &ValidationError{Field: "text", Reason: "query text cannot be empty"}
	}
	switch q.Mode {
	case SearchModeVectorOnly, SearchModeGraphOnly, SearchModeHybrid:
	default:
		return &ValidationError{Field: "mode", Reason: "unknown search mode"}
	}
	return nil
}

// ComponentScores holds the per-signal scores that feed fusion ranking.
type ComponentScores struct {
	VectorSimilarity  float64 `json:"vector_similarity"`
	GraphRelevance    float64 `json:"graph_relevance"`
	RecencyScore      float64 `json:"recency_score"`
	SourceQuality     float64 `json:"source_quality"`
	PatternConfidence float64 `json:"pattern_confidence"`
}

// RankedResult is one entity in a ranked result set with its score
// breakdown and attached context.
type RankedResult struct {
	Entity     *Entity         `json:"entity"`
	Scores     ComponentScores `json:"scores"`
	FinalScore float64         `json:"final_score"`
	Rank       int             `json:"rank"`
	Context    *ResultContext  `json:"context,omitempty"`
}

// ResultContext carries the explainability payload for a ranked result.
type ResultContext struct {
	Related       []*Entity       `json:"related,omitempty"`
	Relationships []*Relationship `json:"relationships,omitempty"`
	PriorVersions []EntityVersion `json:"prior_versions,omitempty"`
	// Paths are the traversal paths (edge uuids, origin first) that
	// contributed this entity, when the graph branch found it.
	Paths [][]string `json:"paths,omitempty"`
}

// SearchResponse is a complete ranked answer for one query.
type SearchResponse struct {
	QueryID string          `json:"query_id"`
	Query   SearchQuery     `json:"query"`
	Results []*RankedResult `json:"results"`
	// Degraded is set when one retrieval subsystem was unavailable and
	// the query fell back to the other.
	Degraded bool `json:"degraded"`
	// Source names the subsystem that produced the results when degraded
	// ("vector_only" or "graph_only").
	Source string `json:"source,omitempty"`
	// Partial is set when the latency budget expired before both
	// branches completed.
	Partial bool `json:"partial"`

	Took      time.Duration `json:"took"`
	CreatedAt time.Time     `json:"created_at"`
}

// IngestResult reports what an ingestion call created or updated.
type IngestResult struct {
	Created       []*Entity       `json:"created"`
	Updated       []*Entity       `json:"updated"`
	Relationships []*Relationship `json:"relationships"`
}

// SourceMetadata describes where ingested text came from.
type SourceMetadata struct {
	SourceRef string    `json:"source_ref"`
	Domain    string    `json:"domain,omitempty"`
	Quality   float64   `json:"quality,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
