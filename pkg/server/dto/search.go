package dto

import (
	"strings"

	"github.com/atlasgraph/atlas/pkg/types"
)

// SearchRequest represents a search query.
type SearchRequest struct {
	Query       string   `json:"query" binding:"required"`
	Mode        string   `json:"mode,omitempty"`
	EntityTypes []string `json:"entity_types,omitempty"`
	Domains     []string `json:"domains,omitempty"`
	MaxResults  int      `json:"max_results,omitempty"`
	GraphDepth  int      `json:"graph_depth,omitempty"`
}

// Validate performs validation on SearchRequest. Mode and depth bounds
// are validated downstream by the query itself.
func (r *SearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return ErrEmptyQuery
	}
	return nil
}

// ToQuery converts the request to an engine search query.
func (r *SearchRequest) ToQuery() *types.SearchQuery {
	maxResults := r.MaxResults
	if maxResults > MaxResultsCap {
		maxResults = MaxResultsCap
	}
	return &types.SearchQuery{
		Text: r.Query,
		Mode: types.SearchMode(r.Mode),
		Filters: types.SearchFilters{
			EntityTypes: r.EntityTypes,
			Domains:     r.Domains,
		},
		MaxResults: maxResults,
		GraphDepth: r.GraphDepth,
	}
}
