// Package driver provides pluggable graph storage backends for the
// knowledge graph. Implementations are selected by configuration through
// New, never by inheritance or runtime type inspection.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/atlasgraph/atlas/pkg/types"
)

// Provider represents the type of graph storage provider.
type Provider string

const (
	ProviderMemory Provider = "memory"
	ProviderBadger Provider = "badger"
	ProviderNeo4j  Provider = "neo4j"
)

// Direction constrains which edges a traversal may cross.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
	DirectionAny      Direction = "any"
)

// Traversal depth bounds.
const (
	MinHops = 1
	MaxHops = 3
)

// TraversalQuery describes one bounded breadth-first expansion.
type TraversalQuery struct {
	StartIDs []string `json:"start_ids"`
	// RelTypes filters edges by relationship type. Empty means all types.
	RelTypes  []string  `json:"rel_types,omitempty"`
	MaxHops   int       `json:"max_hops"`
	Direction Direction `json:"direction"`
}

// Normalize clamps hops into [MinHops, MaxHops] and defaults the direction.
func (q *TraversalQuery) Normalize() {
	if q.MaxHops < MinHops {
		q.MaxHops = MinHops
	}
	if q.MaxHops > MaxHops {
		q.MaxHops = MaxHops
	}
	if q.Direction == "" {
		q.Direction = DirectionAny
	}
}

// PathEdge is an edge crossed during traversal together with the path
// segment that reached it, for explainability.
type PathEdge struct {
	Edge *types.Relationship `json:"edge"`
	// Hop is the 1-based hop at which the edge was crossed.
	Hop int `json:"hop"`
	// Path holds edge uuids from a start node up to and including this
	// edge.
	Path []string `json:"path"`
}

// TraversalResult is the outcome of one bounded expansion.
type TraversalResult struct {
	// Visited maps entity uuid to the hop distance at first visit.
	// Start ids are at distance 0.
	Visited map[string]int `json:"visited"`
	// Entities holds the visited entities, start ids included.
	Entities []*types.Entity `json:"entities"`
	// Edges holds every crossed edge with its path segment.
	Edges []PathEdge `json:"edges"`
}

// NameSearchOptions holds options for name-based entity lookup.
type NameSearchOptions struct {
	Limit int `json:"limit"`
	// Fuzzy enables trigram similarity matching when no exact match
	// exists.
	Fuzzy bool `json:"fuzzy"`
	// MinSimilarity is the fuzzy match floor, default 0.5.
	MinSimilarity float64  `json:"min_similarity"`
	EntityTypes   []string `json:"entity_types,omitempty"`
}

// GraphStats holds statistics about the graph.
type GraphStats struct {
	NodeCount   int64            `json:"node_count"`
	EdgeCount   int64            `json:"edge_count"`
	NodesByType map[string]int64 `json:"nodes_by_type"`
	EdgesByType map[string]int64 `json:"edges_by_type"`
	LastUpdated time.Time        `json:"last_updated"`
}

// GraphStore is the capability set every graph backend must provide.
type GraphStore interface {
	// GetNode retrieves a single entity by uuid. Returns
	// types.ErrNotFound for unknown ids.
	GetNode(ctx context.Context, id string) (*types.Entity, error)

	// GetNodes retrieves multiple entities, silently skipping unknown
	// ids.
	GetNodes(ctx context.Context, ids []string) ([]*types.Entity, error)

	// UpsertNode creates or replaces an entity.
	UpsertNode(ctx context.Context, entity *types.Entity) error

	// UpsertEdge creates or replaces a relationship. Both endpoints must
	// already exist.
	UpsertEdge(ctx context.Context, rel *types.Relationship) error

	// GetEdgesBetween retrieves all edges from source to target.
	GetEdgesBetween(ctx context.Context, sourceID, targetID string) ([]*types.Relationship, error)

	// FindByName resolves entities by name, exact first and fuzzy when
	// requested.
	FindByName(ctx context.Context, name string, opts *NameSearchOptions) ([]*types.Entity, error)

	// EntitiesByType retrieves all entities of one type.
	EntitiesByType(ctx context.Context, entityType string) ([]*types.Entity, error)

	// Traverse performs a cycle-safe bounded breadth-first expansion.
	// Unknown start ids yield an empty result, not an error. Deprecated
	// edges are skipped.
	Traverse(ctx context.Context, query *TraversalQuery) (*TraversalResult, error)

	// Stats retrieves graph statistics.
	Stats(ctx context.Context) (*GraphStats, error)

	// Provider returns the backend type.
	Provider() Provider

	// Close releases all resources held by the store.
	Close() error
}

// Config selects and configures a graph backend.
type Config struct {
	// Provider is one of "memory", "badger", "neo4j".
	Provider string `mapstructure:"provider"`
	// Path is the data directory for the badger backend.
	Path string `mapstructure:"path"`
	// URI, Username, Password, Database configure the neo4j backend.
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	// HistoryLimit caps retained prior versions per entity, default 10.
	HistoryLimit int `mapstructure:"history_limit"`
}

// New creates a graph store for the configured provider.
func New(cfg Config) (GraphStore, error) {
	switch Provider(cfg.Provider) {
	case ProviderMemory, "":
		return NewMemoryStore(), nil
	case ProviderBadger:
		return NewBadgerStore(BadgerOptions{DataDir: cfg.Path})
	case ProviderNeo4j:
		return NewNeo4jStore(cfg.URI, cfg.Username, cfg.Password, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown graph provider %q", cfg.Provider)
	}
}
