package atlas

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atlasgraph/atlas/pkg/classify"
	"github.com/atlasgraph/atlas/pkg/config"
	"github.com/atlasgraph/atlas/pkg/driver"
	"github.com/atlasgraph/atlas/pkg/embedder"
	"github.com/atlasgraph/atlas/pkg/patterns"
	"github.com/atlasgraph/atlas/pkg/search"
	"github.com/atlasgraph/atlas/pkg/types"
	"github.com/atlasgraph/atlas/pkg/vector"
)

// Ingestor provides write operations: turning raw text into graph
// entities and relationships.
type Ingestor interface {
	// Ingest extracts entities and relationships from text and persists
	// them, merging near-duplicate entities.
	Ingest(ctx context.Context, text string, source types.SourceMetadata) (*types.IngestResult, error)

	// IngestBatch processes documents independently; a failure in one
	// document does not abort the others. The error slice is positional.
	IngestBatch(ctx context.Context, docs []patterns.Document) ([]*types.IngestResult, []error)
}

// Searcher provides the hybrid retrieval surface.
type Searcher interface {
	// Search answers a query by fusing vector similarity and graph
	// traversal according to the query's classification.
	Search(ctx context.Context, query *types.SearchQuery) (*types.SearchResponse, error)

	// Explain reports the score breakdown for one entity in a past
	// query's result set.
	Explain(queryID, entityID string) (*search.Explanation, error)
}

// GraphReader provides read-only access to stored entities.
type GraphReader interface {
	// GetNode retrieves a single entity by uuid.
	GetNode(ctx context.Context, id string) (*types.Entity, error)

	// Stats reports graph size.
	Stats(ctx context.Context) (*driver.GraphStats, error)
}

// Atlas is the full engine surface, composed from the focused
// interfaces above. Consumers should depend on the smallest interface
// that meets their needs.
type Atlas interface {
	Ingestor
	Searcher
	GraphReader

	// Close releases the graph store and cached resources.
	Close() error
}

// Engine wires the graph store, vector index, embedder, extraction
// pipeline and search orchestrator into one client.
type Engine struct {
	store        driver.GraphStore
	index        *vector.Index
	embedder     embedder.Client
	registry     *patterns.Registry
	extractor    *patterns.Engine
	orchestrator *search.Orchestrator
	logger       *slog.Logger
}

var _ Atlas = (*Engine)(nil)

// New builds an Engine from configuration. The graph store is wrapped
// in a retry layer and a circuit breaker, so transient backend faults
// are retried and sustained failure trips into fast degradation.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	base, err := driver.New(cfg.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph store: %w", err)
	}
	store := driver.GraphStore(driver.NewBreakerStore(driver.NewRetryStore(base, cfg.Retry), cfg.Breaker))

	embedClient, err := embedder.New(cfg.Embedding)
	if err != nil {
		base.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	registry := patterns.DefaultRegistry()
	if cfg.Patterns.File != "" {
		if err := registry.LoadFile(cfg.Patterns.File); err != nil {
			base.Close()
			return nil, fmt.Errorf("failed to load pattern file: %w", err)
		}
	}

	index := vector.NewIndex()
	extractor := patterns.NewEngine(registry, store, index, embedClient, cfg.Patterns.Config, logger)

	orchestrator, err := search.NewOrchestrator(store, index, embedClient, classify.NewRuleClassifier(), cfg.Search, logger)
	if err != nil {
		base.Close()
		return nil, fmt.Errorf("failed to create search orchestrator: %w", err)
	}

	e := &Engine{
		store:        store,
		index:        index,
		embedder:     embedClient,
		registry:     registry,
		extractor:    extractor,
		orchestrator: orchestrator,
		logger:       logger,
	}

	if err := e.warmIndex(context.Background()); err != nil {
		logger.Warn("vector index warm-up failed", "error", err)
	}

	return e, nil
}

// warmIndex reloads persisted embeddings into the in-memory vector
// index so search works across restarts of a durable backend.
func (e *Engine) warmIndex(ctx context.Context) error {
	loaded := 0
	for _, entityType := range e.entityTypes() {
		entities, err := e.store.EntitiesByType(ctx, entityType)
		if err != nil {
			return err
		}
		for _, entity := range entities {
			if len(entity.Embedding) == 0 {
				continue
			}
			if err := e.index.Upsert(entity.Uuid, entity.EntityType, entity.Embedding); err != nil {
				e.logger.Warn("skipping stored embedding", "uuid", entity.Uuid, "error", err)
				continue
			}
			loaded++
		}
	}
	if loaded > 0 {
		e.logger.Info("vector index warmed", "entities", loaded)
	}
	return nil
}

// entityTypes collects every entity type the registered patterns can
// produce, plus the built-in vocabulary.
func (e *Engine) entityTypes() []string {
	seen := map[string]bool{
		types.EntityTypeFinding:  true,
		types.EntityTypeControl:  true,
		types.EntityTypeService:  true,
		types.EntityTypeResource: true,
		types.EntityTypeThreat:   true,
	}
	for _, p := range e.registry.Patterns() {
		for _, rule := range p.Entities {
			seen[rule.EntityType] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	return out
}

// Ingest implements Ingestor.
func (e *Engine) Ingest(ctx context.Context, text string, source types.SourceMetadata) (*types.IngestResult, error) {
	return e.extractor.Ingest(ctx, text, source)
}

// IngestBatch implements Ingestor.
func (e *Engine) IngestBatch(ctx context.Context, docs []patterns.Document) ([]*types.IngestResult, []error) {
	return e.extractor.IngestBatch(ctx, docs)
}

// Search implements Searcher.
func (e *Engine) Search(ctx context.Context, query *types.SearchQuery) (*types.SearchResponse, error) {
	return e.orchestrator.Search(ctx, query)
}

// Explain implements Searcher.
func (e *Engine) Explain(queryID, entityID string) (*search.Explanation, error) {
	return e.orchestrator.Explain(queryID, entityID)
}

// GetNode implements GraphReader.
func (e *Engine) GetNode(ctx context.Context, id string) (*types.Entity, error) {
	return e.store.GetNode(ctx, id)
}

// Stats implements GraphReader.
func (e *Engine) Stats(ctx context.Context) (*driver.GraphStats, error) {
	return e.store.Stats(ctx)
}

// Store returns the underlying graph store.
func (e *Engine) Store() driver.GraphStore {
	return e.store
}

// Embedder returns the embedding client.
func (e *Engine) Embedder() embedder.Client {
	return e.embedder
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.orchestrator.Close()
	if err := e.embedder.Close(); err != nil {
		e.logger.Warn("embedder close failed", "error", err)
	}
	return e.store.Close()
}
