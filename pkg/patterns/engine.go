package patterns

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atlasgraph/atlas/pkg/driver"
	"github.com/atlasgraph/atlas/pkg/embedder"
	"github.com/atlasgraph/atlas/pkg/types"
	"github.com/atlasgraph/atlas/pkg/utils"
	"github.com/atlasgraph/atlas/pkg/vector"
)

// Config tunes dedup and history behavior.
type Config struct {
	// DedupThreshold is the name-similarity floor for merging a
	// candidate into an existing entity, default 0.85.
	DedupThreshold float64 `mapstructure:"dedup_threshold"`
	// UseEmbeddingDedup additionally requires embedding cosine
	// similarity above EmbeddingThreshold when both sides carry
	// embeddings.
	UseEmbeddingDedup  bool    `mapstructure:"use_embedding_dedup"`
	EmbeddingThreshold float64 `mapstructure:"embedding_threshold"`
	// HistoryLimit caps retained prior versions per entity, default 10.
	HistoryLimit int `mapstructure:"history_limit"`
}

// DefaultConfig returns the standard extraction settings.
func DefaultConfig() Config {
	return Config{
		DedupThreshold:     0.85,
		EmbeddingThreshold: 0.9,
		HistoryLimit:       10,
	}
}

// keyedMutex serializes writes that may merge into the same entity while
// unrelated keys proceed unblocked.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if m, ok := k.locks[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	k.locks[key] = m
	return m
}

// Engine runs extraction, dedup and persistence. The registry and all
// collaborators are injected; the engine holds no global state.
type Engine struct {
	registry *Registry
	store    driver.GraphStore
	index    *vector.Index
	embed    embedder.Client
	cfg      Config
	logger   *slog.Logger

	dedup *keyedMutex
	rels  *keyedMutex
}

// NewEngine creates an extraction engine. A nil logger falls back to
// slog.Default().
func NewEngine(registry *Registry, store driver.GraphStore, index *vector.Index, embed embedder.Client, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DedupThreshold <= 0 {
		cfg.DedupThreshold = 0.85
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	return &Engine{
		registry: registry,
		store:    store,
		index:    index,
		embed:    embed,
		cfg:      cfg,
		logger:   logger,
		dedup:    newKeyedMutex(),
		rels:     newKeyedMutex(),
	}
}

// Document is one unit of ingestion input.
type Document struct {
	Text   string               `json:"text"`
	Source types.SourceMetadata `json:"source"`
}

// Ingest extracts candidates from one document and persists them,
// deduplicating against the store. Identical text ingested twice creates
// no duplicate entities; existing ones get a version bump.
func (e *Engine) Ingest(ctx context.Context, text string, source types.SourceMetadata) (*types.IngestResult, error) {
	if text == "" {
		return nil, types.NewValidationError("text", "cannot be empty")
	}
	if source.SourceRef == "" {
		return nil, types.NewValidationError("source_ref", "cannot be empty")
	}

	detection := e.registry.Detect(text)
	result := &types.IngestResult{}

	// Candidate (type, normalized name) to persisted uuid, for
	// relationship wiring below.
	resolved := make(map[string]string)

	for _, cand := range detection.Entities {
		entity, created, err := e.persistEntity(ctx, cand, source)
		if err != nil {
			return nil, err
		}
		resolved[cand.EntityType+"|"+utils.NormalizeName(cand.Name)] = entity.Uuid
		if created {
			result.Created = append(result.Created, entity)
		} else {
			result.Updated = append(result.Updated, entity)
		}
	}

	for _, cand := range detection.Relationships {
		sourceID := resolved[cand.SourceType+"|"+utils.NormalizeName(cand.SourceName)]
		targetID := resolved[cand.TargetType+"|"+utils.NormalizeName(cand.TargetName)]
		if sourceID == "" || targetID == "" || sourceID == targetID {
			continue
		}
		rel, err := e.persistRelationship(ctx, cand, sourceID, targetID, source)
		if err != nil {
			return nil, err
		}
		result.Relationships = append(result.Relationships, rel)
	}

	e.logger.Debug("ingested document",
		"source_ref", source.SourceRef,
		"created", len(result.Created),
		"updated", len(result.Updated),
		"relationships", len(result.Relationships))
	return result, nil
}

// IngestBatch processes documents independently; one bad document never
// aborts the rest. Errors come back positionally. Documents run
// concurrently under a bounded executor; per-entity merge locks keep
// dedup correct across documents.
func (e *Engine) IngestBatch(ctx context.Context, docs []Document) ([]*types.IngestResult, []error) {
	results := make([]*types.IngestResult, len(docs))

	executor := utils.NewConcurrentExecutor(utils.DefaultSemaphoreLimit)
	fns := make([]func() error, len(docs))
	for i, doc := range docs {
		i, doc := i, doc
		fns[i] = func() error {
			result, err := e.Ingest(ctx, doc.Text, doc.Source)
			results[i] = result
			return err
		}
	}
	return results, executor.Execute(ctx, fns...)
}

// dedupKey both serializes concurrent merges into the same entity and
// scopes the similarity search to one entity type.
func dedupKey(entityType, name string) string {
	return entityType + "|" + utils.NormalizeName(name)
}

func (e *Engine) persistEntity(ctx context.Context, cand CandidateEntity, source types.SourceMetadata) (*types.Entity, bool, error) {
	lock := e.dedup.get(dedupKey(cand.EntityType, cand.Name))
	lock.Lock()
	defer lock.Unlock()

	candidateQuality := cand.Confidence
	if source.Quality > 0 {
		candidateQuality = utils.ClampScore((cand.Confidence + source.Quality) / 2)
	}

	existing, err := e.findDuplicate(ctx, cand)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	if existing != nil {
		// Merge, never a new id. The snapshot preserves the state the
		// merge replaced.
		existing.PriorVersions = append([]types.EntityVersion{existing.Snapshot()}, existing.PriorVersions...)
		if len(existing.PriorVersions) > e.cfg.HistoryLimit {
			existing.PriorVersions = existing.PriorVersions[:e.cfg.HistoryLimit]
		}
		existing.Version++
		existing.UpdatedAt = now
		if existing.Attributes == nil {
			existing.Attributes = make(map[string]string, len(cand.Attributes))
		}
		for k, v := range cand.Attributes {
			if _, ok := existing.Attributes[k]; !ok {
				existing.Attributes[k] = v
			}
		}
		// Merge race: the higher resulting quality wins. The losing
		// source still joins the entity's provenance.
		if candidateQuality > existing.QualityScore {
			existing.QualityScore = candidateQuality
			existing.SourceRef = source.SourceRef
		} else if source.SourceRef != existing.SourceRef && !containsString(existing.MergedSources, source.SourceRef) {
			existing.MergedSources = append([]string{source.SourceRef}, existing.MergedSources...)
			if len(existing.MergedSources) > e.cfg.HistoryLimit {
				existing.MergedSources = existing.MergedSources[:e.cfg.HistoryLimit]
			}
		}
		if err := e.store.UpsertNode(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("failed to merge entity %s: %w", existing.Uuid, err)
		}
		return existing, false, nil
	}

	entity := &types.Entity{
		Uuid:         uuid.NewString(),
		EntityType:   cand.EntityType,
		Name:         cand.Name,
		Attributes:   cand.Attributes,
		QualityScore: candidateQuality,
		Version:      1,
		SourceRef:    source.SourceRef,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if e.embed != nil {
		embedding, err := e.embed.EmbedSingle(ctx, cand.Name)
		if err != nil {
			// Embedding failures degrade the entity to graph-only
			// visibility instead of failing the ingest.
			e.logger.Warn("embedding failed, entity stays graph-only", "name", cand.Name, "error", err)
		} else {
			entity.Embedding = embedding
		}
	}

	if err := e.store.UpsertNode(ctx, entity); err != nil {
		return nil, false, fmt.Errorf("failed to create entity: %w", err)
	}
	if e.index != nil && entity.Embedding != nil {
		if err := e.index.Upsert(entity.Uuid, entity.EntityType, entity.Embedding); err != nil {
			e.logger.Warn("vector index upsert failed", "uuid", entity.Uuid, "error", err)
		}
	}
	return entity, true, nil
}

// findDuplicate looks for an existing near-duplicate of the candidate
// within its entity type.
func (e *Engine) findDuplicate(ctx context.Context, cand CandidateEntity) (*types.Entity, error) {
	matches, err := e.store.FindByName(ctx, cand.Name, &driver.NameSearchOptions{
		Limit:         5,
		Fuzzy:         true,
		MinSimilarity: e.cfg.DedupThreshold,
		EntityTypes:   []string{cand.EntityType},
	})
	if err != nil {
		return nil, fmt.Errorf("dedup lookup failed: %w", err)
	}

	for _, match := range matches {
		if utils.NameSimilarity(match.Name, cand.Name) < e.cfg.DedupThreshold {
			continue
		}
		if e.cfg.UseEmbeddingDedup && match.Embedding != nil && e.embed != nil {
			candVec, err := e.embed.EmbedSingle(ctx, cand.Name)
			if err == nil && utils.CosineSimilarity(candVec, match.Embedding) < e.cfg.EmbeddingThreshold {
				continue
			}
		}
		return match, nil
	}
	return nil, nil
}

func (e *Engine) persistRelationship(ctx context.Context, cand CandidateRelationship, sourceID, targetID string, source types.SourceMetadata) (*types.Relationship, error) {
	// The lookup-then-upsert below must not interleave across documents,
	// or concurrent ingests duplicate the edge and transactional
	// backends abort on write conflicts.
	lock := e.rels.get(sourceID + "|" + targetID + "|" + cand.RelType)
	lock.Lock()
	defer lock.Unlock()

	evidence := types.Evidence{
		SourceRef: source.SourceRef,
		Excerpt:   cand.Excerpt,
		CitedAt:   time.Now().UTC(),
	}

	existing, err := e.store.GetEdgesBetween(ctx, sourceID, targetID)
	if err != nil {
		return nil, fmt.Errorf("edge lookup failed: %w", err)
	}
	for _, rel := range existing {
		if rel.RelType != cand.RelType || rel.Deprecated {
			continue
		}
		// Same edge re-inferred: refresh confidence upward and cite the
		// source once.
		if cand.Confidence > rel.Confidence {
			rel.Confidence = cand.Confidence
		}
		if !hasEvidence(rel.Evidence, evidence) {
			rel.Evidence = append(rel.Evidence, evidence)
		}
		if err := e.store.UpsertEdge(ctx, rel); err != nil {
			return nil, fmt.Errorf("failed to update relationship %s: %w", rel.Uuid, err)
		}
		return rel, nil
	}

	rel := &types.Relationship{
		Uuid:       uuid.NewString(),
		SourceID:   sourceID,
		TargetID:   targetID,
		RelType:    cand.RelType,
		Confidence: cand.Confidence,
		Evidence:   []types.Evidence{evidence},
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.store.UpsertEdge(ctx, rel); err != nil {
		return nil, fmt.Errorf("failed to create relationship: %w", err)
	}
	return rel, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func hasEvidence(list []types.Evidence, ev types.Evidence) bool {
	for _, existing := range list {
		if existing.SourceRef == ev.SourceRef && existing.Excerpt == ev.Excerpt {
			return true
		}
	}
	return false
}
