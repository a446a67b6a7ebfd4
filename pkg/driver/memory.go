package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atlasgraph/atlas/pkg/types"
	"github.com/atlasgraph/atlas/pkg/utils"
)

// MemoryStore is a map-backed GraphStore. It is the zero-config default
// and the workhorse for tests; data does not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	nodes    map[string]*types.Entity
	edges    map[string]*types.Relationship
	outgoing map[string][]string
	incoming map[string][]string

	unavailable bool
	updatedAt   time.Time
}

// NewMemoryStore creates an empty in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:    make(map[string]*types.Entity),
		edges:    make(map[string]*types.Relationship),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
	}
}

// SetUnavailable forces every subsequent call to fail with
// types.ErrBackendUnavailable. Used by degradation tests.
func (m *MemoryStore) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = down
}

func (m *MemoryStore) check() error {
	if m.unavailable {
		return types.ErrBackendUnavailable
	}
	return nil
}

// GetNode retrieves a single entity by uuid.
func (m *MemoryStore) GetNode(ctx context.Context, id string) (*types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	node, ok := m.nodes[id]
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", id, types.ErrNotFound)
	}
	return node.Clone(), nil
}

// GetNodes retrieves multiple entities, skipping unknown ids.
func (m *MemoryStore) GetNodes(ctx context.Context, ids []string) ([]*types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	result := make([]*types.Entity, 0, len(ids))
	for _, id := range ids {
		if node, ok := m.nodes[id]; ok {
			result = append(result, node.Clone())
		}
	}
	return result, nil
}

// UpsertNode creates or replaces an entity.
func (m *MemoryStore) UpsertNode(ctx context.Context, entity *types.Entity) error {
	if err := entity.ValidateForCreate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}

	m.nodes[entity.Uuid] = entity.Clone()
	m.updatedAt = time.Now()
	return nil
}

// UpsertEdge creates or replaces a relationship. Both endpoints must exist.
func (m *MemoryStore) UpsertEdge(ctx context.Context, rel *types.Relationship) error {
	if err := rel.ValidateForCreate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}

	if _, ok := m.nodes[rel.SourceID]; !ok {
		return fmt.Errorf("source entity %s: %w", rel.SourceID, types.ErrNotFound)
	}
	if _, ok := m.nodes[rel.TargetID]; !ok {
		return fmt.Errorf("target entity %s: %w", rel.TargetID, types.ErrNotFound)
	}

	if _, exists := m.edges[rel.Uuid]; !exists {
		m.outgoing[rel.SourceID] = append(m.outgoing[rel.SourceID], rel.Uuid)
		m.incoming[rel.TargetID] = append(m.incoming[rel.TargetID], rel.Uuid)
	}
	m.edges[rel.Uuid] = rel.Clone()
	m.updatedAt = time.Now()
	return nil
}

// GetEdgesBetween retrieves all edges from source to target.
func (m *MemoryStore) GetEdgesBetween(ctx context.Context, sourceID, targetID string) ([]*types.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	var result []*types.Relationship
	for _, edgeID := range m.outgoing[sourceID] {
		edge := m.edges[edgeID]
		if edge != nil && edge.TargetID == targetID {
			result = append(result, edge.Clone())
		}
	}
	return result, nil
}

// FindByName resolves entities by name, exact first, then fuzzy.
func (m *MemoryStore) FindByName(ctx context.Context, name string, opts *NameSearchOptions) ([]*types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	opts = nameSearchDefaults(opts)
	normalized := utils.NormalizeName(name)
	typeFilter := typeFilterSet(opts.EntityTypes)

	type scored struct {
		entity *types.Entity
		score  float64
	}
	var matches []scored

	for _, node := range m.nodes {
		if typeFilter != nil && !typeFilter[node.EntityType] {
			continue
		}
		if utils.NormalizeName(node.Name) == normalized {
			matches = append(matches, scored{node, 1.0})
			continue
		}
		if opts.Fuzzy {
			if sim := utils.NameSimilarity(node.Name, name); sim >= opts.MinSimilarity {
				matches = append(matches, scored{node, sim})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].entity.Uuid < matches[j].entity.Uuid
	})

	result := make([]*types.Entity, 0, min(opts.Limit, len(matches)))
	for i := 0; i < len(matches) && i < opts.Limit; i++ {
		result = append(result, matches[i].entity.Clone())
	}
	return result, nil
}

// EntitiesByType retrieves all entities of one type, ordered by uuid.
func (m *MemoryStore) EntitiesByType(ctx context.Context, entityType string) ([]*types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	var result []*types.Entity
	for _, node := range m.nodes {
		if node.EntityType == entityType {
			result = append(result, node.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Uuid < result[j].Uuid })
	return result, nil
}

// edgesFrom implements adjacencySource for the shared BFS expansion.
func (m *MemoryStore) edgesFrom(ctx context.Context, nodeID string, dir Direction) ([]*types.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	var edgeIDs []string
	switch dir {
	case DirectionOutbound:
		edgeIDs = m.outgoing[nodeID]
	case DirectionInbound:
		edgeIDs = m.incoming[nodeID]
	default:
		edgeIDs = append(append([]string{}, m.outgoing[nodeID]...), m.incoming[nodeID]...)
	}

	seen := make(map[string]bool, len(edgeIDs))
	result := make([]*types.Relationship, 0, len(edgeIDs))
	for _, id := range edgeIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if edge := m.edges[id]; edge != nil {
			result = append(result, edge.Clone())
		}
	}
	return result, nil
}

// Traverse performs a cycle-safe bounded breadth-first expansion.
func (m *MemoryStore) Traverse(ctx context.Context, query *TraversalQuery) (*TraversalResult, error) {
	if err := func() error { m.mu.RLock(); defer m.mu.RUnlock(); return m.check() }(); err != nil {
		return nil, err
	}

	// Unknown start ids expand to nothing and are dropped from the result.
	known := make([]string, 0, len(query.StartIDs))
	for _, id := range query.StartIDs {
		m.mu.RLock()
		_, ok := m.nodes[id]
		m.mu.RUnlock()
		if ok {
			known = append(known, id)
		}
	}
	q := *query
	q.StartIDs = known

	visited, edges, err := expand(ctx, m, &q)
	if err != nil {
		return nil, err
	}
	return assembleTraversal(ctx, m, visited, edges)
}

// Stats retrieves graph statistics.
func (m *MemoryStore) Stats(ctx context.Context) (*GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	stats := &GraphStats{
		NodeCount:   int64(len(m.nodes)),
		EdgeCount:   int64(len(m.edges)),
		NodesByType: make(map[string]int64),
		EdgesByType: make(map[string]int64),
		LastUpdated: m.updatedAt,
	}
	for _, node := range m.nodes {
		stats.NodesByType[node.EntityType]++
	}
	for _, edge := range m.edges {
		stats.EdgesByType[edge.RelType]++
	}
	return stats, nil
}

// Provider returns ProviderMemory.
func (m *MemoryStore) Provider() Provider {
	return ProviderMemory
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}

func nameSearchDefaults(opts *NameSearchOptions) *NameSearchOptions {
	if opts == nil {
		opts = &NameSearchOptions{}
	}
	out := *opts
	if out.Limit <= 0 {
		out.Limit = 10
	}
	if out.MinSimilarity <= 0 {
		out.MinSimilarity = 0.5
	}
	return &out
}

func typeFilterSet(entityTypes []string) map[string]bool {
	if len(entityTypes) == 0 {
		return nil
	}
	set := make(map[string]bool, len(entityTypes))
	for _, t := range entityTypes {
		set[t] = true
	}
	return set
}
