package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/atlasgraph/atlas/pkg/types"
	"github.com/atlasgraph/atlas/pkg/utils"
)

// Neo4jStore implements GraphStore against a Neo4j server. Unlike the
// badger backend, traversal runs as a variable-length Cypher match on the
// server; the per-call visited-set semantics are applied to the returned
// paths client-side.
type Neo4jStore struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore creates a new Neo4j-backed graph store.
func NewNeo4jStore(uri, username, password, database string) (*Neo4jStore, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jStore{client: client, database: database}, nil
}

func mapNeo4jErr(err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) {
		return fmt.Errorf("%w: %v", types.ErrBackendUnavailable, err)
	}
	return err
}

func entityToProps(e *types.Entity) (map[string]any, error) {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return nil, err
	}
	priors, err := json.Marshal(e.PriorVersions)
	if err != nil {
		return nil, err
	}
	embedding := make([]any, len(e.Embedding))
	for i, v := range e.Embedding {
		embedding[i] = float64(v)
	}
	mergedSources := make([]any, len(e.MergedSources))
	for i, v := range e.MergedSources {
		mergedSources[i] = v
	}
	return map[string]any{
		"uuid":            e.Uuid,
		"entity_type":     e.EntityType,
		"name":            e.Name,
		"normalized_name": utils.NormalizeName(e.Name),
		"attributes":      string(attrs),
		"embedding":       embedding,
		"quality_score":   e.QualityScore,
		"version":         e.Version,
		"source_ref":      e.SourceRef,
		"created_at":      e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":      e.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"prior_versions":  string(priors),
		"merged_sources":  mergedSources,
	}, nil
}

func entityFromProps(props map[string]any) *types.Entity {
	e := &types.Entity{}
	if v, ok := props["uuid"].(string); ok {
		e.Uuid = v
	}
	if v, ok := props["entity_type"].(string); ok {
		e.EntityType = v
	}
	if v, ok := props["name"].(string); ok {
		e.Name = v
	}
	if v, ok := props["attributes"].(string); ok && v != "" {
		_ = json.Unmarshal([]byte(v), &e.Attributes)
	}
	if v, ok := props["prior_versions"].(string); ok && v != "" {
		_ = json.Unmarshal([]byte(v), &e.PriorVersions)
	}
	if v, ok := props["merged_sources"].([]any); ok && len(v) > 0 {
		e.MergedSources = make([]string, 0, len(v))
		for _, s := range v {
			if sv, ok := s.(string); ok {
				e.MergedSources = append(e.MergedSources, sv)
			}
		}
	}
	if v, ok := props["embedding"].([]any); ok && len(v) > 0 {
		e.Embedding = make([]float32, len(v))
		for i, f := range v {
			if fv, ok := f.(float64); ok {
				e.Embedding[i] = float32(fv)
			}
		}
	}
	if v, ok := props["quality_score"].(float64); ok {
		e.QualityScore = v
	}
	if v, ok := props["version"].(int64); ok {
		e.Version = v
	}
	if v, ok := props["source_ref"].(string); ok {
		e.SourceRef = v
	}
	if v, ok := props["created_at"].(string); ok {
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v, ok := props["updated_at"].(string); ok {
		e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	return e
}

func relToProps(r *types.Relationship) (map[string]any, error) {
	evidence, err := json.Marshal(r.Evidence)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"uuid":       r.Uuid,
		"source_id":  r.SourceID,
		"target_id":  r.TargetID,
		"rel_type":   r.RelType,
		"confidence": r.Confidence,
		"deprecated": r.Deprecated,
		"evidence":   string(evidence),
		"created_at": r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func relFromProps(props map[string]any) *types.Relationship {
	r := &types.Relationship{}
	if v, ok := props["uuid"].(string); ok {
		r.Uuid = v
	}
	if v, ok := props["source_id"].(string); ok {
		r.SourceID = v
	}
	if v, ok := props["target_id"].(string); ok {
		r.TargetID = v
	}
	if v, ok := props["rel_type"].(string); ok {
		r.RelType = v
	}
	if v, ok := props["confidence"].(float64); ok {
		r.Confidence = v
	}
	if v, ok := props["deprecated"].(bool); ok {
		r.Deprecated = v
	}
	if v, ok := props["evidence"].(string); ok && v != "" {
		_ = json.Unmarshal([]byte(v), &r.Evidence)
	}
	if v, ok := props["created_at"].(string); ok {
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	return r
}

// GetNode retrieves a single entity by uuid.
func (n *Neo4jStore) GetNode(ctx context.Context, id string) (*types.Entity, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (e:Entity {uuid: $uuid}) RETURN e`, map[string]any{"uuid": id})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("entity %s: %w", id, types.ErrNotFound)
		}
		nodeValue, _ := records[0].Get("e")
		node, ok := nodeValue.(dbtype.Node)
		if !ok {
			return nil, fmt.Errorf("unexpected type for node: %T", nodeValue)
		}
		return entityFromProps(node.Props), nil
	})
	if err != nil {
		return nil, mapNeo4jErr(err)
	}
	return result.(*types.Entity), nil
}

// GetNodes retrieves multiple entities, skipping unknown ids.
func (n *Neo4jStore) GetNodes(ctx context.Context, ids []string) ([]*types.Entity, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			UNWIND $uuids AS uuid
			MATCH (e:Entity {uuid: uuid})
			RETURN e
		`, map[string]any{"uuids": ids})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		entities := make([]*types.Entity, 0, len(records))
		for _, record := range records {
			if nodeValue, ok := record.Get("e"); ok {
				if node, ok := nodeValue.(dbtype.Node); ok {
					entities = append(entities, entityFromProps(node.Props))
				}
			}
		}
		return entities, nil
	})
	if err != nil {
		return nil, mapNeo4jErr(err)
	}
	return result.([]*types.Entity), nil
}

// UpsertNode merges an entity node by uuid.
func (n *Neo4jStore) UpsertNode(ctx context.Context, entity *types.Entity) error {
	if err := entity.ValidateForCreate(); err != nil {
		return err
	}
	props, err := entityToProps(entity)
	if err != nil {
		return fmt.Errorf("failed to encode entity: %w", err)
	}

	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MERGE (e:Entity {uuid: $props.uuid})
			SET e = $props
		`, map[string]any{"props": props})
	})
	return mapNeo4jErr(err)
}

// UpsertEdge merges a relationship by uuid. Both endpoints must exist.
func (n *Neo4jStore) UpsertEdge(ctx context.Context, rel *types.Relationship) error {
	if err := rel.ValidateForCreate(); err != nil {
		return err
	}
	props, err := relToProps(rel)
	if err != nil {
		return fmt.Errorf("failed to encode relationship: %w", err)
	}

	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (s:Entity {uuid: $source_id}), (t:Entity {uuid: $target_id})
			MERGE (s)-[r:RELATES_TO {uuid: $props.uuid}]->(t)
			SET r = $props
			RETURN r.uuid
		`, map[string]any{
			"source_id": rel.SourceID,
			"target_id": rel.TargetID,
			"props":     props,
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("edge endpoints %s -> %s: %w", rel.SourceID, rel.TargetID, types.ErrNotFound)
		}
		return nil, nil
	})
	return mapNeo4jErr(err)
}

// GetEdgesBetween retrieves all edges from source to target.
func (n *Neo4jStore) GetEdgesBetween(ctx context.Context, sourceID, targetID string) ([]*types.Relationship, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (:Entity {uuid: $source_id})-[r:RELATES_TO]->(:Entity {uuid: $target_id})
			RETURN r
		`, map[string]any{"source_id": sourceID, "target_id": targetID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		edges := make([]*types.Relationship, 0, len(records))
		for _, record := range records {
			if relValue, ok := record.Get("r"); ok {
				if r, ok := relValue.(dbtype.Relationship); ok {
					edges = append(edges, relFromProps(r.Props))
				}
			}
		}
		return edges, nil
	})
	if err != nil {
		return nil, mapNeo4jErr(err)
	}
	return result.([]*types.Relationship), nil
}

// FindByName resolves entities by normalized name; the fuzzy pass scores
// trigram similarity on candidates sharing the entity type filter.
func (n *Neo4jStore) FindByName(ctx context.Context, name string, opts *NameSearchOptions) ([]*types.Entity, error) {
	opts = nameSearchDefaults(opts)
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (e:Entity)
			WHERE size($entity_types) = 0 OR e.entity_type IN $entity_types
			RETURN e
		`, map[string]any{"entity_types": opts.EntityTypes})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		entities := make([]*types.Entity, 0, len(records))
		for _, record := range records {
			if nodeValue, ok := record.Get("e"); ok {
				if node, ok := nodeValue.(dbtype.Node); ok {
					entities = append(entities, entityFromProps(node.Props))
				}
			}
		}
		return entities, nil
	})
	if err != nil {
		return nil, mapNeo4jErr(err)
	}

	candidates := result.([]*types.Entity)
	normalized := utils.NormalizeName(name)

	type scored struct {
		entity *types.Entity
		score  float64
	}
	var matches []scored
	for _, entity := range candidates {
		if utils.NormalizeName(entity.Name) == normalized {
			matches = append(matches, scored{entity, 1.0})
			continue
		}
		if opts.Fuzzy {
			if sim := utils.NameSimilarity(entity.Name, name); sim >= opts.MinSimilarity {
				matches = append(matches, scored{entity, sim})
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].entity.Uuid < matches[j].entity.Uuid
	})

	out := make([]*types.Entity, 0, min(opts.Limit, len(matches)))
	for i := 0; i < len(matches) && i < opts.Limit; i++ {
		out = append(out, matches[i].entity)
	}
	return out, nil
}

// EntitiesByType retrieves all entities of one type.
func (n *Neo4jStore) EntitiesByType(ctx context.Context, entityType string) ([]*types.Entity, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (e:Entity {entity_type: $entity_type})
			RETURN e
			ORDER BY e.uuid
		`, map[string]any{"entity_type": entityType})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		entities := make([]*types.Entity, 0, len(records))
		for _, record := range records {
			if nodeValue, ok := record.Get("e"); ok {
				if node, ok := nodeValue.(dbtype.Node); ok {
					entities = append(entities, entityFromProps(node.Props))
				}
			}
		}
		return entities, nil
	})
	if err != nil {
		return nil, mapNeo4jErr(err)
	}
	return result.([]*types.Entity), nil
}

// Traverse runs a variable-length Cypher match bounded to MaxHops and
// replays the returned paths through the same first-visit bookkeeping the
// embedded backends use, so all backends agree on traversal semantics.
func (n *Neo4jStore) Traverse(ctx context.Context, query *TraversalQuery) (*TraversalResult, error) {
	q := *query
	q.Normalize()

	var pattern string
	switch q.Direction {
	case DirectionOutbound:
		pattern = fmt.Sprintf("-[:RELATES_TO*1..%d]->", q.MaxHops)
	case DirectionInbound:
		pattern = fmt.Sprintf("<-[:RELATES_TO*1..%d]-", q.MaxHops)
	default:
		pattern = fmt.Sprintf("-[:RELATES_TO*1..%d]-", q.MaxHops)
	}

	cypher := fmt.Sprintf(`
		UNWIND $start_ids AS start_id
		MATCH p = (origin:Entity {uuid: start_id})%s(:Entity)
		WHERE ALL(r IN relationships(p) WHERE
			NOT coalesce(r.deprecated, false)
			AND (size($rel_types) = 0 OR r.rel_type IN $rel_types))
		RETURN start_id, [r IN relationships(p) | properties(r)] AS rels
	`, pattern)

	relTypes := q.RelTypes
	if relTypes == nil {
		relTypes = []string{}
	}

	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	type traversalRows struct {
		seeds []string
		paths []*neo4j.Record
	}
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows := &traversalRows{}

		// Unknown start ids are silently dropped; known ones seed the
		// visited set at distance 0 even when isolated.
		seedRes, err := tx.Run(ctx, `
			UNWIND $start_ids AS sid
			MATCH (e:Entity {uuid: sid})
			RETURN e.uuid AS uuid
		`, map[string]any{"start_ids": q.StartIDs})
		if err != nil {
			return nil, err
		}
		seedRecords, err := seedRes.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, record := range seedRecords {
			if v, ok := record.Get("uuid"); ok {
				rows.seeds = append(rows.seeds, v.(string))
			}
		}

		res, err := tx.Run(ctx, cypher, map[string]any{
			"start_ids": q.StartIDs,
			"rel_types": relTypes,
		})
		if err != nil {
			return nil, err
		}
		rows.paths, err = res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return rows, nil
	})
	if err != nil {
		return nil, mapNeo4jErr(err)
	}
	rows := result.(*traversalRows)

	type path struct {
		start string
		rels  []*types.Relationship
	}
	var paths []path
	for _, record := range rows.paths {
		startID, _ := record.Get("start_id")
		relsValue, _ := record.Get("rels")
		relList, ok := relsValue.([]any)
		if !ok {
			continue
		}
		p := path{start: startID.(string)}
		for _, rv := range relList {
			if props, ok := rv.(map[string]any); ok {
				p.rels = append(p.rels, relFromProps(props))
			}
		}
		paths = append(paths, p)
	}

	// Shortest paths first so first-visit distances match BFS layering.
	sort.SliceStable(paths, func(i, j int) bool { return len(paths[i].rels) < len(paths[j].rels) })

	visited := make(map[string]int)
	for _, seed := range rows.seeds {
		visited[seed] = 0
	}

	seenEdges := make(map[string]bool)
	var edges []PathEdge
	for _, p := range paths {
		current := p.start
		segment := make([]string, 0, len(p.rels))
		for hop, rel := range p.rels {
			segment = append(segment, rel.Uuid)
			neighbor := rel.TargetID
			if neighbor == current {
				neighbor = rel.SourceID
			}
			if !seenEdges[rel.Uuid] {
				seenEdges[rel.Uuid] = true
				pathCopy := make([]string, len(segment))
				copy(pathCopy, segment)
				edges = append(edges, PathEdge{Edge: rel, Hop: hop + 1, Path: pathCopy})
			}
			if _, ok := visited[neighbor]; !ok {
				visited[neighbor] = hop + 1
			}
			current = neighbor
		}
	}

	return assembleTraversal(ctx, n, visited, edges)
}

// Stats retrieves graph statistics.
func (n *Neo4jStore) Stats(ctx context.Context) (*GraphStats, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (e:Entity)
			OPTIONAL MATCH ()-[r:RELATES_TO]->()
			RETURN count(DISTINCT e) AS nodes, count(DISTINCT r) AS edges
		`, nil)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		stats := &GraphStats{
			NodesByType: make(map[string]int64),
			EdgesByType: make(map[string]int64),
			LastUpdated: time.Now(),
		}
		if len(records) > 0 {
			if v, ok := records[0].Get("nodes"); ok {
				stats.NodeCount, _ = v.(int64)
			}
			if v, ok := records[0].Get("edges"); ok {
				stats.EdgeCount, _ = v.(int64)
			}
		}
		return stats, nil
	})
	if err != nil {
		return nil, mapNeo4jErr(err)
	}
	return result.(*GraphStats), nil
}

// Provider returns ProviderNeo4j.
func (n *Neo4jStore) Provider() Provider {
	return ProviderNeo4j
}

// Close releases the underlying driver.
func (n *Neo4jStore) Close() error {
	return n.client.Close(context.Background())
}
