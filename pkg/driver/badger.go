package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/atlasgraph/atlas/pkg/types"
	"github.com/atlasgraph/atlas/pkg/utils"
)

// Key prefixes for badger storage organization. Single-byte prefixes keep
// iteration cheap.
const (
	prefixNode          = byte(0x01) // node uuid -> JSON(Entity)
	prefixEdge          = byte(0x02) // edge uuid -> JSON(Relationship)
	prefixOutgoingIndex = byte(0x03) // node uuid + 0x00 + edge uuid -> empty
	prefixIncomingIndex = byte(0x04) // node uuid + 0x00 + edge uuid -> empty
	prefixTypeIndex     = byte(0x05) // entity type + 0x00 + node uuid -> empty
	prefixNameIndex     = byte(0x06) // normalized name + 0x00 + node uuid -> empty
)

const keySep = byte(0x00)

// BadgerStore is a persistent GraphStore backed by badger. Traversal is
// expressed as bounded breadth-first set expansion over the adjacency
// indexes rather than a native graph query.
type BadgerStore struct {
	db *badger.DB
}

// BadgerOptions configures the badger-backed store.
type BadgerOptions struct {
	// DataDir is the directory for data files. Required unless InMemory.
	DataDir string
	// InMemory runs badger without persistence. Used in tests.
	InMemory bool
	// SyncWrites forces fsync after each write.
	SyncWrites bool
}

// NewBadgerStore opens a persistent store at opts.DataDir.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir).
		WithLogger(nil).
		WithSyncWrites(opts.SyncWrites)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStoreInMemory opens a non-persistent store for tests.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	return NewBadgerStore(BadgerOptions{InMemory: true})
}

func nodeKey(id string) []byte {
	return append([]byte{prefixNode}, id...)
}

func edgeKey(id string) []byte {
	return append([]byte{prefixEdge}, id...)
}

func indexKey(prefix byte, first, second string) []byte {
	key := make([]byte, 0, 2+len(first)+len(second))
	key = append(key, prefix)
	key = append(key, first...)
	key = append(key, keySep)
	key = append(key, second...)
	return key
}

func indexPrefix(prefix byte, first string) []byte {
	key := make([]byte, 0, 2+len(first))
	key = append(key, prefix)
	key = append(key, first...)
	key = append(key, keySep)
	return key
}

// indexSuffix extracts the trailing component of an index key.
func indexSuffix(key []byte) string {
	idx := bytes.IndexByte(key[1:], keySep)
	if idx < 0 {
		return ""
	}
	return string(key[idx+2:])
}

func mapBadgerErr(err error) error {
	if err == nil {
		return nil
	}
	if err == badger.ErrDBClosed || err == badger.ErrBlockedWrites {
		return fmt.Errorf("%w: %v", types.ErrBackendUnavailable, err)
	}
	if errors.Is(err, badger.ErrConflict) {
		// Optimistic transaction lost a race; retryable.
		return fmt.Errorf("%w: %v", &types.ConflictError{Message: "transaction conflict"}, err)
	}
	return err
}

// GetNode retrieves a single entity by uuid.
func (b *BadgerStore) GetNode(ctx context.Context, id string) (*types.Entity, error) {
	var entity *types.Entity
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("entity %s: %w", id, types.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			entity = &types.Entity{}
			return json.Unmarshal(val, entity)
		})
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	return entity, nil
}

// GetNodes retrieves multiple entities, skipping unknown ids.
func (b *BadgerStore) GetNodes(ctx context.Context, ids []string) ([]*types.Entity, error) {
	result := make([]*types.Entity, 0, len(ids))
	err := b.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(nodeKey(id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			entity := &types.Entity{}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, entity)
			}); err != nil {
				return err
			}
			result = append(result, entity)
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	return result, nil
}

// UpsertNode creates or replaces an entity and maintains the type and name
// indexes.
func (b *BadgerStore) UpsertNode(ctx context.Context, entity *types.Entity) error {
	if err := entity.ValidateForCreate(); err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to encode entity: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		// Drop stale index entries when type or name changed.
		if item, err := txn.Get(nodeKey(entity.Uuid)); err == nil {
			prev := &types.Entity{}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, prev)
			}); err != nil {
				return err
			}
			if prev.EntityType != entity.EntityType {
				if err := txn.Delete(indexKey(prefixTypeIndex, prev.EntityType, prev.Uuid)); err != nil {
					return err
				}
			}
			prevName := utils.NormalizeName(prev.Name)
			if prevName != utils.NormalizeName(entity.Name) {
				if err := txn.Delete(indexKey(prefixNameIndex, prevName, prev.Uuid)); err != nil {
					return err
				}
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if err := txn.Set(nodeKey(entity.Uuid), data); err != nil {
			return err
		}
		if err := txn.Set(indexKey(prefixTypeIndex, entity.EntityType, entity.Uuid), nil); err != nil {
			return err
		}
		return txn.Set(indexKey(prefixNameIndex, utils.NormalizeName(entity.Name), entity.Uuid), nil)
	})
	return mapBadgerErr(err)
}

// UpsertEdge creates or replaces a relationship and maintains the
// adjacency indexes. Both endpoints must exist.
func (b *BadgerStore) UpsertEdge(ctx context.Context, rel *types.Relationship) error {
	if err := rel.ValidateForCreate(); err != nil {
		return err
	}

	data, err := json.Marshal(rel)
	if err != nil {
		return fmt.Errorf("failed to encode relationship: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(nodeKey(rel.SourceID)); err == badger.ErrKeyNotFound {
			return fmt.Errorf("source entity %s: %w", rel.SourceID, types.ErrNotFound)
		} else if err != nil {
			return err
		}
		if _, err := txn.Get(nodeKey(rel.TargetID)); err == badger.ErrKeyNotFound {
			return fmt.Errorf("target entity %s: %w", rel.TargetID, types.ErrNotFound)
		} else if err != nil {
			return err
		}

		if err := txn.Set(edgeKey(rel.Uuid), data); err != nil {
			return err
		}
		if err := txn.Set(indexKey(prefixOutgoingIndex, rel.SourceID, rel.Uuid), nil); err != nil {
			return err
		}
		return txn.Set(indexKey(prefixIncomingIndex, rel.TargetID, rel.Uuid), nil)
	})
	return mapBadgerErr(err)
}

func (b *BadgerStore) edgesByIndex(txn *badger.Txn, prefix byte, nodeID string) ([]*types.Relationship, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = indexPrefix(prefix, nodeID)
	it := txn.NewIterator(opts)
	defer it.Close()

	var edgeIDs []string
	for it.Rewind(); it.Valid(); it.Next() {
		edgeIDs = append(edgeIDs, indexSuffix(it.Item().Key()))
	}

	result := make([]*types.Relationship, 0, len(edgeIDs))
	for _, id := range edgeIDs {
		item, err := txn.Get(edgeKey(id))
		if err == badger.ErrKeyNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		edge := &types.Relationship{}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, edge)
		}); err != nil {
			return nil, err
		}
		result = append(result, edge)
	}
	return result, nil
}

// GetEdgesBetween retrieves all edges from source to target.
func (b *BadgerStore) GetEdgesBetween(ctx context.Context, sourceID, targetID string) ([]*types.Relationship, error) {
	var result []*types.Relationship
	err := b.db.View(func(txn *badger.Txn) error {
		edges, err := b.edgesByIndex(txn, prefixOutgoingIndex, sourceID)
		if err != nil {
			return err
		}
		for _, edge := range edges {
			if edge.TargetID == targetID {
				result = append(result, edge)
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	return result, nil
}

// FindByName resolves entities by name. Exact lookups hit the name index;
// fuzzy matching scans nodes and scores trigram similarity.
func (b *BadgerStore) FindByName(ctx context.Context, name string, opts *NameSearchOptions) ([]*types.Entity, error) {
	opts = nameSearchDefaults(opts)
	normalized := utils.NormalizeName(name)
	typeFilter := typeFilterSet(opts.EntityTypes)

	type scored struct {
		entity *types.Entity
		score  float64
	}
	var matches []scored

	err := b.db.View(func(txn *badger.Txn) error {
		// Exact matches via the name index.
		exactOpts := badger.DefaultIteratorOptions
		exactOpts.PrefetchValues = false
		exactOpts.Prefix = indexPrefix(prefixNameIndex, normalized)
		it := txn.NewIterator(exactOpts)
		exact := make(map[string]bool)
		for it.Rewind(); it.Valid(); it.Next() {
			exact[indexSuffix(it.Item().Key())] = true
		}
		it.Close()

		for id := range exact {
			item, err := txn.Get(nodeKey(id))
			if err != nil {
				continue
			}
			entity := &types.Entity{}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, entity)
			}); err != nil {
				return err
			}
			if typeFilter != nil && !typeFilter[entity.EntityType] {
				continue
			}
			matches = append(matches, scored{entity, 1.0})
		}

		if !opts.Fuzzy {
			return nil
		}

		// Fuzzy pass scans node records.
		nodeOpts := badger.DefaultIteratorOptions
		nodeOpts.Prefix = []byte{prefixNode}
		nodeIt := txn.NewIterator(nodeOpts)
		defer nodeIt.Close()
		for nodeIt.Rewind(); nodeIt.Valid(); nodeIt.Next() {
			entity := &types.Entity{}
			if err := nodeIt.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, entity)
			}); err != nil {
				return err
			}
			if exact[entity.Uuid] {
				continue
			}
			if typeFilter != nil && !typeFilter[entity.EntityType] {
				continue
			}
			if sim := utils.NameSimilarity(entity.Name, name); sim >= opts.MinSimilarity {
				matches = append(matches, scored{entity, sim})
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].entity.Uuid < matches[j].entity.Uuid
	})

	result := make([]*types.Entity, 0, min(opts.Limit, len(matches)))
	for i := 0; i < len(matches) && i < opts.Limit; i++ {
		result = append(result, matches[i].entity)
	}
	return result, nil
}

// EntitiesByType retrieves all entities of one type via the type index.
func (b *BadgerStore) EntitiesByType(ctx context.Context, entityType string) ([]*types.Entity, error) {
	var result []*types.Entity
	err := b.db.View(func(txn *badger.Txn) error {
		typeOpts := badger.DefaultIteratorOptions
		typeOpts.PrefetchValues = false
		typeOpts.Prefix = indexPrefix(prefixTypeIndex, entityType)
		it := txn.NewIterator(typeOpts)
		var ids []string
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, indexSuffix(it.Item().Key()))
		}
		it.Close()

		for _, id := range ids {
			item, err := txn.Get(nodeKey(id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			entity := &types.Entity{}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, entity)
			}); err != nil {
				return err
			}
			result = append(result, entity)
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Uuid < result[j].Uuid })
	return result, nil
}

// edgesFrom implements adjacencySource for the shared BFS expansion.
func (b *BadgerStore) edgesFrom(ctx context.Context, nodeID string, dir Direction) ([]*types.Relationship, error) {
	var result []*types.Relationship
	err := b.db.View(func(txn *badger.Txn) error {
		seen := make(map[string]bool)
		appendEdges := func(prefix byte) error {
			edges, err := b.edgesByIndex(txn, prefix, nodeID)
			if err != nil {
				return err
			}
			for _, edge := range edges {
				if seen[edge.Uuid] {
					continue
				}
				seen[edge.Uuid] = true
				result = append(result, edge)
			}
			return nil
		}

		switch dir {
		case DirectionOutbound:
			return appendEdges(prefixOutgoingIndex)
		case DirectionInbound:
			return appendEdges(prefixIncomingIndex)
		default:
			if err := appendEdges(prefixOutgoingIndex); err != nil {
				return err
			}
			return appendEdges(prefixIncomingIndex)
		}
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	return result, nil
}

// Traverse performs a cycle-safe bounded breadth-first expansion over the
// adjacency indexes.
func (b *BadgerStore) Traverse(ctx context.Context, query *TraversalQuery) (*TraversalResult, error) {
	known := make([]string, 0, len(query.StartIDs))
	err := b.db.View(func(txn *badger.Txn) error {
		for _, id := range query.StartIDs {
			if _, err := txn.Get(nodeKey(id)); err == nil {
				known = append(known, id)
			} else if err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}

	q := *query
	q.StartIDs = known
	visited, edges, err := expand(ctx, b, &q)
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	return assembleTraversal(ctx, b, visited, edges)
}

// Stats retrieves graph statistics by scanning node and edge records.
func (b *BadgerStore) Stats(ctx context.Context) (*GraphStats, error) {
	stats := &GraphStats{
		NodesByType: make(map[string]int64),
		EdgesByType: make(map[string]int64),
		LastUpdated: time.Now(),
	}
	err := b.db.View(func(txn *badger.Txn) error {
		nodeOpts := badger.DefaultIteratorOptions
		nodeOpts.Prefix = []byte{prefixNode}
		it := txn.NewIterator(nodeOpts)
		for it.Rewind(); it.Valid(); it.Next() {
			entity := &types.Entity{}
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, entity)
			}); err != nil {
				it.Close()
				return err
			}
			stats.NodeCount++
			stats.NodesByType[entity.EntityType]++
		}
		it.Close()

		edgeOpts := badger.DefaultIteratorOptions
		edgeOpts.Prefix = []byte{prefixEdge}
		eit := txn.NewIterator(edgeOpts)
		defer eit.Close()
		for eit.Rewind(); eit.Valid(); eit.Next() {
			edge := &types.Relationship{}
			if err := eit.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, edge)
			}); err != nil {
				return err
			}
			stats.EdgeCount++
			stats.EdgesByType[edge.RelType]++
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	return stats, nil
}

// Provider returns ProviderBadger.
func (b *BadgerStore) Provider() Provider {
	return ProviderBadger
}

// Close releases the underlying database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}
