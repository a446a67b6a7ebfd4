package driver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasgraph/atlas/pkg/types"
)

func testEntity(id, name, entityType string) *types.Entity {
	now := time.Now().UTC()
	return &types.Entity{
		Uuid:         id,
		EntityType:   entityType,
		Name:         name,
		QualityScore: 0.5,
		Version:      1,
		SourceRef:    "test",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func testEdge(id, sourceID, targetID, relType string, deprecated bool) *types.Relationship {
	return &types.Relationship{
		Uuid:       id,
		SourceID:   sourceID,
		TargetID:   targetID,
		RelType:    relType,
		Confidence: 0.9,
		Deprecated: deprecated,
		CreatedAt:  time.Now().UTC(),
	}
}

// seedGraph builds:
//
//	a --affects--> b --relates_to--> c --relates_to--> a   (cycle)
//	                                 c --relates_to--> d
//	a --relates_to--> d   (deprecated)
func seedGraph(t *testing.T, store GraphStore) {
	t.Helper()
	ctx := context.Background()

	for _, e := range []*types.Entity{
		testEntity("a", "open bucket finding", types.EntityTypeFinding),
		testEntity("b", "payments service", types.EntityTypeService),
		testEntity("c", "kubernetes cluster", types.EntityTypeResource),
		testEntity("d", "encryption control", types.EntityTypeControl),
	} {
		require.NoError(t, store.UpsertNode(ctx, e))
	}
	for _, r := range []*types.Relationship{
		testEdge("e-ab", "a", "b", types.RelTypeAffects, false),
		testEdge("e-bc", "b", "c", types.RelTypeRelatesTo, false),
		testEdge("e-ca", "c", "a", types.RelTypeRelatesTo, false),
		testEdge("e-cd", "c", "d", types.RelTypeRelatesTo, false),
		testEdge("e-ad", "a", "d", types.RelTypeRelatesTo, true),
	} {
		require.NoError(t, store.UpsertEdge(ctx, r))
	}
}

// runForBackends runs the same assertions against every embedded backend.
func runForBackends(t *testing.T, fn func(t *testing.T, store GraphStore)) {
	t.Helper()

	backends := []struct {
		name string
		open func(t *testing.T) GraphStore
	}{
		{"memory", func(t *testing.T) GraphStore { return NewMemoryStore() }},
		{"badger", func(t *testing.T) GraphStore {
			store, err := NewBadgerStoreInMemory()
			require.NoError(t, err)
			return store
		}},
	}
	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			store := backend.open(t)
			defer store.Close()
			fn(t, store)
		})
	}
}

func TestTraverseCycleSafe(t *testing.T) {
	runForBackends(t, func(t *testing.T, store GraphStore) {
		seedGraph(t, store)

		result, err := store.Traverse(context.Background(), &TraversalQuery{
			StartIDs:  []string{"a"},
			MaxHops:   3,
			Direction: DirectionOutbound,
		})
		require.NoError(t, err)

		// The c->a edge closes a cycle; a must keep its distance 0 and
		// appear exactly once.
		assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2, "d": 3}, result.Visited)
		require.Len(t, result.Entities, 4)
		assert.Equal(t, "a", result.Entities[0].Uuid)

		crossed := make(map[string]int)
		for _, pe := range result.Edges {
			crossed[pe.Edge.Uuid] = pe.Hop
		}
		assert.NotContains(t, crossed, "e-ad", "deprecated edges must be skipped")
		assert.Equal(t, 1, crossed["e-ab"])
		assert.Equal(t, 2, crossed["e-bc"])
	})
}

func TestTraverseHopBound(t *testing.T) {
	runForBackends(t, func(t *testing.T, store GraphStore) {
		seedGraph(t, store)

		result, err := store.Traverse(context.Background(), &TraversalQuery{
			StartIDs:  []string{"a"},
			MaxHops:   1,
			Direction: DirectionOutbound,
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"a": 0, "b": 1}, result.Visited)
	})
}

func TestTraverseHopClamping(t *testing.T) {
	runForBackends(t, func(t *testing.T, store GraphStore) {
		seedGraph(t, store)

		// Requested depth beyond the cap is clamped, not rejected.
		result, err := store.Traverse(context.Background(), &TraversalQuery{
			StartIDs:  []string{"a"},
			MaxHops:   10,
			Direction: DirectionOutbound,
		})
		require.NoError(t, err)
		for _, hop := range result.Visited {
			assert.LessOrEqual(t, hop, MaxHops)
		}
	})
}

func TestTraverseUnknownStart(t *testing.T) {
	runForBackends(t, func(t *testing.T, store GraphStore) {
		seedGraph(t, store)

		result, err := store.Traverse(context.Background(), &TraversalQuery{
			StartIDs: []string{"nope"},
			MaxHops:  2,
		})
		require.NoError(t, err)
		assert.Empty(t, result.Visited)
		assert.Empty(t, result.Entities)
		assert.Empty(t, result.Edges)
	})
}

func TestTraverseInbound(t *testing.T) {
	runForBackends(t, func(t *testing.T, store GraphStore) {
		seedGraph(t, store)

		result, err := store.Traverse(context.Background(), &TraversalQuery{
			StartIDs:  []string{"a"},
			MaxHops:   1,
			Direction: DirectionInbound,
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"a": 0, "c": 1}, result.Visited)
	})
}

func TestTraverseRelTypeFilter(t *testing.T) {
	runForBackends(t, func(t *testing.T, store GraphStore) {
		seedGraph(t, store)

		result, err := store.Traverse(context.Background(), &TraversalQuery{
			StartIDs:  []string{"a"},
			RelTypes:  []string{types.RelTypeAffects},
			MaxHops:   3,
			Direction: DirectionOutbound,
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"a": 0, "b": 1}, result.Visited)
	})
}

func TestTraverseIsolatedStart(t *testing.T) {
	runForBackends(t, func(t *testing.T, store GraphStore) {
		ctx := context.Background()
		require.NoError(t, store.UpsertNode(ctx, testEntity("lone", "isolated node", types.EntityTypeResource)))

		result, err := store.Traverse(ctx, &TraversalQuery{StartIDs: []string{"lone"}, MaxHops: 2})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"lone": 0}, result.Visited)
		require.Len(t, result.Entities, 1)
	})
}

func TestUpsertEdgeMissingEndpoint(t *testing.T) {
	runForBackends(t, func(t *testing.T, store GraphStore) {
		ctx := context.Background()
		require.NoError(t, store.UpsertNode(ctx, testEntity("a", "alpha", types.EntityTypeFinding)))

		err := store.UpsertEdge(ctx, testEdge("e-1", "a", "ghost", types.RelTypeAffects, false))
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestGetNodeNotFound(t *testing.T) {
	runForBackends(t, func(t *testing.T, store GraphStore) {
		_, err := store.GetNode(context.Background(), "missing")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestGetNodesSkipsUnknown(t *testing.T) {
	runForBackends(t, func(t *testing.T, store GraphStore) {
		ctx := context.Background()
		seedGraph(t, store)

		entities, err := store.GetNodes(ctx, []string{"a", "missing", "c"})
		require.NoError(t, err)
		assert.Len(t, entities, 2)
	})
}

func TestFindByName(t *testing.T) {
	runForBackends(t, func(t *testing.T, store GraphStore) {
		ctx := context.Background()
		seedGraph(t, store)

		t.Run("exact ignores case and spacing", func(t *testing.T) {
			matches, err := store.FindByName(ctx, "  Payments   SERVICE ", &NameSearchOptions{Limit: 5})
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, "b", matches[0].Uuid)
		})

		t.Run("fuzzy catches near names", func(t *testing.T) {
			matches, err := store.FindByName(ctx, "kubernetes clusters", &NameSearchOptions{Limit: 5, Fuzzy: true})
			require.NoError(t, err)
			require.NotEmpty(t, matches)
			assert.Equal(t, "c", matches[0].Uuid)
		})

		t.Run("fuzzy rejects unrelated names", func(t *testing.T) {
			matches, err := store.FindByName(ctx, "zzzz qqqq xxxx", &NameSearchOptions{Limit: 5, Fuzzy: true})
			require.NoError(t, err)
			assert.Empty(t, matches)
		})

		t.Run("entity type filter", func(t *testing.T) {
			matches, err := store.FindByName(ctx, "payments service", &NameSearchOptions{
				Limit:       5,
				EntityTypes: []string{types.EntityTypeControl},
			})
			require.NoError(t, err)
			assert.Empty(t, matches)
		})
	})
}

func TestEntitiesByType(t *testing.T) {
	runForBackends(t, func(t *testing.T, store GraphStore) {
		ctx := context.Background()
		seedGraph(t, store)
		require.NoError(t, store.UpsertNode(ctx, testEntity("a2", "stale bucket finding", types.EntityTypeFinding)))

		entities, err := store.EntitiesByType(ctx, types.EntityTypeFinding)
		require.NoError(t, err)
		require.Len(t, entities, 2)
		assert.Equal(t, "a", entities[0].Uuid)
		assert.Equal(t, "a2", entities[1].Uuid)
	})
}

func TestStats(t *testing.T) {
	runForBackends(t, func(t *testing.T, store GraphStore) {
		seedGraph(t, store)

		stats, err := store.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(4), stats.NodeCount)
		assert.Equal(t, int64(5), stats.EdgeCount)
	})
}

func TestUpsertNodeValidation(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	err := store.UpsertNode(context.Background(), &types.Entity{Uuid: "x", EntityType: types.EntityTypeFinding})
	assert.ErrorIs(t, err, types.ErrEmptyName)
}

func TestMemoryStoreUnavailable(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	seedGraph(t, store)
	store.SetUnavailable(true)

	_, err := store.GetNode(context.Background(), "a")
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)

	_, err = store.Traverse(context.Background(), &TraversalQuery{StartIDs: []string{"a"}, MaxHops: 1})
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)

	store.SetUnavailable(false)
	_, err = store.GetNode(context.Background(), "a")
	assert.NoError(t, err)
}

func TestFactory(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		provider Provider
		wantErr  bool
	}{
		{"default is memory", Config{}, ProviderMemory, false},
		{"explicit memory", Config{Provider: "memory"}, ProviderMemory, false},
		{"unknown provider", Config{Provider: "dgraph"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer store.Close()
			assert.Equal(t, tt.provider, store.Provider())
		})
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := NewMemoryStore()
	seedGraph(t, inner)
	store := NewBreakerStore(inner, BreakerConfig{MaxFailures: 3, Timeout: time.Minute, Interval: time.Minute})
	defer store.Close()
	ctx := context.Background()

	inner.SetUnavailable(true)
	for i := 0; i < 3; i++ {
		_, err := store.GetNode(ctx, "a")
		assert.ErrorIs(t, err, types.ErrBackendUnavailable)
	}

	// Breaker is now open; calls fail fast even though the backend
	// recovered.
	inner.SetUnavailable(false)
	_, err := store.GetNode(ctx, "a")
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)
}

func TestBreakerIgnoresNotFound(t *testing.T) {
	inner := NewMemoryStore()
	seedGraph(t, inner)
	store := NewBreakerStore(inner, BreakerConfig{MaxFailures: 2, Timeout: time.Minute, Interval: time.Minute})
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := store.GetNode(ctx, "missing")
		assert.ErrorIs(t, err, types.ErrNotFound)
	}

	// Misses never trip the breaker.
	entity, err := store.GetNode(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", entity.Uuid)
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	t.Run("recovers from transient failures", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, cfg, func() error {
			calls++
			if calls < 3 {
				return types.ErrBackendUnavailable
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, cfg, func() error {
			calls++
			return types.ErrTimeout
		})
		assert.ErrorIs(t, err, types.ErrTimeout)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry deterministic errors", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, cfg, func() error {
			calls++
			return fmt.Errorf("entity x: %w", types.ErrNotFound)
		})
		assert.ErrorIs(t, err, types.ErrNotFound)
		assert.Equal(t, 1, calls)
	})
}

func TestRetryStoreWrapsOperations(t *testing.T) {
	inner := NewMemoryStore()
	seedGraph(t, inner)
	store := NewRetryStore(inner, RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
	defer store.Close()

	entity, err := store.GetNode(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "a", entity.Uuid)
	assert.Equal(t, ProviderMemory, store.Provider())
}

func TestBadgerPersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewBadgerStore(BadgerOptions{DataDir: dir})
	require.NoError(t, err)
	seedGraph(t, store)
	require.NoError(t, store.Close())

	reopened, err := NewBadgerStore(BadgerOptions{DataDir: dir})
	require.NoError(t, err)
	defer reopened.Close()

	entity, err := reopened.GetNode(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "open bucket finding", entity.Name)

	result, err := reopened.Traverse(ctx, &TraversalQuery{StartIDs: []string{"a"}, MaxHops: 3, Direction: DirectionOutbound})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2, "d": 3}, result.Visited)
}

func TestClosedBadgerReportsUnavailable(t *testing.T) {
	store, err := NewBadgerStoreInMemory()
	require.NoError(t, err)
	seedGraph(t, store)
	require.NoError(t, store.Close())

	_, err = store.GetNode(context.Background(), "a")
	assert.True(t, errors.Is(err, types.ErrBackendUnavailable), "got %v", err)
}

func TestBadgerConflictMapsToConflictError(t *testing.T) {
	err := mapBadgerErr(badger.ErrConflict)

	var cerr *types.ConflictError
	assert.ErrorAs(t, err, &cerr)
	assert.True(t, retryable(err), "lost transaction races must be retried")
}

func TestWithRetryRecoversFromConflict(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	calls := 0
	err := withRetry(context.Background(), cfg, func() error {
		calls++
		if calls == 1 {
			return fmt.Errorf("%w: simulated race", &types.ConflictError{Message: "transaction conflict"})
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetrySurfacesConflictWhenExhausted(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	err := withRetry(context.Background(), cfg, func() error {
		return fmt.Errorf("%w: simulated race", &types.ConflictError{Message: "transaction conflict"})
	})
	var cerr *types.ConflictError
	assert.ErrorAs(t, err, &cerr)
}
