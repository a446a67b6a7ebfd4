package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/atlasgraph/atlas/pkg/types"
)

// BreakerConfig tunes the circuit breaker wrapping a graph store.
type BreakerConfig struct {
	// MaxFailures before the breaker opens.
	MaxFailures uint32 `mapstructure:"max_failures"`
	// Timeout before a half-open probe is allowed.
	Timeout time.Duration `mapstructure:"timeout"`
	// Interval over which failure counts are accumulated.
	Interval time.Duration `mapstructure:"interval"`
}

// DefaultBreakerConfig returns sensible breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		Interval:    60 * time.Second,
	}
}

// BreakerStore wraps a GraphStore with a circuit breaker. While the
// breaker is open every call fails fast with ErrBackendUnavailable, which
// lets the search layer degrade instead of queueing on a dead backend.
type BreakerStore struct {
	inner GraphStore
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps a store with breaker protection.
func NewBreakerStore(inner GraphStore, cfg BreakerConfig) *BreakerStore {
	if cfg.MaxFailures == 0 {
		cfg = DefaultBreakerConfig()
	}
	settings := gobreaker.Settings{
		Name:     fmt.Sprintf("graph-%s", inner.Provider()),
		Timeout:  cfg.Timeout,
		Interval: cfg.Interval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Lookup misses and caller mistakes must not trip the breaker.
			if err == nil || errors.Is(err, types.ErrNotFound) {
				return true
			}
			var verr *types.ValidationError
			return errors.As(err, &verr)
		},
	}
	return &BreakerStore{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerStore) execute(fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit breaker open for %s", types.ErrBackendUnavailable, b.inner.Provider())
	}
	return out, err
}

func (b *BreakerStore) GetNode(ctx context.Context, id string) (*types.Entity, error) {
	out, err := b.execute(func() (any, error) { return b.inner.GetNode(ctx, id) })
	if err != nil {
		return nil, err
	}
	return out.(*types.Entity), nil
}

func (b *BreakerStore) GetNodes(ctx context.Context, ids []string) ([]*types.Entity, error) {
	out, err := b.execute(func() (any, error) { return b.inner.GetNodes(ctx, ids) })
	if err != nil {
		return nil, err
	}
	return out.([]*types.Entity), nil
}

func (b *BreakerStore) UpsertNode(ctx context.Context, entity *types.Entity) error {
	_, err := b.execute(func() (any, error) { return nil, b.inner.UpsertNode(ctx, entity) })
	return err
}

func (b *BreakerStore) UpsertEdge(ctx context.Context, rel *types.Relationship) error {
	_, err := b.execute(func() (any, error) { return nil, b.inner.UpsertEdge(ctx, rel) })
	return err
}

func (b *BreakerStore) GetEdgesBetween(ctx context.Context, sourceID, targetID string) ([]*types.Relationship, error) {
	out, err := b.execute(func() (any, error) { return b.inner.GetEdgesBetween(ctx, sourceID, targetID) })
	if err != nil {
		return nil, err
	}
	return out.([]*types.Relationship), nil
}

func (b *BreakerStore) FindByName(ctx context.Context, name string, opts *NameSearchOptions) ([]*types.Entity, error) {
	out, err := b.execute(func() (any, error) { return b.inner.FindByName(ctx, name, opts) })
	if err != nil {
		return nil, err
	}
	return out.([]*types.Entity), nil
}

func (b *BreakerStore) EntitiesByType(ctx context.Context, entityType string) ([]*types.Entity, error) {
	out, err := b.execute(func() (any, error) { return b.inner.EntitiesByType(ctx, entityType) })
	if err != nil {
		return nil, err
	}
	return out.([]*types.Entity), nil
}

func (b *BreakerStore) Traverse(ctx context.Context, query *TraversalQuery) (*TraversalResult, error) {
	out, err := b.execute(func() (any, error) { return b.inner.Traverse(ctx, query) })
	if err != nil {
		return nil, err
	}
	return out.(*TraversalResult), nil
}

func (b *BreakerStore) Stats(ctx context.Context) (*GraphStats, error) {
	out, err := b.execute(func() (any, error) { return b.inner.Stats(ctx) })
	if err != nil {
		return nil, err
	}
	return out.(*GraphStats), nil
}

func (b *BreakerStore) Provider() Provider {
	return b.inner.Provider()
}

// State reports the current breaker state, mostly for health endpoints.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStore) Close() error {
	return b.inner.Close()
}
