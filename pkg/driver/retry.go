package driver

import (
	"context"
	"errors"
	"time"

	"github.com/atlasgraph/atlas/pkg/types"
)

// RetryConfig tunes transient-failure retries for graph operations.
type RetryConfig struct {
	// MaxAttempts including the first try.
	MaxAttempts int `mapstructure:"max_attempts"`
	// InitialDelay before the first retry; doubles each attempt.
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

// DefaultRetryConfig returns the standard retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

// retryable reports whether an error is worth retrying. Validation
// failures and missing entities are deterministic; backend
// availability, timeouts and lost transaction races qualify.
func retryable(err error) bool {
	return errors.Is(err, types.ErrBackendUnavailable) ||
		errors.Is(err, types.ErrTimeout) ||
		errors.Is(err, &types.ConflictError{})
}

// withRetry runs op with bounded exponential backoff.
func withRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}
	delay := cfg.InitialDelay
	var err error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
		if err = op(); err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

// RetryStore wraps a GraphStore and retries transient failures with
// exponential backoff. Layered inside a BreakerStore the breaker sees a
// failure only once the retries are exhausted.
type RetryStore struct {
	inner GraphStore
	cfg   RetryConfig
}

// NewRetryStore wraps a store with the given retry policy.
func NewRetryStore(inner GraphStore, cfg RetryConfig) *RetryStore {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}
	return &RetryStore{inner: inner, cfg: cfg}
}

func (r *RetryStore) GetNode(ctx context.Context, id string) (*types.Entity, error) {
	var out *types.Entity
	err := withRetry(ctx, r.cfg, func() error {
		var opErr error
		out, opErr = r.inner.GetNode(ctx, id)
		return opErr
	})
	return out, err
}

func (r *RetryStore) GetNodes(ctx context.Context, ids []string) ([]*types.Entity, error) {
	var out []*types.Entity
	err := withRetry(ctx, r.cfg, func() error {
		var opErr error
		out, opErr = r.inner.GetNodes(ctx, ids)
		return opErr
	})
	return out, err
}

func (r *RetryStore) UpsertNode(ctx context.Context, entity *types.Entity) error {
	return withRetry(ctx, r.cfg, func() error { return r.inner.UpsertNode(ctx, entity) })
}

func (r *RetryStore) UpsertEdge(ctx context.Context, rel *types.Relationship) error {
	return withRetry(ctx, r.cfg, func() error { return r.inner.UpsertEdge(ctx, rel) })
}

func (r *RetryStore) GetEdgesBetween(ctx context.Context, sourceID, targetID string) ([]*types.Relationship, error) {
	var out []*types.Relationship
	err := withRetry(ctx, r.cfg, func() error {
		var opErr error
		out, opErr = r.inner.GetEdgesBetween(ctx, sourceID, targetID)
		return opErr
	})
	return out, err
}

func (r *RetryStore) FindByName(ctx context.Context, name string, opts *NameSearchOptions) ([]*types.Entity, error) {
	var out []*types.Entity
	err := withRetry(ctx, r.cfg, func() error {
		var opErr error
		out, opErr = r.inner.FindByName(ctx, name, opts)
		return opErr
	})
	return out, err
}

func (r *RetryStore) EntitiesByType(ctx context.Context, entityType string) ([]*types.Entity, error) {
	var out []*types.Entity
	err := withRetry(ctx, r.cfg, func() error {
		var opErr error
		out, opErr = r.inner.EntitiesByType(ctx, entityType)
		return opErr
	})
	return out, err
}

func (r *RetryStore) Traverse(ctx context.Context, query *TraversalQuery) (*TraversalResult, error) {
	var out *TraversalResult
	err := withRetry(ctx, r.cfg, func() error {
		var opErr error
		out, opErr = r.inner.Traverse(ctx, query)
		return opErr
	})
	return out, err
}

func (r *RetryStore) Stats(ctx context.Context) (*GraphStats, error) {
	var out *GraphStats
	err := withRetry(ctx, r.cfg, func() error {
		var opErr error
		out, opErr = r.inner.Stats(ctx)
		return opErr
	})
	return out, err
}

func (r *RetryStore) Provider() Provider {
	return r.inner.Provider()
}

func (r *RetryStore) Close() error {
	return r.inner.Close()
}
