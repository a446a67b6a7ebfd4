package search

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/atlasgraph/atlas/pkg/types"
)

// DefaultCacheTTL bounds how long a ranked result is served unchanged.
const DefaultCacheTTL = 5 * time.Minute

// cacheKey derives a stable key from everything that affects the result
// set. The query must already be normalized.
func cacheKey(q *types.SearchQuery) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d|%d",
		q.Text,
		q.Mode,
		strings.Join(q.Filters.EntityTypes, ","),
		strings.Join(q.Filters.Domains, ","),
		q.MaxResults,
		q.GraphDepth)
	return fmt.Sprintf("%x", h.Sum64())
}

// resultCache wraps ristretto with TTL-only invalidation. A hit inside
// the TTL returns the stored response unchanged.
type resultCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func newResultCache(ttl time.Duration) (*resultCache, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	return &resultCache{cache: cache, ttl: ttl}, nil
}

func (c *resultCache) get(key string) (*types.SearchResponse, bool) {
	value, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	resp, ok := value.(*types.SearchResponse)
	return resp, ok
}

func (c *resultCache) put(key string, resp *types.SearchResponse) {
	c.cache.SetWithTTL(key, resp, 1, c.ttl)
	// Ristretto admits writes asynchronously; waiting keeps cache
	// behavior deterministic for back-to-back queries.
	c.cache.Wait()
}

func (c *resultCache) close() {
	c.cache.Close()
}
