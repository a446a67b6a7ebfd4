package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasgraph/atlas/pkg/classify"
	"github.com/atlasgraph/atlas/pkg/driver"
	"github.com/atlasgraph/atlas/pkg/embedder"
	"github.com/atlasgraph/atlas/pkg/patterns"
	"github.com/atlasgraph/atlas/pkg/types"
	"github.com/atlasgraph/atlas/pkg/vector"
)

const corpus = "S3 bucket data-bucket is publicly accessible. " +
	"Encryption at rest mitigates public access to data-bucket. " +
	"Security group sg-web allows ingress from 0.0.0.0/0. " +
	"User deploy-bot has no MFA."

type fixture struct {
	orch  *Orchestrator
	store *driver.MemoryStore
	index *vector.Index
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	store := driver.NewMemoryStore()
	index := vector.NewIndex()
	embed := embedder.NewLocalEmbedder(64)

	engine := patterns.NewEngine(patterns.DefaultRegistry(), store, index, embed, patterns.DefaultConfig(), nil)
	_, err := engine.Ingest(context.Background(), corpus, types.SourceMetadata{SourceRef: "seed"})
	require.NoError(t, err)

	orch, err := NewOrchestrator(store, index, embed, nil, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(orch.Close)

	return &fixture{orch: orch, store: store, index: index}
}

func noCacheConfig() Config {
	cfg := DefaultConfig()
	cfg.DisableCache = true
	return cfg
}

func resultNames(resp *types.SearchResponse) []string {
	names := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		names = append(names, r.Entity.Name)
	}
	return names
}

func TestSelectStrategyTable(t *testing.T) {
	tests := []struct {
		queryType  classify.QueryType
		complexity classify.Complexity
		want       Strategy
	}{
		{classify.QueryTypeFactual, classify.ComplexitySimple, StrategyVectorOnly},
		{classify.QueryTypeRelational, classify.ComplexitySimple, StrategyGraphOnly},
		{classify.QueryTypeRelational, classify.ComplexityComplex, StrategyParallelHybrid},
		{classify.QueryTypeTemporal, classify.ComplexityModerate, StrategyGraphOnly},
		{classify.QueryTypeTemporal, classify.ComplexityComplex, StrategyParallelHybrid},
		// An unmapped pair defaults to the parallel strategy.
		{classify.QueryTypeComparison, classify.ComplexitySimple, StrategyParallelHybrid},
		{classify.QueryTypeAggregation, classify.ComplexityComplex, StrategyParallelHybrid},
	}
	for _, tt := range tests {
		got := SelectStrategy(classify.Classification{QueryType: tt.queryType, Complexity: tt.complexity})
		assert.Equal(t, tt.want, got, "%s/%s", tt.queryType, tt.complexity)
	}
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())

	bad := Weights{Vector: 0.5, Graph: 0.5, Recency: 0.5}
	var verr *types.ValidationError
	assert.ErrorAs(t, bad.Validate(), &verr)
}

func TestRankResultsTieBreaks(t *testing.T) {
	now := time.Now()
	mk := func(id string, quality float64, updated time.Time) *types.RankedResult {
		return &types.RankedResult{
			Entity:     &types.Entity{Uuid: id, QualityScore: quality, UpdatedAt: updated},
			FinalScore: 0.5,
		}
	}
	results := []*types.RankedResult{
		mk("c", 0.5, now),
		mk("b", 0.9, now.Add(-time.Hour)),
		mk("a", 0.5, now),
		mk("d", 0.5, now.Add(-time.Hour)),
	}

	rankResults(results)

	// Equal final scores: quality first, then recency, then uuid.
	assert.Equal(t, "b", results[0].Entity.Uuid)
	assert.Equal(t, "a", results[1].Entity.Uuid)
	assert.Equal(t, "c", results[2].Entity.Uuid)
	assert.Equal(t, "d", results[3].Entity.Uuid)
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestRecencyScore(t *testing.T) {
	now := time.Now()
	halfLife := 24 * time.Hour

	assert.InDelta(t, 1.0, recencyScore(now, now, halfLife), 1e-9)
	assert.InDelta(t, 0.5, recencyScore(now.Add(-24*time.Hour), now, halfLife), 1e-6)
	assert.Less(t, recencyScore(now.Add(-10*24*time.Hour), now, halfLife), 0.01)
	assert.Zero(t, recencyScore(time.Time{}, now, halfLife))
}

func TestSearchValidation(t *testing.T) {
	f := newFixture(t, noCacheConfig())

	_, err := f.orch.Search(context.Background(), &types.SearchQuery{Text: "   "})
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.orch.Search(context.Background(), &types.SearchQuery{Text: "x", Mode: "psychic"})
	assert.ErrorAs(t, err, &verr)
}

func TestSearchGraphOnlyMitigationScenario(t *testing.T) {
	f := newFixture(t, noCacheConfig())

	resp, err := f.orch.Search(context.Background(), &types.SearchQuery{
		Text: "what mitigates public access to data-bucket",
	})
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	assert.False(t, resp.Partial)

	names := resultNames(resp)
	assert.Contains(t, names, "Encryption at rest")
	assert.Contains(t, names, "public access to data-bucket")

	// The mitigating control was reached over the graph, so its score
	// carries graph relevance.
	for _, r := range resp.Results {
		if r.Entity.Name == "Encryption at rest" {
			assert.Positive(t, r.Scores.GraphRelevance)
		}
	}
}

func TestSearchVectorOnlyMode(t *testing.T) {
	f := newFixture(t, noCacheConfig())

	resp, err := f.orch.Search(context.Background(), &types.SearchQuery{
		Text: "publicly accessible data bucket",
		Mode: types.SearchModeVectorOnly,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	top := resp.Results[0]
	assert.Positive(t, top.Scores.VectorSimilarity)
	// Pure vector retrieval contributes no traversal relevance beyond
	// seeds, so the top hit must be vector-scored.
	assert.GreaterOrEqual(t, top.FinalScore, top.Scores.VectorSimilarity*0.35-1e-9)
}

func TestSearchUnknownSeedsEmptyResult(t *testing.T) {
	f := newFixture(t, noCacheConfig())

	resp, err := f.orch.Search(context.Background(), &types.SearchQuery{
		Text: "zzzz completely unknown qqqq",
		Mode: types.SearchModeGraphOnly,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.False(t, resp.Degraded)
}

func TestSearchDeterministicOrdering(t *testing.T) {
	f := newFixture(t, noCacheConfig())
	ctx := context.Background()

	// Comparison/simple is unmapped and runs PARALLEL_HYBRID; ordering
	// must not depend on which branch finishes first.
	query := &types.SearchQuery{Text: "compare data-bucket versus sg-web exposure"}

	first, err := f.orch.Search(ctx, query)
	require.NoError(t, err)
	require.NotEmpty(t, first.Results)

	for i := 0; i < 10; i++ {
		again, err := f.orch.Search(ctx, query)
		require.NoError(t, err)
		require.Len(t, again.Results, len(first.Results))
		for j := range first.Results {
			assert.Equal(t, first.Results[j].Entity.Uuid, again.Results[j].Entity.Uuid)
			// Recency decays with wall-clock time, so scores drift by a
			// hair between runs while ordering stays fixed.
			assert.InDelta(t, first.Results[j].FinalScore, again.Results[j].FinalScore, 1e-6)
		}
	}
}

func TestSearchScoresWithinBounds(t *testing.T) {
	f := newFixture(t, noCacheConfig())

	resp, err := f.orch.Search(context.Background(), &types.SearchQuery{Text: "public access findings and mitigations"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	for _, r := range resp.Results {
		for name, score := range map[string]float64{
			"vector":     r.Scores.VectorSimilarity,
			"graph":      r.Scores.GraphRelevance,
			"recency":    r.Scores.RecencyScore,
			"quality":    r.Scores.SourceQuality,
			"confidence": r.Scores.PatternConfidence,
			"final":      r.FinalScore,
		} {
			assert.GreaterOrEqual(t, score, 0.0, "%s below range", name)
			assert.LessOrEqual(t, score, 1.0, "%s above range", name)
		}
	}
}

func TestSearchCacheRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheTTL = 150 * time.Millisecond
	f := newFixture(t, cfg)
	ctx := context.Background()
	query := &types.SearchQuery{Text: "what mitigates public access to data-bucket"}

	first, err := f.orch.Search(ctx, query)
	require.NoError(t, err)

	cached, err := f.orch.Search(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, first.QueryID, cached.QueryID, "a hit inside the TTL returns the stored result")
	assert.Equal(t, first, cached)

	time.Sleep(300 * time.Millisecond)
	recomputed, err := f.orch.Search(ctx, query)
	require.NoError(t, err)
	assert.NotEqual(t, first.QueryID, recomputed.QueryID, "expired entries recompute")
}

func TestSearchDegradedGraphDown(t *testing.T) {
	f := newFixture(t, noCacheConfig())
	f.store.SetUnavailable(true)

	resp, err := f.orch.Search(context.Background(), &types.SearchQuery{
		Text: "publicly accessible data bucket",
		Mode: types.SearchModeHybrid,
	})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, "vector_only", resp.Source)
	assert.NotEmpty(t, resp.Results)
}

func TestSearchDegradedVectorDown(t *testing.T) {
	f := newFixture(t, noCacheConfig())
	f.index.SetUnavailable(true)

	resp, err := f.orch.Search(context.Background(), &types.SearchQuery{
		Text: "compare data-bucket versus sg-web exposure",
		Mode: types.SearchModeHybrid,
	})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, "graph_only", resp.Source)
}

func TestSearchBothSubsystemsDown(t *testing.T) {
	f := newFixture(t, noCacheConfig())
	f.store.SetUnavailable(true)
	f.index.SetUnavailable(true)

	_, err := f.orch.Search(context.Background(), &types.SearchQuery{
		Text: "anything at all",
		Mode: types.SearchModeHybrid,
	})
	assert.ErrorIs(t, err, types.ErrServiceUnavailable)
}

func TestSearchPinnedModeDoesNotFallBack(t *testing.T) {
	f := newFixture(t, noCacheConfig())
	f.index.SetUnavailable(true)

	_, err := f.orch.Search(context.Background(), &types.SearchQuery{
		Text: "publicly accessible data bucket",
		Mode: types.SearchModeVectorOnly,
	})
	assert.ErrorIs(t, err, types.ErrServiceUnavailable)
}

func TestSearchContextAssembly(t *testing.T) {
	f := newFixture(t, noCacheConfig())

	resp, err := f.orch.Search(context.Background(), &types.SearchQuery{
		Text: "what mitigates public access to data-bucket",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	var finding *types.RankedResult
	for _, r := range resp.Results {
		if r.Entity.Name == "public access to data-bucket" {
			finding = r
		}
	}
	require.NotNil(t, finding)
	require.NotNil(t, finding.Context)
	assert.NotEmpty(t, finding.Context.Related)
	assert.NotEmpty(t, finding.Context.Relationships)

	var evidenced bool
	for _, rel := range finding.Context.Relationships {
		if len(rel.Evidence) > 0 {
			evidenced = true
		}
	}
	assert.True(t, evidenced, "relationship evidence must survive into context")
}

func TestExplain(t *testing.T) {
	f := newFixture(t, noCacheConfig())

	resp, err := f.orch.Search(context.Background(), &types.SearchQuery{
		Text: "what mitigates public access to data-bucket",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	top := resp.Results[0]
	exp, err := f.orch.Explain(resp.QueryID, top.Entity.Uuid)
	require.NoError(t, err)
	assert.Equal(t, top.FinalScore, exp.FinalScore)
	assert.Equal(t, top.Rank, exp.Rank)
	assert.Equal(t, top.Scores, exp.Scores)

	_, err = f.orch.Explain(resp.QueryID, "not-a-result")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = f.orch.Explain("unknown-query", top.Entity.Uuid)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSearchEntityTypeFilter(t *testing.T) {
	f := newFixture(t, noCacheConfig())

	resp, err := f.orch.Search(context.Background(), &types.SearchQuery{
		Text:    "public access findings",
		Filters: types.SearchFilters{EntityTypes: []string{types.EntityTypeFinding}},
	})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.Equal(t, types.EntityTypeFinding, r.Entity.EntityType)
	}
}
