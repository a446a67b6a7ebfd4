// Package search implements the hybrid retrieval orchestrator: strategy
// selection from query classification, vector and graph branch execution,
// score fusion, context assembly, result caching and explainability.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atlasgraph/atlas/pkg/classify"
	"github.com/atlasgraph/atlas/pkg/driver"
	"github.com/atlasgraph/atlas/pkg/embedder"
	"github.com/atlasgraph/atlas/pkg/types"
	"github.com/atlasgraph/atlas/pkg/utils"
	"github.com/atlasgraph/atlas/pkg/vector"
)

// Config tunes the orchestrator.
type Config struct {
	Weights Weights `mapstructure:"weights"`
	// QueryTimeout bounds one whole query, default 5s.
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
	// BranchTimeout bounds each branch under PARALLEL_HYBRID, default 2s.
	BranchTimeout time.Duration `mapstructure:"branch_timeout"`
	// CacheTTL for ranked results, default 5m. DisableCache turns result
	// caching off entirely.
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	DisableCache bool          `mapstructure:"disable_cache"`
	// RecencyHalfLife for the recency decay, default 30 days.
	RecencyHalfLife time.Duration `mapstructure:"recency_half_life"`
	// SeedLimit caps resolved graph seeds, default 5.
	SeedLimit int `mapstructure:"seed_limit"`
	// SeedMinSimilarity is the fuzzy floor for seed resolution, default 0.5.
	SeedMinSimilarity float64 `mapstructure:"seed_min_similarity"`
	// ContextResults is how many top results get context attached, default 5.
	ContextResults int `mapstructure:"context_results"`
	// ExplainCapacity bounds the explain LRU, default 256.
	ExplainCapacity int `mapstructure:"explain_capacity"`
	// Overfetch multiplies MaxResults for branch retrieval, default 2.
	Overfetch int `mapstructure:"overfetch"`
}

// DefaultConfig returns the standard orchestrator settings.
func DefaultConfig() Config {
	return Config{
		Weights:           DefaultWeights(),
		QueryTimeout:      5 * time.Second,
		BranchTimeout:     2 * time.Second,
		CacheTTL:          DefaultCacheTTL,
		RecencyHalfLife:   30 * 24 * time.Hour,
		SeedLimit:         5,
		SeedMinSimilarity: 0.5,
		ContextResults:    5,
		ExplainCapacity:   DefaultExplainCapacity,
		Overfetch:         2,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Weights == (Weights{}) {
		c.Weights = def.Weights
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = def.QueryTimeout
	}
	if c.BranchTimeout <= 0 {
		c.BranchTimeout = def.BranchTimeout
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.RecencyHalfLife <= 0 {
		c.RecencyHalfLife = def.RecencyHalfLife
	}
	if c.SeedLimit <= 0 {
		c.SeedLimit = def.SeedLimit
	}
	if c.SeedMinSimilarity <= 0 {
		c.SeedMinSimilarity = def.SeedMinSimilarity
	}
	if c.ContextResults <= 0 {
		c.ContextResults = def.ContextResults
	}
	if c.ExplainCapacity <= 0 {
		c.ExplainCapacity = def.ExplainCapacity
	}
	if c.Overfetch <= 0 {
		c.Overfetch = def.Overfetch
	}
}

// Orchestrator answers search queries by fusing the vector index and the
// graph store. It is safe for concurrent use.
type Orchestrator struct {
	store      driver.GraphStore
	index      *vector.Index
	embed      embedder.Client
	classifier classify.Classifier
	cfg        Config
	logger     *slog.Logger

	cache   *resultCache
	explain *explainStore
}

// NewOrchestrator wires the search pipeline. A nil classifier selects the
// built-in rule classifier; a nil logger falls back to slog.Default().
func NewOrchestrator(store driver.GraphStore, index *vector.Index, embed embedder.Client, classifier classify.Classifier, cfg Config, logger *slog.Logger) (*Orchestrator, error) {
	cfg.applyDefaults()
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if classifier == nil {
		classifier = classify.NewRuleClassifier()
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		store:      store,
		index:      index,
		embed:      embed,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger,
	}

	if !cfg.DisableCache {
		cache, err := newResultCache(cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		o.cache = cache
	}
	explain, err := newExplainStore(cfg.ExplainCapacity)
	if err != nil {
		return nil, err
	}
	o.explain = explain
	return o, nil
}

// Close releases the result cache.
func (o *Orchestrator) Close() {
	if o.cache != nil {
		o.cache.close()
	}
}

// Explain returns the score breakdown and contributing paths for one
// entity of a past query.
func (o *Orchestrator) Explain(queryID, entityID string) (*Explanation, error) {
	return o.explain.lookup(queryID, entityID)
}

// hit is one entity found by a branch, before fusion.
type hit struct {
	entity      *types.Entity
	vectorSim   float64
	graphRel    float64
	patternConf float64
	hops        int
	paths       [][]string
}

// branchOutcome carries a branch's hits plus the degradation flags the
// merge step needs.
type branchOutcome struct {
	hits    map[string]*hit
	partial bool
	// stubbed is set when the graph store could not hydrate vector hits
	// and the branch fell back to bare entity references.
	stubbed bool
}

// Search runs one query through the full pipeline.
func (o *Orchestrator) Search(ctx context.Context, query *types.SearchQuery) (*types.SearchResponse, error) {
	start := time.Now()
	q := *query
	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	key := cacheKey(&q)
	if o.cache != nil {
		if resp, ok := o.cache.get(key); ok {
			o.logger.Debug("cache hit", "query", q.Text, "query_id", resp.QueryID)
			return resp, nil
		}
	}

	classification, err := o.classifier.Classify(ctx, q.Text)
	if err != nil {
		// The orchestrator only depends on the classification to pick a
		// strategy; without one the default strategy still works.
		o.logger.Warn("classification failed, using default strategy", "error", err)
		classification = classify.Classification{}
	}

	strategy := o.selectStrategy(&q, classification)
	o.logger.Debug("strategy selected",
		"query", q.Text,
		"query_type", classification.QueryType,
		"complexity", classification.Complexity,
		"strategy", strategy)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.QueryTimeout)
	defer cancel()

	outcome, degraded, source, err := o.execute(ctx, &q, strategy)
	if err != nil {
		return nil, err
	}

	results, paths := o.rank(&q, outcome.hits)

	if !degraded {
		o.assembleContext(ctx, results, paths)
	}

	resp := &types.SearchResponse{
		QueryID:   uuid.NewString(),
		Query:     q,
		Results:   results,
		Degraded:  degraded,
		Source:    source,
		Partial:   outcome.partial,
		Took:      time.Since(start),
		CreatedAt: time.Now().UTC(),
	}

	o.explain.record(resp.QueryID, strategy, results, paths)

	if o.cache != nil && !degraded && !outcome.partial {
		o.cache.put(key, resp)
	}
	return resp, nil
}

// selectStrategy honors an explicit query mode before consulting the
// strategy table.
func (o *Orchestrator) selectStrategy(q *types.SearchQuery, c classify.Classification) Strategy {
	switch q.Mode {
	case types.SearchModeVectorOnly:
		return StrategyVectorOnly
	case types.SearchModeGraphOnly:
		return StrategyGraphOnly
	}
	return SelectStrategy(c)
}

// execute runs the strategy and converts subsystem failures into
// degradation. Only ServiceUnavailable and validation errors reach the
// caller.
func (o *Orchestrator) execute(ctx context.Context, q *types.SearchQuery, strategy Strategy) (branchOutcome, bool, string, error) {
	var outcome branchOutcome
	var err error

	switch strategy {
	case StrategyVectorOnly:
		outcome, err = o.vectorBranch(ctx, q)
	case StrategyGraphOnly:
		outcome, err = o.graphBranch(ctx, q)
	case StrategyHybridVectorFirst:
		outcome, err = o.hybridVectorFirst(ctx, q)
	case StrategyHybridGraphFirst:
		outcome, err = o.hybridGraphFirst(ctx, q)
	default:
		return o.parallelHybrid(ctx, q)
	}

	if err == nil {
		if outcome.stubbed {
			o.logger.Warn("graph store unavailable, results are vector only")
			return outcome, true, string(types.SearchModeVectorOnly), nil
		}
		return outcome, false, "", nil
	}
	if !errors.Is(err, types.ErrBackendUnavailable) {
		return outcome, false, "", err
	}

	// One subsystem is down. Fall back to the other unless the caller
	// pinned the mode to the broken one.
	switch strategy {
	case StrategyGraphOnly, StrategyHybridGraphFirst:
		if q.Mode == types.SearchModeGraphOnly {
			return outcome, false, "", fmt.Errorf("graph backend down: %w", types.ErrServiceUnavailable)
		}
		fallback, ferr := o.vectorBranch(ctx, q)
		if ferr != nil {
			return outcome, false, "", fmt.Errorf("both retrieval subsystems down: %w", types.ErrServiceUnavailable)
		}
		o.logger.Warn("graph backend unavailable, degraded to vector only")
		return fallback, true, string(types.SearchModeVectorOnly), nil
	default:
		if q.Mode == types.SearchModeVectorOnly {
			return outcome, false, "", fmt.Errorf("vector index down: %w", types.ErrServiceUnavailable)
		}
		fallback, ferr := o.graphBranch(ctx, q)
		if ferr != nil {
			return outcome, false, "", fmt.Errorf("both retrieval subsystems down: %w", types.ErrServiceUnavailable)
		}
		o.logger.Warn("vector index unavailable, degraded to graph only")
		return fallback, true, string(types.SearchModeGraphOnly), nil
	}
}

// vectorBranch runs an embedding top-k lookup.
func (o *Orchestrator) vectorBranch(ctx context.Context, q *types.SearchQuery) (branchOutcome, error) {
	queryVec, err := o.embed.EmbedSingle(ctx, q.Text)
	if err != nil {
		return branchOutcome{}, fmt.Errorf("query embedding failed: %w: %v", types.ErrBackendUnavailable, err)
	}

	matches, err := o.index.TopK(ctx, queryVec, &vector.QueryOptions{
		TopK:        q.MaxResults * o.cfg.Overfetch,
		EntityTypes: q.Filters.EntityTypes,
	})
	if err != nil {
		return branchOutcome{}, err
	}

	hits := make(map[string]*hit, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}

	entities, err := o.store.GetNodes(ctx, ids)
	if err != nil {
		if !errors.Is(err, types.ErrBackendUnavailable) {
			return branchOutcome{}, err
		}
		// Graph store is down but the vector index answered; return
		// stub entities so a degraded vector-only result still works.
		for _, m := range matches {
			hits[m.ID] = &hit{
				entity:    &types.Entity{Uuid: m.ID, EntityType: m.EntityType},
				vectorSim: m.Score,
			}
		}
		return branchOutcome{hits: hits, stubbed: true}, nil
	}

	byID := make(map[string]*types.Entity, len(entities))
	for _, e := range entities {
		byID[e.Uuid] = e
	}
	for _, m := range matches {
		entity, ok := byID[m.ID]
		if !ok {
			continue
		}
		hits[m.ID] = &hit{entity: entity, vectorSim: m.Score}
	}
	return branchOutcome{hits: hits}, nil
}

// graphBranch resolves seeds from the query text and traverses.
func (o *Orchestrator) graphBranch(ctx context.Context, q *types.SearchQuery) (branchOutcome, error) {
	seeds, err := o.resolveSeeds(ctx, q)
	if err != nil {
		return branchOutcome{}, err
	}
	if len(seeds) == 0 {
		// Unknown seeds are an empty result, never a fault.
		return branchOutcome{hits: map[string]*hit{}}, nil
	}
	return o.traverseFrom(ctx, q, seeds, q.GraphDepth)
}

// traverseFrom expands the seed set and scores visited entities by hop
// distance and edge confidence.
func (o *Orchestrator) traverseFrom(ctx context.Context, q *types.SearchQuery, seeds []string, maxHops int) (branchOutcome, error) {
	tr, err := o.store.Traverse(ctx, &driver.TraversalQuery{
		StartIDs:  seeds,
		MaxHops:   maxHops,
		Direction: driver.DirectionAny,
	})
	if err != nil {
		return branchOutcome{}, err
	}

	// For each visited node, the confidence of the edge that first
	// reached it and every path that touched it.
	introConf := make(map[string]float64)
	nodePaths := make(map[string][][]string)
	maxEdgeConf := make(map[string]float64)
	for _, pe := range tr.Edges {
		for _, endpoint := range []string{pe.Edge.SourceID, pe.Edge.TargetID} {
			hop, visited := tr.Visited[endpoint]
			if !visited {
				continue
			}
			if pe.Edge.Confidence > maxEdgeConf[endpoint] {
				maxEdgeConf[endpoint] = pe.Edge.Confidence
			}
			if hop == pe.Hop {
				if existing, ok := introConf[endpoint]; !ok || pe.Edge.Confidence > existing {
					introConf[endpoint] = pe.Edge.Confidence
				}
				nodePaths[endpoint] = append(nodePaths[endpoint], pe.Path)
			}
		}
	}

	hits := make(map[string]*hit, len(tr.Entities))
	for _, entity := range tr.Entities {
		hop := tr.Visited[entity.Uuid]
		conf := introConf[entity.Uuid]
		patternConf := maxEdgeConf[entity.Uuid]
		if patternConf == 0 {
			patternConf = entity.QualityScore
		}
		hits[entity.Uuid] = &hit{
			entity:      entity,
			graphRel:    graphRelevance(hop, conf),
			patternConf: patternConf,
			hops:        hop,
			paths:       nodePaths[entity.Uuid],
		}
	}
	return branchOutcome{hits: hits}, nil
}

// hybridVectorFirst expands the vector hits one to two hops.
func (o *Orchestrator) hybridVectorFirst(ctx context.Context, q *types.SearchQuery) (branchOutcome, error) {
	outcome, err := o.vectorBranch(ctx, q)
	if err != nil {
		return outcome, err
	}

	seeds := make([]string, 0, len(outcome.hits))
	for id := range outcome.hits {
		seeds = append(seeds, id)
	}
	if len(seeds) == 0 {
		return outcome, nil
	}

	expandHops := q.GraphDepth
	if expandHops > 2 {
		expandHops = 2
	}
	expansion, err := o.traverseFrom(ctx, q, seeds, expandHops)
	if err != nil {
		if errors.Is(err, types.ErrBackendUnavailable) {
			// Expansion is best-effort on top of the vector hits.
			o.logger.Warn("graph expansion unavailable, returning vector hits only")
			return outcome, nil
		}
		return outcome, err
	}
	mergeHits(outcome.hits, expansion.hits)
	return outcome, nil
}

// hybridGraphFirst traverses, then re-scores hits by vector similarity.
func (o *Orchestrator) hybridGraphFirst(ctx context.Context, q *types.SearchQuery) (branchOutcome, error) {
	outcome, err := o.graphBranch(ctx, q)
	if err != nil {
		return outcome, err
	}

	queryVec, err := o.embed.EmbedSingle(ctx, q.Text)
	if err != nil {
		o.logger.Warn("query embedding failed, skipping vector rescore", "error", err)
		return outcome, nil
	}
	for _, h := range outcome.hits {
		if h.entity.Embedding != nil {
			h.vectorSim = utils.ClampScore(utils.CosineSimilarity(queryVec, h.entity.Embedding))
		}
	}
	return outcome, nil
}

// parallelHybrid fans both branches out under per-branch timeouts and
// merges by entity id, so ordering never depends on completion order.
func (o *Orchestrator) parallelHybrid(ctx context.Context, q *types.SearchQuery) (branchOutcome, bool, string, error) {
	type branchResult struct {
		outcome branchOutcome
		err     error
	}

	branchCtx, cancel := context.WithTimeout(ctx, o.cfg.BranchTimeout)
	defer cancel()

	var wg sync.WaitGroup
	var vec, graph branchResult

	wg.Add(2)
	go func() {
		defer wg.Done()
		vec.outcome, vec.err = o.vectorBranch(branchCtx, q)
	}()
	go func() {
		defer wg.Done()
		graph.outcome, graph.err = o.graphBranch(branchCtx, q)
	}()
	wg.Wait()

	vecTimedOut := errors.Is(vec.err, context.DeadlineExceeded)
	graphTimedOut := errors.Is(graph.err, context.DeadlineExceeded)

	switch {
	case vec.err == nil && graph.err == nil:
		merged := vec.outcome.hits
		mergeHits(merged, graph.outcome.hits)
		return branchOutcome{hits: merged}, false, "", nil

	case vec.err == nil:
		if graphTimedOut {
			o.logger.Warn("graph branch exceeded budget, returning partial result")
			return branchOutcome{hits: vec.outcome.hits, partial: true}, false, "", nil
		}
		o.logger.Warn("graph branch unavailable, degraded to vector only", "error", graph.err)
		return vec.outcome, true, string(types.SearchModeVectorOnly), nil

	case graph.err == nil:
		if vecTimedOut {
			o.logger.Warn("vector branch exceeded budget, returning partial result")
			return branchOutcome{hits: graph.outcome.hits, partial: true}, false, "", nil
		}
		o.logger.Warn("vector branch unavailable, degraded to graph only", "error", vec.err)
		return graph.outcome, true, string(types.SearchModeGraphOnly), nil

	default:
		if vecTimedOut && graphTimedOut {
			return branchOutcome{hits: map[string]*hit{}, partial: true}, false, "", nil
		}
		return branchOutcome{}, false, "", fmt.Errorf("both retrieval subsystems down: %w", types.ErrServiceUnavailable)
	}
}

// mergeHits folds src into dst by entity id, keeping the strongest
// component scores and the union of paths.
func mergeHits(dst, src map[string]*hit) {
	for id, s := range src {
		d, ok := dst[id]
		if !ok {
			dst[id] = s
			continue
		}
		if s.vectorSim > d.vectorSim {
			d.vectorSim = s.vectorSim
		}
		if s.graphRel > d.graphRel {
			d.graphRel = s.graphRel
		}
		if s.patternConf > d.patternConf {
			d.patternConf = s.patternConf
		}
		d.paths = append(d.paths, s.paths...)
	}
}

// stopwords excluded from seed phrase resolution.
var seedStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "be": true, "by": true,
	"do": true, "does": true, "for": true, "from": true, "how": true,
	"in": true, "is": true, "it": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "this": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "why": true, "with": true,
}

// resolveSeeds finds graph entry points for the query: exact name lookup
// over candidate phrases first, then a fuzzy pass. Longer phrases win.
func (o *Orchestrator) resolveSeeds(ctx context.Context, q *types.SearchQuery) ([]string, error) {
	phrases := seedPhrases(q.Text)

	opts := func(fuzzy bool) *driver.NameSearchOptions {
		return &driver.NameSearchOptions{
			Limit:         o.cfg.SeedLimit,
			Fuzzy:         fuzzy,
			MinSimilarity: o.cfg.SeedMinSimilarity,
			EntityTypes:   q.Filters.EntityTypes,
		}
	}

	seen := make(map[string]bool)
	var seeds []string
	collect := func(matches []*types.Entity) {
		for _, m := range matches {
			if len(seeds) >= o.cfg.SeedLimit {
				return
			}
			if !seen[m.Uuid] {
				seen[m.Uuid] = true
				seeds = append(seeds, m.Uuid)
			}
		}
	}

	for _, phrase := range phrases {
		if len(seeds) >= o.cfg.SeedLimit {
			return seeds, nil
		}
		matches, err := o.store.FindByName(ctx, phrase, opts(false))
		if err != nil {
			return nil, err
		}
		collect(matches)
	}
	if len(seeds) > 0 {
		return seeds, nil
	}

	for _, phrase := range phrases {
		if len(seeds) >= o.cfg.SeedLimit {
			break
		}
		matches, err := o.store.FindByName(ctx, phrase, opts(true))
		if err != nil {
			return nil, err
		}
		collect(matches)
	}
	return seeds, nil
}

// seedPhrases generates candidate entity names from the query: the full
// text, then contiguous stopword-free token windows, longest first.
func seedPhrases(text string) []string {
	tokens := utils.Tokenize(text)
	content := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !seedStopwords[tok] {
			content = append(content, tok)
		}
	}

	var phrases []string
	seen := map[string]bool{}
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			phrases = append(phrases, p)
		}
	}

	add(text)
	maxWindow := len(content)
	if maxWindow > 6 {
		maxWindow = 6
	}
	for size := maxWindow; size >= 1; size-- {
		for i := 0; i+size <= len(content); i++ {
			add(joinTokens(content[i : i+size]))
		}
	}
	return phrases
}

func joinTokens(tokens []string) string {
	out := ""
	for i, t := range tokens {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}

// rank applies filters, fuses scores and truncates to MaxResults. The
// returned paths map feeds context assembly and the explain store.
func (o *Orchestrator) rank(q *types.SearchQuery, hits map[string]*hit) ([]*types.RankedResult, map[string][][]string) {
	now := time.Now().UTC()
	typeFilter := toSet(q.Filters.EntityTypes)
	domainFilter := toSet(q.Filters.Domains)

	paths := make(map[string][][]string)
	results := make([]*types.RankedResult, 0, len(hits))
	for _, h := range hits {
		if typeFilter != nil && !typeFilter[h.entity.EntityType] {
			continue
		}
		if domainFilter != nil && !domainFilter[h.entity.Attributes["domain"]] {
			continue
		}

		scores := types.ComponentScores{
			VectorSimilarity:  utils.ClampScore(h.vectorSim),
			GraphRelevance:    utils.ClampScore(h.graphRel),
			RecencyScore:      recencyScore(h.entity.UpdatedAt, now, o.cfg.RecencyHalfLife),
			SourceQuality:     utils.ClampScore(h.entity.QualityScore),
			PatternConfidence: utils.ClampScore(h.patternConf),
		}
		results = append(results, &types.RankedResult{
			Entity:     h.entity,
			Scores:     scores,
			FinalScore: o.cfg.Weights.fuse(scores),
		})
		if len(h.paths) > 0 {
			paths[h.entity.Uuid] = h.paths
		}
	}

	rankResults(results)
	if len(results) > q.MaxResults {
		results = results[:q.MaxResults]
	}
	return results, paths
}

// assembleContext attaches 1-hop neighbors, connecting evidence and prior
// versions to the top results. Context failures are logged, never fatal.
func (o *Orchestrator) assembleContext(ctx context.Context, results []*types.RankedResult, paths map[string][][]string) {
	limit := o.cfg.ContextResults
	if limit > len(results) {
		limit = len(results)
	}

	for _, r := range results[:limit] {
		tr, err := o.store.Traverse(ctx, &driver.TraversalQuery{
			StartIDs:  []string{r.Entity.Uuid},
			MaxHops:   1,
			Direction: driver.DirectionAny,
		})
		if err != nil {
			o.logger.Debug("context assembly skipped", "uuid", r.Entity.Uuid, "error", err)
			continue
		}

		rctx := &types.ResultContext{
			PriorVersions: r.Entity.PriorVersions,
			Paths:         paths[r.Entity.Uuid],
		}
		for _, entity := range tr.Entities {
			if entity.Uuid != r.Entity.Uuid {
				rctx.Related = append(rctx.Related, entity)
			}
		}
		for _, pe := range tr.Edges {
			rctx.Relationships = append(rctx.Relationships, pe.Edge)
		}
		r.Context = rctx
	}
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
