package patterns

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasgraph/atlas/pkg/driver"
	"github.com/atlasgraph/atlas/pkg/embedder"
	"github.com/atlasgraph/atlas/pkg/types"
	"github.com/atlasgraph/atlas/pkg/vector"
)

func newTestEngine(t *testing.T) (*Engine, *driver.MemoryStore, *vector.Index) {
	t.Helper()
	store := driver.NewMemoryStore()
	idx := vector.NewIndex()
	e := NewEngine(DefaultRegistry(), store, idx, embedder.NewLocalEmbedder(64), DefaultConfig(), nil)
	return e, store, idx
}

func TestDetectPublicAccessScenario(t *testing.T) {
	reg := DefaultRegistry()

	det := reg.Detect("S3 bucket data-bucket is publicly accessible")

	var finding, service *CandidateEntity
	for i := range det.Entities {
		switch det.Entities[i].EntityType {
		case types.EntityTypeFinding:
			finding = &det.Entities[i]
		case types.EntityTypeService:
			service = &det.Entities[i]
		}
	}
	require.NotNil(t, finding)
	require.NotNil(t, service)

	assert.Equal(t, "public access to data-bucket", finding.Name)
	assert.GreaterOrEqual(t, finding.Confidence, 0.7)
	assert.Equal(t, "S3", service.Name)

	require.Len(t, det.Relationships, 1)
	rel := det.Relationships[0]
	assert.Equal(t, types.RelTypeAffects, rel.RelType)
	assert.Equal(t, finding.Name, rel.SourceName)
	assert.Equal(t, "S3", rel.TargetName)
}

func TestDetectDeterministic(t *testing.T) {
	reg := DefaultRegistry()
	text := "S3 bucket logs is publicly readable. Security group sg-42 allows ingress from 0.0.0.0/0. User admin has no MFA."

	first := reg.Detect(text)
	for i := 0; i < 10; i++ {
		again := reg.Detect(text)
		assert.Equal(t, first, again)
	}
}

func TestDetectConfidenceBounds(t *testing.T) {
	reg := DefaultRegistry()
	det := reg.Detect("RDS database customers is publicly accessible even though nothing else on this very long line about unrelated matters mentions it")

	require.NotEmpty(t, det.Entities)
	for _, c := range det.Entities {
		assert.GreaterOrEqual(t, c.Confidence, 0.0)
		assert.LessOrEqual(t, c.Confidence, 1.0)
	}
	for _, r := range det.Relationships {
		assert.GreaterOrEqual(t, r.Confidence, 0.0)
		assert.LessOrEqual(t, r.Confidence, 1.0)
	}
}

func TestDetectCollapsesRepeatedMentions(t *testing.T) {
	reg := DefaultRegistry()
	det := reg.Detect("S3 bucket assets is publicly accessible. S3 bucket assets is publicly accessible.")

	names := make(map[string]int)
	for _, c := range det.Entities {
		names[c.EntityType+"/"+c.Name]++
	}
	for key, count := range names {
		assert.Equal(t, 1, count, "duplicate candidate %s", key)
	}
}

func TestIngestCreatesEntitiesAndEdges(t *testing.T) {
	e, store, idx := newTestEngine(t)
	ctx := context.Background()

	result, err := e.Ingest(ctx, "S3 bucket data-bucket is publicly accessible", types.SourceMetadata{SourceRef: "scan-1"})
	require.NoError(t, err)

	require.Len(t, result.Created, 2)
	assert.Empty(t, result.Updated)
	require.Len(t, result.Relationships, 1)

	rel := result.Relationships[0]
	edges, err := store.GetEdgesBetween(ctx, rel.SourceID, rel.TargetID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, types.RelTypeAffects, edges[0].RelType)
	require.Len(t, edges[0].Evidence, 1)
	assert.Equal(t, "scan-1", edges[0].Evidence[0].SourceRef)

	assert.Equal(t, 2, idx.Len())
}

func TestIngestIdempotent(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	text := "S3 bucket data-bucket is publicly accessible"

	first, err := e.Ingest(ctx, text, types.SourceMetadata{SourceRef: "scan-1"})
	require.NoError(t, err)
	require.Len(t, first.Created, 2)

	second, err := e.Ingest(ctx, text, types.SourceMetadata{SourceRef: "scan-1"})
	require.NoError(t, err)
	assert.Empty(t, second.Created, "re-ingestion must not create duplicates")
	require.Len(t, second.Updated, 2)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.NodeCount)
	assert.Equal(t, int64(1), stats.EdgeCount)

	for _, entity := range second.Updated {
		assert.Equal(t, int64(2), entity.Version)
		require.NotEmpty(t, entity.PriorVersions)
		assert.Equal(t, int64(1), entity.PriorVersions[0].Version)
	}

	// Evidence is cited once per distinct source, not per ingest.
	rel := first.Relationships[0]
	edges, err := store.GetEdgesBetween(ctx, rel.SourceID, rel.TargetID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Len(t, edges[0].Evidence, 1)
}

func TestIngestDedupThreshold(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Ingest(ctx, "S3 bucket data-bucket is publicly accessible", types.SourceMetadata{SourceRef: "scan-1"})
	require.NoError(t, err)

	t.Run("near name merges", func(t *testing.T) {
		// "data-buckets" vs "data-bucket" sits above the 0.85 trigram
		// similarity default.
		result, err := e.Ingest(ctx, "S3 bucket data-buckets is publicly accessible", types.SourceMetadata{SourceRef: "scan-2"})
		require.NoError(t, err)
		assert.Empty(t, result.Created)
		assert.NotEmpty(t, result.Updated)
	})

	t.Run("distant name creates", func(t *testing.T) {
		result, err := e.Ingest(ctx, "S3 bucket billing-exports is publicly accessible", types.SourceMetadata{SourceRef: "scan-3"})
		require.NoError(t, err)

		var newFinding bool
		for _, entity := range result.Created {
			if entity.EntityType == types.EntityTypeFinding {
				newFinding = true
			}
		}
		assert.True(t, newFinding, "dissimilar finding must get its own entity")
	})

	findings, err := store.EntitiesByType(ctx, types.EntityTypeFinding)
	require.NoError(t, err)
	assert.Len(t, findings, 2)
}

func TestIngestMergeKeepsHigherQuality(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	text := "S3 bucket data-bucket is publicly accessible"

	first, err := e.Ingest(ctx, text, types.SourceMetadata{SourceRef: "low", Quality: 0.2})
	require.NoError(t, err)
	var before float64
	for _, entity := range first.Created {
		if entity.EntityType == types.EntityTypeFinding {
			before = entity.QualityScore
		}
	}

	second, err := e.Ingest(ctx, text, types.SourceMetadata{SourceRef: "high", Quality: 1.0})
	require.NoError(t, err)
	for _, entity := range second.Updated {
		if entity.EntityType == types.EntityTypeFinding {
			assert.Greater(t, entity.QualityScore, before)
			assert.Equal(t, "high", entity.SourceRef)
		}
	}
}

func TestIngestMitigationInference(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := e.Ingest(ctx,
		"S3 bucket data-bucket is publicly accessible. Bucket policy hardening mitigates public access to data-bucket.",
		types.SourceMetadata{SourceRef: "scan-1"})
	require.NoError(t, err)

	var control *types.Entity
	for _, entity := range result.Created {
		if entity.EntityType == types.EntityTypeControl {
			control = entity
		}
	}
	require.NotNil(t, control)

	var mitigates *types.Relationship
	for _, rel := range result.Relationships {
		if rel.RelType == types.RelTypeMitigates {
			mitigates = rel
		}
	}
	require.NotNil(t, mitigates)
	assert.Equal(t, control.Uuid, mitigates.SourceID)

	target, err := store.GetNode(ctx, mitigates.TargetID)
	require.NoError(t, err)
	assert.Equal(t, types.EntityTypeFinding, target.EntityType)
}

func TestIngestValidation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Ingest(ctx, "", types.SourceMetadata{SourceRef: "x"})
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = e.Ingest(ctx, "some text", types.SourceMetadata{})
	assert.ErrorAs(t, err, &verr)
}

func TestIngestBatchIsolatesFailures(t *testing.T) {
	e, _, _ := newTestEngine(t)

	results, errs := e.IngestBatch(context.Background(), []Document{
		{Text: "S3 bucket a-bucket is publicly accessible", Source: types.SourceMetadata{SourceRef: "ok-1"}},
		{Text: "", Source: types.SourceMetadata{SourceRef: "bad"}},
		{Text: "user root has no MFA", Source: types.SourceMetadata{SourceRef: "ok-2"}},
	})

	require.Len(t, results, 3)
	assert.NoError(t, errs[0])
	assert.Error(t, errs[1])
	assert.NoError(t, errs[2])
	assert.NotNil(t, results[0])
	assert.Nil(t, results[1])
	assert.NotEmpty(t, results[2].Created)
}

func TestIngestConcurrentMergesSerialize(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	text := "S3 bucket data-bucket is publicly accessible"

	_, err := e.Ingest(ctx, text, types.SourceMetadata{SourceRef: "seed"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Ingest(ctx, text, types.SourceMetadata{SourceRef: "concurrent"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	findings, err := store.EntitiesByType(ctx, types.EntityTypeFinding)
	require.NoError(t, err)
	require.Len(t, findings, 1, "concurrent merges must land on one entity")
	assert.Equal(t, int64(9), findings[0].Version)
}

func TestRegistryLoadYAML(t *testing.T) {
	doc := `
patterns:
  - name: replication-lag
    expr: '(?i)replication lag on (?P<db>[a-z0-9-]+)'
    base_weight: 0.7
    entities:
      - entity_type: Finding
        name: replication lag on ${db}
        attributes:
          database: ${db}
`
	reg := NewRegistry()
	require.NoError(t, reg.LoadYAML(strings.NewReader(doc)))
	require.Equal(t, 1, reg.Len())

	det := reg.Detect("Replication lag on orders-db keeps growing")
	require.Len(t, det.Entities, 1)
	assert.Equal(t, "replication lag on orders-db", det.Entities[0].Name)
	assert.Equal(t, "orders-db", det.Entities[0].Attributes["database"])
}

func TestRegistryRejectsBadPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern *Pattern
	}{
		{"missing name", &Pattern{Expr: "x", BaseWeight: 0.5, Entities: []EntityRule{{EntityType: "Finding", Name: "x"}}}},
		{"bad regexp", &Pattern{Name: "p", Expr: "(", BaseWeight: 0.5, Entities: []EntityRule{{EntityType: "Finding", Name: "x"}}}},
		{"weight out of range", &Pattern{Name: "p", Expr: "x", BaseWeight: 1.5, Entities: []EntityRule{{EntityType: "Finding", Name: "x"}}}},
		{"no entities", &Pattern{Name: "p", Expr: "x", BaseWeight: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, NewRegistry().Register(tt.pattern))
		})
	}
}

func TestIngestMitigationAsSeparateDocument(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Ingest(ctx,
		"S3 bucket data-bucket is publicly accessible.",
		types.SourceMetadata{SourceRef: "scan-1", Quality: 0.8})
	require.NoError(t, err)

	var findingID string
	for _, entity := range first.Created {
		if entity.EntityType == types.EntityTypeFinding {
			findingID = entity.Uuid
		}
	}
	require.NotEmpty(t, findingID)

	// The mitigation arrives later, in its own document.
	second, err := e.Ingest(ctx,
		"Bucket policy hardening mitigates public access to data-bucket.",
		types.SourceMetadata{SourceRef: "scan-2", Quality: 0.8})
	require.NoError(t, err)

	var mitigates *types.Relationship
	for _, rel := range second.Relationships {
		if rel.RelType == types.RelTypeMitigates {
			mitigates = rel
		}
	}
	require.NotNil(t, mitigates, "mitigates edge must be created without a co-occurring finding")
	assert.Equal(t, findingID, mitigates.TargetID, "target must merge into the stored finding")

	// Dedup merged the target into the existing finding, no duplicate.
	findings, err := store.EntitiesByType(ctx, types.EntityTypeFinding)
	require.NoError(t, err)
	assert.Len(t, findings, 1)
}

func TestIngestMergeRecordsLosingSource(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	text := "S3 bucket data-bucket is publicly accessible"

	_, err := e.Ingest(ctx, text, types.SourceMetadata{SourceRef: "scan-hi", Quality: 1.0})
	require.NoError(t, err)

	_, err = e.Ingest(ctx, text, types.SourceMetadata{SourceRef: "scan-lo", Quality: 0.1})
	require.NoError(t, err)

	findings, err := store.EntitiesByType(ctx, types.EntityTypeFinding)
	require.NoError(t, err)
	require.Len(t, findings, 1)

	entity := findings[0]
	assert.Equal(t, "scan-hi", entity.SourceRef, "higher quality keeps the source ref")
	assert.Contains(t, entity.MergedSources, "scan-lo", "losing source joins provenance")

	// Re-ingesting the losing source does not duplicate the record.
	_, err = e.Ingest(ctx, text, types.SourceMetadata{SourceRef: "scan-lo", Quality: 0.1})
	require.NoError(t, err)
	findings, err = store.EntitiesByType(ctx, types.EntityTypeFinding)
	require.NoError(t, err)
	assert.Equal(t, []string{"scan-lo"}, findings[0].MergedSources)
}

func TestIngestBatchConcurrentOnBadger(t *testing.T) {
	store, err := driver.NewBadgerStoreInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// Production wiring: transaction conflicts are retried.
	retry := driver.NewRetryStore(store, driver.DefaultRetryConfig())
	e := NewEngine(DefaultRegistry(), retry, vector.NewIndex(), embedder.NewLocalEmbedder(32), DefaultConfig(), nil)
	ctx := context.Background()

	docs := make([]Document, 32)
	for i := range docs {
		docs[i] = Document{
			Text:   "S3 bucket data-bucket is publicly readable.",
			Source: types.SourceMetadata{SourceRef: "scan-1", Quality: 0.8},
		}
	}

	_, errs := e.IngestBatch(ctx, docs)
	for i, err := range errs {
		assert.NoError(t, err, "document %d", i)
	}

	findings, err := retry.EntitiesByType(ctx, types.EntityTypeFinding)
	require.NoError(t, err)
	require.Len(t, findings, 1, "concurrent batch must merge into one finding")
	assert.Equal(t, int64(len(docs)), findings[0].Version)

	services, err := retry.EntitiesByType(ctx, types.EntityTypeService)
	require.NoError(t, err)
	require.Len(t, services, 1)

	edges, err := retry.GetEdgesBetween(ctx, findings[0].Uuid, services[0].Uuid)
	require.NoError(t, err)
	require.Len(t, edges, 1, "edge writes must not duplicate across documents")
	assert.Equal(t, types.RelTypeAffects, edges[0].RelType)
}
