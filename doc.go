// Package atlas provides a hybrid knowledge-graph search and retrieval engine.
//
// Atlas ingests raw text through a deterministic rule-based extraction
// pipeline, stores the resulting entities and relationships in a graph
// backend, and answers queries by fusing semantic embedding similarity
// with bounded graph traversal. There is no LLM in the loop: extraction,
// classification and ranking are all rule-driven and reproducible.
//
// # Basic Usage
//
// Build an Engine from configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	engine, err := atlas.New(cfg, slog.Default())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
// # Ingesting
//
// Ingestion turns text into graph entities and relationships. Entities
// whose names are near-duplicates of existing ones are merged, keeping
// version history:
//
//	result, err := engine.Ingest(ctx, "S3 bucket data-bucket is publicly readable", types.SourceMetadata{
//		SourceRef: "scan-2024-01",
//		Quality:   0.9,
//	})
//
// # Searching
//
// Search classifies the query, picks a retrieval strategy, and returns
// ranked results with per-signal score breakdowns:
//
//	resp, err := engine.Search(ctx, &types.SearchQuery{
//		Text:       "what mitigates public access to data-bucket",
//		MaxResults: 10,
//	})
//
//	for _, r := range resp.Results {
//		fmt.Printf("%d. %s (%.3f)\n", r.Rank, r.Entity.Name, r.FinalScore)
//	}
//
// Every result can be explained after the fact via Explain, using the
// response's QueryID.
//
// # Backends
//
// Three graph backends are supported: an in-memory store for tests, an
// embedded BadgerDB store for single-node durability, and Neo4j for
// shared deployments. All three implement the same cycle-safe bounded
// traversal semantics. The store is wrapped in a retry layer and a
// circuit breaker; when one retrieval subsystem is down, search
// degrades to the other rather than failing.
package atlas
