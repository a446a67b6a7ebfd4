package driver

import (
	"context"
	"sort"

	"github.com/atlasgraph/atlas/pkg/types"
)

// adjacencySource supplies the edges incident to a node. The memory and
// badger stores share the expansion algorithm below and only differ in how
// adjacency is fetched.
type adjacencySource interface {
	edgesFrom(ctx context.Context, nodeID string, dir Direction) ([]*types.Relationship, error)
}

// expand runs a bounded breadth-first set expansion from the start ids.
// A per-call visited set guarantees no node is revisited within one
// traversal, making the expansion cycle-safe regardless of topology.
// Implemented iteratively, never by recursion, so the hop bound is hard.
func expand(ctx context.Context, src adjacencySource, q *TraversalQuery) (map[string]int, []PathEdge, error) {
	q.Normalize()

	visited := make(map[string]int)
	reachedBy := make(map[string][]string)
	frontier := make([]string, 0, len(q.StartIDs))
	for _, id := range q.StartIDs {
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = 0
		frontier = append(frontier, id)
	}

	var relFilter map[string]bool
	if len(q.RelTypes) > 0 {
		relFilter = make(map[string]bool, len(q.RelTypes))
		for _, rt := range q.RelTypes {
			relFilter[rt] = true
		}
	}

	seenEdges := make(map[string]bool)
	var crossed []PathEdge

	for hop := 1; hop <= q.MaxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, nodeID := range frontier {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			default:
			}

			edges, err := src.edgesFrom(ctx, nodeID, q.Direction)
			if err != nil {
				return nil, nil, err
			}

			for _, edge := range edges {
				if edge.Deprecated {
					continue
				}
				if relFilter != nil && !relFilter[edge.RelType] {
					continue
				}

				neighbor := edge.TargetID
				if neighbor == nodeID {
					neighbor = edge.SourceID
				}

				segment := make([]string, 0, len(reachedBy[nodeID])+1)
				segment = append(segment, reachedBy[nodeID]...)
				segment = append(segment, edge.Uuid)

				if !seenEdges[edge.Uuid] {
					seenEdges[edge.Uuid] = true
					crossed = append(crossed, PathEdge{Edge: edge, Hop: hop, Path: segment})
				}

				if _, seen := visited[neighbor]; seen {
					continue
				}
				visited[neighbor] = hop
				reachedBy[neighbor] = segment
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	return visited, crossed, nil
}

// assembleTraversal resolves visited ids into entities ordered by
// (hop, uuid) so traversal output is deterministic.
func assembleTraversal(ctx context.Context, store GraphStore, visited map[string]int, edges []PathEdge) (*TraversalResult, error) {
	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if visited[ids[i]] != visited[ids[j]] {
			return visited[ids[i]] < visited[ids[j]]
		}
		return ids[i] < ids[j]
	})

	entities, err := store.GetNodes(ctx, ids)
	if err != nil {
		return nil, err
	}

	return &TraversalResult{
		Visited:  visited,
		Entities: entities,
		Edges:    edges,
	}, nil
}
