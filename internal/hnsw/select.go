package hnsw

import (
	"slices"

	"github.com/hupe1980/voyago/internal/queue"
)

// SelectNeighbors picks at most m edges for a node from candidates.
//
// candidates must carry their distance to the node and be ordered best first.
// A candidate is kept only if no already-kept candidate is closer to it than
// the node itself is (relative neighborhood rule). When keepPruned is set the
// result is topped up to m with the best rejected candidates.
//
// between returns the distance between two slots. The returned slice is
// ordered best first and does not alias candidates.
func SelectNeighbors(candidates []queue.Item, m int, between func(a, b uint32) float32, keepPruned bool) []queue.Item {
	if m <= 0 {
		return nil
	}
	kept := make([]queue.Item, 0, m)
	var pruned []queue.Item

	for _, cand := range candidates {
		if len(kept) >= m {
			break
		}
		good := true
		for _, r := range kept {
			if between(cand.Node, r.Node) < cand.Distance {
				good = false
				break
			}
		}
		if good {
			kept = append(kept, cand)
		} else if keepPruned {
			pruned = append(pruned, cand)
		}
	}

	for _, p := range pruned {
		if len(kept) >= m {
			break
		}
		kept = append(kept, p)
	}

	if keepPruned {
		slices.SortFunc(kept, compareItems)
	}
	return kept
}

func compareItems(a, b queue.Item) int {
	switch {
	case queue.Before(a, b):
		return -1
	case queue.Before(b, a):
		return 1
	default:
		return 0
	}
}
