package cluster

import "SafeMap/internal/similarity"

// Semantic clustering parameters (cosine distance).
const (
	SemanticEps    = 0.5
	SemanticMinPts = 2
)

// SemanticFloor is the lowest similarity that can make two records neighbours.
const SemanticFloor = 1 - SemanticEps

// Semantic clusters n records from precomputed similarity pairs.
func Semantic(n int, pairs []similarity.Pair) []int {
	adjacency := make([][]int, n)
	for _, p := range pairs {
		if 1-p.Score > SemanticEps {
			continue
		}
		adjacency[p.I] = append(adjacency[p.I], p.J)
		adjacency[p.J] = append(adjacency[p.J], p.I)
	}
	return DBSCAN(n, SemanticMinPts, func(i int) []int { return adjacency[i] })
}
