package similarity

import (
	"context"
	"fmt"
	"sort"

	"github.com/coder/hnsw"
)

const defaultNeighbors = 16

// HNSW generates candidate pairs from an approximate nearest-neighbour graph.
// Scores of returned pairs are exact; pairs the graph misses are lost.
type HNSW struct {
	// Neighbors is how many nearest vectors are inspected per query.
	Neighbors int
	// M and EfSearch override the graph defaults when positive.
	M        int
	EfSearch int
}

var _ PairGenerator = HNSW{}

// Pairs indexes every non-zero vector and queries each one against the graph.
func (h HNSW) Pairs(ctx context.Context, vectors [][]float32, floor float64) (pairs []Pair, err error) {
	defer func() {
		if r := recover(); r != nil {
			pairs, err = nil, fmt.Errorf("hnsw index: %v", r)
		}
	}()

	k := h.Neighbors
	if k <= 0 {
		k = defaultNeighbors
	}

	g := hnsw.NewGraph[int]()
	g.Distance = hnsw.CosineDistance
	if h.M > 0 {
		g.M = h.M
	}
	if h.EfSearch > 0 {
		g.EfSearch = h.EfSearch
	}

	indexed := make([]bool, len(vectors))
	for i, v := range vectors {
		if isZero(v) {
			continue
		}
		g.Add(hnsw.MakeNode(i, v))
		indexed[i] = true
	}
	if g.Len() < 2 {
		return nil, nil
	}

	seen := make(map[[2]int]struct{})
	for i, v := range vectors {
		if !indexed[i] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, node := range g.Search(v, k+1) {
			j := node.Key
			if j == i {
				continue
			}
			key := [2]int{min(i, j), max(i, j)}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			if s := Cosine(vectors[key[0]], vectors[key[1]]); s >= floor {
				pairs = append(pairs, Pair{I: key[0], J: key[1], Score: s})
			}
		}
	}

	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].I != pairs[b].I {
			return pairs[a].I < pairs[b].I
		}
		return pairs[a].J < pairs[b].J
	})
	return pairs, nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
