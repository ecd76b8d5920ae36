// Package similarity computes pairwise cosine similarity between embeddings
// and derives merge suggestions and conflict flags from it.
package similarity

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pair is an unordered pair of records (I < J) with their cosine similarity.
type Pair struct {
	I     int
	J     int
	Score float64
}

// PairGenerator yields every pair whose similarity is at least floor.
// Implementations may be approximate; downstream consumers only see pairs.
type PairGenerator interface {
	Pairs(ctx context.Context, vectors [][]float32, floor float64) ([]Pair, error)
}

// Cosine returns the cosine similarity of a and b.
// Mismatched lengths and zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return clamp(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Matrix returns the full symmetric similarity matrix with a unit diagonal.
// Rows are computed concurrently; each cell is written by exactly one worker.
// Cancelling ctx stops the remaining rows and returns ctx's error.
func Matrix(ctx context.Context, vectors [][]float32) ([][]float64, error) {
	n := len(vectors)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	if n == 0 {
		return m, nil
	}

	norms := make([]float64, n)
	for i, v := range vectors {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		norms[i] = math.Sqrt(sum)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m[i][i] = 1
			for j := i + 1; j < n; j++ {
				s := dotNormalized(vectors[i], vectors[j], norms[i], norms[j])
				m[i][j] = s
				m[j][i] = s
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

func dotNormalized(a, b []float32, normA, normB float64) float64 {
	if len(a) != len(b) || normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for k := range a {
		dot += float64(a[k]) * float64(b[k])
	}
	return clamp(dot / (normA * normB))
}

func clamp(s float64) float64 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	default:
		return s
	}
}

// Exhaustive scans the full matrix. Exact and quadratic in the number of vectors.
type Exhaustive struct{}

var _ PairGenerator = Exhaustive{}

// Pairs returns all pairs above floor in (I, J) order.
func (Exhaustive) Pairs(ctx context.Context, vectors [][]float32, floor float64) ([]Pair, error) {
	m, err := Matrix(ctx, vectors)
	if err != nil {
		return nil, err
	}

	var pairs []Pair
	for i := range m {
		for j := i + 1; j < len(m); j++ {
			if m[i][j] >= floor {
				pairs = append(pairs, Pair{I: i, J: j, Score: m[i][j]})
			}
		}
	}
	return pairs, nil
}
