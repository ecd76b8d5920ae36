// Package analysis composes embedding, similarity, clustering and scoring into one pass over a batch.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"SafeMap/internal/cluster"
	"SafeMap/internal/domain"
	"SafeMap/internal/ports"
	"SafeMap/internal/scoring"
	"SafeMap/internal/similarity"
)

// candidateFloor is the lowest similarity any downstream stage looks at.
const candidateFloor = similarity.ConflictLow

// Analyzer runs the pure analysis stages over a batch of validated articles.
type Analyzer struct {
	embedder ports.Embedder
	pairs    similarity.PairGenerator
	severity *scoring.SeverityScorer
	logger   *slog.Logger
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithPairGenerator replaces the exhaustive pair generator.
func WithPairGenerator(g similarity.PairGenerator) Option {
	return func(a *Analyzer) {
		if g != nil {
			a.pairs = g
		}
	}
}

// WithSeverityScorer replaces the default keyword table.
func WithSeverityScorer(s *scoring.SeverityScorer) Option {
	return func(a *Analyzer) {
		if s != nil {
			a.severity = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// New builds an Analyzer around embedder.
func New(embedder ports.Embedder, opts ...Option) *Analyzer {
	a := &Analyzer{
		embedder: embedder,
		pairs:    similarity.Exhaustive{},
		severity: scoring.NewSeverityScorer(nil),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analysis is the outcome of one batch.
// Kept maps each output position to the index of the input article; Annotations,
// Merges and Conflicts are expressed in output positions.
type Analysis struct {
	Kept             []int
	Annotations      []domain.Annotation
	Merges           []domain.MergeSuggestion
	Conflicts        []domain.ConflictFlag
	Clusters         map[int]domain.ClusterRisk
	SemanticClusters int
	GeoClusters      int
	Rejected         []domain.RecordError
}

// Analyze embeds, pairs, clusters and scores articles as of now.
// Articles whose embedding is malformed are reported in Rejected and left out.
func (a *Analyzer) Analyze(ctx context.Context, articles []domain.Article, now time.Time) (Analysis, error) {
	out := Analysis{
		Kept:        []int{},
		Annotations: []domain.Annotation{},
		Merges:      []domain.MergeSuggestion{},
		Conflicts:   []domain.ConflictFlag{},
		Clusters:    map[int]domain.ClusterRisk{},
	}
	if len(articles) == 0 {
		return out, nil
	}
	if a.embedder == nil {
		return out, fmt.Errorf("analyze: embedder is not configured")
	}

	texts := make([]string, len(articles))
	for i, art := range articles {
		texts[i] = art.EmbeddingText()
	}
	vectors, err := a.embedder.Embed(ctx, texts)
	if err != nil {
		return out, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	if len(vectors) != len(articles) {
		return out, fmt.Errorf("embed: got %d vectors for %d texts", len(vectors), len(articles))
	}

	dim := expectedDim(vectors)
	kept := make([][]float32, 0, len(vectors))
	for i, v := range vectors {
		if reason := malformed(v, dim); reason != "" {
			out.Rejected = append(out.Rejected, domain.RecordError{
				Index:  i,
				Key:    articles[i].Key(),
				Reason: fmt.Sprintf("%v: %s", domain.ErrInvalidInput, reason),
			})
			a.logger.Warn("dropping record with malformed embedding", "index", i, "reason", reason)
			continue
		}
		out.Kept = append(out.Kept, i)
		kept = append(kept, v)
	}
	n := len(out.Kept)
	if n == 0 {
		return out, nil
	}

	pairs, err := a.pairs.Pairs(ctx, kept, candidateFloor)
	if err != nil {
		return out, fmt.Errorf("candidate pairs: %w", err)
	}

	search := make([]string, n)
	points := make([]cluster.Point, n)
	severity := make([]int, n)
	recency := make([]float64, n)
	for pos, idx := range out.Kept {
		art := articles[idx]
		search[pos] = art.SearchText()
		points[pos] = cluster.PointOf(art)
		severity[pos] = a.severity.Score(search[pos])
		recency[pos] = scoring.Recency(art.PublishedAt, now)
	}

	out.Merges, out.Conflicts = similarity.Advise(pairs, search)

	semantic := cluster.Semantic(n, pairs)
	geo := cluster.Geo(points)
	out.SemanticClusters = cluster.Count(semantic)
	out.GeoClusters = cluster.Count(geo)

	risks, err := scoring.AggregateRisk(geo, severity, recency)
	if err != nil {
		return out, fmt.Errorf("aggregate risk: %w", err)
	}
	out.Clusters = risks

	out.Annotations = make([]domain.Annotation, n)
	for pos := range out.Kept {
		risk := risks[geo[pos]]
		out.Annotations[pos] = domain.Annotation{
			SemanticCluster: semantic[pos],
			GeoCluster:      geo[pos],
			Severity:        severity[pos],
			Recency:         recency[pos],
			RiskScore:       risk.RiskScore,
			RiskLevel:       risk.RiskLevel,
		}
	}

	a.logger.Debug("analysis complete",
		"records", n,
		"pairs", len(pairs),
		"semantic_clusters", out.SemanticClusters,
		"geo_clusters", out.GeoClusters,
		"merges", len(out.Merges),
		"conflicts", len(out.Conflicts))
	return out, nil
}

// expectedDim is the most common non-zero vector length in the batch.
func expectedDim(vectors [][]float32) int {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		counts[len(v)]++
		if c := counts[len(v)]; c > bestCount || (c == bestCount && len(v) < best) {
			best, bestCount = len(v), c
		}
	}
	return best
}

func malformed(v []float32, dim int) string {
	if len(v) == 0 {
		return "empty embedding"
	}
	if len(v) != dim {
		return fmt.Sprintf("embedding dimension %d, want %d", len(v), dim)
	}
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "embedding contains non-finite values"
		}
	}
	return ""
}
