package analysis

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"SafeMap/internal/domain"
)

type stubEmbedder struct {
	vectors map[string][]float32
	short   bool
	err     error
}

func (s stubEmbedder) Model() string { return "stub" }

func (s stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, s.vectors[t])
	}
	if s.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

var now = time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)

func article(title, desc string, lat, lon float64, age time.Duration) domain.Article {
	return domain.Article{
		Title:       title,
		Description: desc,
		PublishedAt: now.Add(-age),
		Latitude:    domain.Float(lat),
		Longitude:   domain.Float(lon),
	}
}

func TestAnalyzeEmptyBatch(t *testing.T) {
	t.Parallel()

	got, err := New(stubEmbedder{}).Analyze(context.Background(), nil, now)
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if len(got.Annotations) != 0 || len(got.Merges) != 0 || len(got.Conflicts) != 0 {
		t.Fatalf("expected empty analysis, got %+v", got)
	}
}

func TestAnalyzeAnnotatesBatch(t *testing.T) {
	t.Parallel()

	arts := []domain.Article{
		article("Murder in Andheri", "Police probe killing", 19.1197, 72.8464, 2*time.Hour),
		article("Andheri murder", "Police investigate killing", 19.1199, 72.8466, 26*time.Hour),
		article("Street is safe", "Residents say the park is safe at night", 28.6139, 77.2090, 0),
		article("Street is unsafe", "Residents say the park is unsafe at night", 12.9716, 77.5946, 0),
	}
	emb := stubEmbedder{vectors: map[string][]float32{
		arts[0].EmbeddingText(): {1, 0, 0},
		arts[1].EmbeddingText(): {0.99, 0.1, 0},
		arts[2].EmbeddingText(): {0, 1, 0},
		arts[3].EmbeddingText(): {0, 0.6, 0.8},
	}}

	got, err := New(emb).Analyze(context.Background(), arts, now)
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if len(got.Annotations) != 4 || len(got.Kept) != 4 {
		t.Fatalf("expected 4 annotations, got %d", len(got.Annotations))
	}

	if len(got.Merges) != 1 || got.Merges[0].I != 0 || got.Merges[0].J != 1 {
		t.Fatalf("unexpected merges: %+v", got.Merges)
	}
	if len(got.Conflicts) != 1 || got.Conflicts[0].I != 2 || got.Conflicts[0].J != 3 {
		t.Fatalf("unexpected conflicts: %+v", got.Conflicts)
	}

	a0, a1 := got.Annotations[0], got.Annotations[1]
	if a0.SemanticCluster != 0 || a1.SemanticCluster != 0 {
		t.Fatalf("expected first two records in semantic cluster 0, got %d and %d", a0.SemanticCluster, a1.SemanticCluster)
	}
	if a0.GeoCluster != 0 || a1.GeoCluster != 0 {
		t.Fatalf("expected first two records in geo cluster 0, got %d and %d", a0.GeoCluster, a1.GeoCluster)
	}
	if got.Annotations[2].GeoCluster != domain.NoiseCluster || got.Annotations[3].GeoCluster != domain.NoiseCluster {
		t.Fatalf("expected isolated records to be geo noise")
	}
	if a0.Severity != 5 || a0.Recency != 1 {
		t.Fatalf("unexpected severity/recency: %+v", a0)
	}
	if math.Abs(a1.Recency-(1-1.0/30)) > 1e-9 {
		t.Fatalf("unexpected recency for day-old record: %v", a1.Recency)
	}
	if a0.RiskScore != a1.RiskScore || a0.RiskLevel != a1.RiskLevel {
		t.Fatalf("cluster members must share risk: %+v vs %+v", a0, a1)
	}
	if got.GeoClusters != 1 {
		t.Fatalf("GeoClusters = %d, want 1", got.GeoClusters)
	}
	if _, ok := got.Clusters[domain.NoiseCluster]; !ok {
		t.Fatalf("expected noise bucket in cluster risks")
	}
}

func TestAnalyzeRejectsMalformedVectors(t *testing.T) {
	t.Parallel()

	arts := []domain.Article{
		article("a", "first", 0, 0, 0),
		article("b", "second", 0, 0, 0),
		article("c", "third", 0, 0, 0),
	}
	emb := stubEmbedder{vectors: map[string][]float32{
		arts[0].EmbeddingText(): {1, 0},
		arts[1].EmbeddingText(): {float32(math.NaN()), 0},
		arts[2].EmbeddingText(): {1, 0, 0},
	}}

	got, err := New(emb).Analyze(context.Background(), arts, now)
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if len(got.Rejected) != 2 {
		t.Fatalf("expected 2 rejected records, got %+v", got.Rejected)
	}
	if len(got.Kept) != 1 || got.Kept[0] != 0 {
		t.Fatalf("unexpected kept indices: %v", got.Kept)
	}
	if got.Annotations[0].SemanticCluster != domain.NoiseCluster {
		t.Fatalf("single record must be semantic noise, got %d", got.Annotations[0].SemanticCluster)
	}
}

func TestAnalyzeEmbedderErrors(t *testing.T) {
	t.Parallel()

	arts := []domain.Article{article("a", "b", 0, 0, 0), article("c", "d", 0, 0, 0)}

	boom := errors.New("boom")
	if _, err := New(stubEmbedder{err: boom}).Analyze(context.Background(), arts, now); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped embedder error, got %v", err)
	}

	short := stubEmbedder{short: true, vectors: map[string][]float32{}}
	if _, err := New(short).Analyze(context.Background(), arts, now); err == nil {
		t.Fatal("expected count mismatch error")
	}
}
