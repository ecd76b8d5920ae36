package scoring

import (
	"math"
	"testing"
	"time"

	"SafeMap/internal/domain"
)

func TestSeverityFirstTableMatchWins(t *testing.T) {
	t.Parallel()

	scorer := NewSeverityScorer(nil)
	tests := []struct {
		text string
		want int
	}{
		{text: "A brutal murder occurred", want: 5},
		{text: "Violence erupts after MURDER of shopkeeper", want: 5},
		{text: "Dowry harassment and violence reported", want: 2},
		{text: "Acid attack victim recovering", want: 4},
		{text: "Acid attack and assault in market", want: 3},
		{text: "Men arrested for catcalling", want: 1},
		{text: "Traffic jam on highway", want: DefaultSeverity},
		{text: "", want: DefaultSeverity},
	}
	for _, tt := range tests {
		if got := scorer.Score(tt.text); got != tt.want {
			t.Errorf("Score(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestSeveritySubstringSemantics(t *testing.T) {
	t.Parallel()

	// "grape" contains "rape": the table is matched as raw substrings.
	if got := NewSeverityScorer(nil).Score("grape harvest festival"); got != 5 {
		t.Fatalf("Score = %d, want 5", got)
	}
}

func TestSeverityEmptyTable(t *testing.T) {
	t.Parallel()

	if got := NewSeverityScorer([]Keyword{}).Score("murder"); got != DefaultSeverity {
		t.Fatalf("Score = %d, want %d", got, DefaultSeverity)
	}
}

func TestRecency(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.March, 31, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		published time.Time
		want      float64
	}{
		{name: "same day", published: now.Add(-2 * time.Hour), want: 1},
		{name: "fifteen days", published: now.AddDate(0, 0, -15), want: 0.5},
		{name: "thirty days", published: now.AddDate(0, 0, -30), want: 0},
		{name: "sixty days", published: now.AddDate(0, 0, -60), want: -1},
		{name: "partial day floors", published: now.Add(-36 * time.Hour), want: 1 - 1.0/30},
		{name: "future dated", published: now.Add(12 * time.Hour), want: 1 + 1.0/30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Recency(tt.published, now); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Recency = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevelBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		norm float64
		want domain.RiskLevel
	}{
		{0, domain.RiskLow},
		{0.29, domain.RiskLow},
		{0.30, domain.RiskMedium},
		{0.69, domain.RiskMedium},
		{0.70, domain.RiskHigh},
		{1, domain.RiskHigh},
	}
	for _, tt := range tests {
		if got := Level(tt.norm); got != tt.want {
			t.Errorf("Level(%v) = %s, want %s", tt.norm, got, tt.want)
		}
	}
}

func TestAggregateRisk(t *testing.T) {
	t.Parallel()

	geo := []int{0, 0, 1, domain.NoiseCluster, 0}
	severity := []int{5, 3, 1, 2, 1}
	recency := []float64{1, 0.5, 1, 0, 0}

	risks, err := AggregateRisk(geo, severity, recency)
	if err != nil {
		t.Fatalf("AggregateRisk error: %v", err)
	}
	if len(risks) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(risks))
	}

	c0 := risks[0]
	// 0.6*3 + 0.3*3 + 0.1*0.5 = 2.75
	if c0.Frequency != 3 || math.Abs(c0.RiskScore-0.275) > 1e-9 || c0.RiskLevel != domain.RiskLow {
		t.Fatalf("unexpected cluster 0 risk: %+v", c0)
	}

	single := risks[1]
	// 0.6 + 0.3 + 0.1 = 1.0
	if single.Frequency != 1 || math.Abs(single.RiskScore-0.1) > 1e-9 {
		t.Fatalf("unexpected single-member risk: %+v", single)
	}
}

func TestAggregateRiskBoundsAndSaturation(t *testing.T) {
	t.Parallel()

	geo := make([]int, 20)
	severity := make([]int, 20)
	recency := make([]float64, 20)
	for i := range geo {
		severity[i] = 5
		recency[i] = 1
	}
	risks, err := AggregateRisk(geo, severity, recency)
	if err != nil {
		t.Fatalf("AggregateRisk error: %v", err)
	}
	if risks[0].RiskScore != 1 || risks[0].RiskLevel != domain.RiskHigh {
		t.Fatalf("expected saturated High risk, got %+v", risks[0])
	}

	stale, err := AggregateRisk([]int{7}, []int{1}, []float64{-40})
	if err != nil {
		t.Fatalf("AggregateRisk error: %v", err)
	}
	if stale[7].RiskScore != 0 {
		t.Fatalf("expected negative raw risk to floor at 0, got %v", stale[7].RiskScore)
	}
}

func TestAggregateRiskLengthMismatch(t *testing.T) {
	t.Parallel()

	if _, err := AggregateRisk([]int{0}, nil, nil); err == nil {
		t.Fatal("expected error for mismatched inputs")
	}
}

func TestSorted(t *testing.T) {
	t.Parallel()

	sorted := Sorted(map[int]domain.ClusterRisk{
		0: {GeoCluster: 0, RiskScore: 0.2},
		1: {GeoCluster: 1, RiskScore: 0.9},
		2: {GeoCluster: 2, RiskScore: 0.2},
	})
	if sorted[0].GeoCluster != 1 || sorted[1].GeoCluster != 0 || sorted[2].GeoCluster != 2 {
		t.Fatalf("unexpected order: %+v", sorted)
	}
}
