package scoring

import (
	"fmt"
	"math"
	"sort"

	"SafeMap/internal/domain"
)

// Risk weights and level boundaries.
const (
	frequencyWeight = 0.6
	severityWeight  = 0.3
	recencyWeight   = 0.1
	riskScale       = 10.0

	mediumThreshold = 0.3
	highThreshold   = 0.7
)

// Level buckets a normalized risk score.
func Level(norm float64) domain.RiskLevel {
	switch {
	case norm < mediumThreshold:
		return domain.RiskLow
	case norm < highThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

// Normalize scales raw risk into [0, 1].
func Normalize(raw float64) float64 {
	return math.Max(0, math.Min(raw/riskScale, 1))
}

// AggregateRisk groups records by geo label and scores each group.
// The noise label is treated as an ordinary group.
func AggregateRisk(geo []int, severity []int, recency []float64) (map[int]domain.ClusterRisk, error) {
	if len(geo) != len(severity) || len(geo) != len(recency) {
		return nil, fmt.Errorf("aggregate risk: length mismatch geo=%d severity=%d recency=%d",
			len(geo), len(severity), len(recency))
	}

	type acc struct {
		n        int
		severity float64
		recency  float64
	}
	groups := make(map[int]*acc)
	for i, label := range geo {
		g, ok := groups[label]
		if !ok {
			g = &acc{}
			groups[label] = g
		}
		g.n++
		g.severity += float64(severity[i])
		g.recency += recency[i]
	}

	out := make(map[int]domain.ClusterRisk, len(groups))
	for label, g := range groups {
		avgSeverity := g.severity / float64(g.n)
		avgRecency := g.recency / float64(g.n)
		raw := frequencyWeight*float64(g.n) + severityWeight*avgSeverity + recencyWeight*avgRecency
		norm := Normalize(raw)
		out[label] = domain.ClusterRisk{
			GeoCluster:  label,
			Frequency:   g.n,
			AvgSeverity: avgSeverity,
			AvgRecency:  avgRecency,
			RiskScore:   norm,
			RiskLevel:   Level(norm),
		}
	}
	return out, nil
}

// Sorted returns cluster risks ordered by descending score, then label.
func Sorted(risks map[int]domain.ClusterRisk) []domain.ClusterRisk {
	out := make([]domain.ClusterRisk, 0, len(risks))
	for _, r := range risks {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].GeoCluster < out[j].GeoCluster
	})
	return out
}
