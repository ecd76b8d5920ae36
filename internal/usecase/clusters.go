package usecase

import (
	"context"
	"fmt"
	"sort"

	"SafeMap/internal/domain"
	"SafeMap/internal/ports"
)

// ClusterView is one geo-cluster of active incidents as last annotated.
type ClusterView struct {
	GeoCluster int               `json:"geo_cluster"`
	RiskScore  float64           `json:"risk_score"`
	RiskLevel  domain.RiskLevel  `json:"risk_level"`
	Count      int               `json:"count"`
	Incidents  []domain.Incident `json:"incidents"`
}

// ClusterService reads stored annotations back grouped by geo-cluster.
type ClusterService struct {
	repo ports.IncidentRepository
}

// NewClusterService builds the read model over repo.
func NewClusterService(repo ports.IncidentRepository) *ClusterService {
	return &ClusterService{repo: repo}
}

// List groups annotated active incidents by geo-cluster, riskiest first.
// Incidents that were never annotated are left out.
func (s *ClusterService) List(ctx context.Context) ([]ClusterView, error) {
	incidents, err := s.repo.List(ctx, domain.IncidentFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list active incidents: %w", err)
	}

	groups := make(map[int]*ClusterView)
	for _, inc := range incidents {
		if inc.GeoCluster == nil {
			continue
		}
		label := *inc.GeoCluster
		view, ok := groups[label]
		if !ok {
			view = &ClusterView{GeoCluster: label, RiskLevel: inc.RiskLevel}
			if inc.RiskScore != nil {
				view.RiskScore = *inc.RiskScore
			}
			groups[label] = view
		}
		view.Incidents = append(view.Incidents, inc)
		view.Count++
	}

	out := make([]ClusterView, 0, len(groups))
	for _, v := range groups {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].GeoCluster < out[j].GeoCluster
	})
	return out, nil
}
