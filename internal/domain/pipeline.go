package domain

import "time"

// Annotation is the per-record output of the analysis stages.
type Annotation struct {
	SemanticCluster int       `json:"semantic_cluster"`
	GeoCluster      int       `json:"geo_cluster"`
	Severity        int       `json:"severity"`
	Recency         float64   `json:"recency_score"`
	RiskScore       float64   `json:"risk_score"`
	RiskLevel       RiskLevel `json:"risk_level"`
}

// MergeSuggestion marks two records similar enough to be the same report.
type MergeSuggestion struct {
	I         int     `json:"i"`
	J         int     `json:"j"`
	IncidentI int64   `json:"incident_i,omitempty"`
	IncidentJ int64   `json:"incident_j,omitempty"`
	Score     float64 `json:"score"`
}

// ConflictFlag marks moderately similar records that disagree on safety.
type ConflictFlag struct {
	I         int     `json:"i"`
	J         int     `json:"j"`
	IncidentI int64   `json:"incident_i,omitempty"`
	IncidentJ int64   `json:"incident_j,omitempty"`
	Score     float64 `json:"score"`
}

// RunSummary reports counts for a single pipeline run.
type RunSummary struct {
	Received         int           `json:"received"`
	Accepted         int           `json:"accepted"`
	Rejected         int           `json:"rejected"`
	SkippedMerged    int           `json:"skipped_merged"`
	Inserted         int           `json:"inserted"`
	Updated          int           `json:"updated"`
	Reannotated      int           `json:"reannotated"`
	SemanticClusters int           `json:"semantic_clusters"`
	GeoClusters      int           `json:"geo_clusters"`
	RejectedSample   []RecordError `json:"rejected_sample,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// MaxRejectedSample bounds RunSummary.RejectedSample.
const MaxRejectedSample = 5

// Reject records a failed record, keeping only the first few as samples.
func (s *RunSummary) Reject(rec RecordError) {
	s.Rejected++
	if len(s.RejectedSample) < MaxRejectedSample {
		s.RejectedSample = append(s.RejectedSample, rec)
	}
}

// PipelineResult is the output of a pipeline run.
type PipelineResult struct {
	Incidents        []Incident        `json:"incidents"`
	Annotations      []Annotation      `json:"annotations"`
	MergeSuggestions []MergeSuggestion `json:"merge_suggestions"`
	ConflictFlags    []ConflictFlag    `json:"conflict_flags"`
	Clusters         []ClusterRisk     `json:"clusters"`
	Summary          RunSummary        `json:"summary"`
}

// ClusterRisk summarizes one geo-cluster for digests and the cluster view.
type ClusterRisk struct {
	GeoCluster  int       `json:"geo_cluster"`
	Frequency   int       `json:"frequency"`
	AvgSeverity float64   `json:"avg_severity"`
	AvgRecency  float64   `json:"avg_recency"`
	RiskScore   float64   `json:"risk_score"`
	RiskLevel   RiskLevel `json:"risk_level"`
}
