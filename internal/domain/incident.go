package domain

import (
	"fmt"
	"strings"
	"time"
)

// NoiseCluster is the label for records that belong to no cluster.
const NoiseCluster = -1

// DefaultIncidentType is assigned to pipeline-created incidents.
const DefaultIncidentType = "crime"

// RiskLevel is the discrete bucket derived from a normalized risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Incident is the persisted entity served to clients.
type Incident struct {
	ID              int64     `json:"id"`
	ParentID        int64     `json:"parent_id"`
	MergedInto      *int64    `json:"merged_into"`
	SourceKey       string    `json:"source_key,omitempty"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Latitude        *float64  `json:"latitude"`
	Longitude       *float64  `json:"longitude"`
	IncidentType    string    `json:"incident_type"`
	Timestamp       time.Time `json:"timestamp"`
	Source          string    `json:"source,omitempty"`
	URL             string    `json:"url,omitempty"`
	SemanticCluster *int      `json:"semantic_cluster"`
	GeoCluster      *int      `json:"geo_cluster"`
	RiskScore       *float64  `json:"risk_score"`
	RiskLevel       RiskLevel `json:"risk_level,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Active reports whether the incident has not been absorbed by a merge.
func (i Incident) Active() bool {
	return i.MergedInto == nil
}

// IsRoot reports whether the incident starts its own lineage.
func (i Incident) IsRoot() bool {
	return i.ID != 0 && i.ParentID == i.ID
}

// Article projects the incident back into pipeline input.
func (i Incident) Article() Article {
	return Article{
		Title:       i.Title,
		Description: i.Description,
		PublishedAt: i.Timestamp,
		Latitude:    i.Latitude,
		Longitude:   i.Longitude,
		Source:      i.Source,
		URL:         i.URL,
	}
}

// Annotate overwrites the pipeline-owned fields. Lineage fields are untouched.
func (i *Incident) Annotate(a Annotation) {
	semantic, geo, score := a.SemanticCluster, a.GeoCluster, a.RiskScore
	i.SemanticCluster = &semantic
	i.GeoCluster = &geo
	i.RiskScore = &score
	i.RiskLevel = a.RiskLevel
}

// NewIncident carries client-supplied fields for create and fork.
type NewIncident struct {
	Title        string
	Description  string
	Latitude     float64
	Longitude    float64
	IncidentType string
	Timestamp    time.Time
}

// Validate checks the fields required for a user-reported incident.
func (n NewIncident) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if strings.TrimSpace(n.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	return ValidateCoordinates(n.Latitude, n.Longitude)
}

// Incident converts the request into an unsaved incident.
func (n NewIncident) Incident() Incident {
	kind := strings.TrimSpace(n.IncidentType)
	if kind == "" {
		kind = DefaultIncidentType
	}
	lat, lon := n.Latitude, n.Longitude
	return Incident{
		Title:        n.Title,
		Description:  n.Description,
		Latitude:     &lat,
		Longitude:    &lon,
		IncidentType: kind,
		Timestamp:    n.Timestamp,
	}
}

// IncidentFilter narrows List queries.
type IncidentFilter struct {
	ActiveOnly bool
	SourceKeys []string
	GeoCluster *int
	Limit      uint64
}
