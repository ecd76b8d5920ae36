package api

import (
	"fmt"
	"strings"
	"time"

	"SafeMap/internal/domain"
)

// IncidentRequest is the body of create and fork.
type IncidentRequest struct {
	Title        string   `json:"title" binding:"required"`
	Description  string   `json:"description" binding:"required"`
	Latitude     *float64 `json:"latitude" binding:"required"`
	Longitude    *float64 `json:"longitude" binding:"required"`
	IncidentType string   `json:"incident_type"`
	Timestamp    string   `json:"timestamp"`
}

func (r IncidentRequest) toDomain() (domain.NewIncident, error) {
	ts, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return domain.NewIncident{}, err
	}
	return domain.NewIncident{
		Title:        r.Title,
		Description:  r.Description,
		Latitude:     *r.Latitude,
		Longitude:    *r.Longitude,
		IncidentType: r.IncidentType,
		Timestamp:    ts,
	}, nil
}

// MergeRequest names the surviving incident and the ones it absorbs.
type MergeRequest struct {
	ParentID int64   `json:"parent_id" binding:"required"`
	MergeIDs []int64 `json:"merge_ids" binding:"required"`
}

// ArticleRequest is one record of a pipeline batch.
type ArticleRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	PublishedAt string   `json:"publishedAt"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	Source      string   `json:"source"`
	URL         string   `json:"url"`
}

// PipelineRequest is the body of POST /pipeline/run.
type PipelineRequest struct {
	Articles []ArticleRequest `json:"articles"`
}

// toDomain never fails: a bad publishedAt becomes the zero time and the pipeline rejects the record.
func (r ArticleRequest) toDomain() domain.Article {
	published, _ := parseTimestamp(r.PublishedAt)
	return domain.Article{
		Title:       r.Title,
		Description: r.Description,
		PublishedAt: published,
		Latitude:    r.Lat,
		Longitude:   r.Lon,
		Source:      r.Source,
		URL:         r.URL,
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	time.DateTime,
	time.DateOnly,
}

// parseTimestamp returns the zero time for an empty value.
func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q is not RFC 3339", domain.ErrInvalidInput, raw)
}
