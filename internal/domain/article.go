package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"
)

// Article is a news record fetched from providers. It is never mutated after fetch.
type Article struct {
	Title       string
	Description string
	PublishedAt time.Time
	Latitude    *float64
	Longitude   *float64
	Source      string
	URL         string
}

// Key returns a stable identity used to match re-fetched articles with stored incidents.
func (a Article) Key() string {
	if u := strings.TrimSpace(a.URL); u != "" {
		return u
	}
	sum := sha256.Sum256([]byte(a.Title + "|" + a.Description + "|" + a.PublishedAt.UTC().Format(time.RFC3339)))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// EmbeddingText is the text fed to the embedder: title and description joined by ". ".
func (a Article) EmbeddingText() string {
	return a.Title + ". " + a.Description
}

// SearchText is the text scanned for severity keywords and safety terms.
func (a Article) SearchText() string {
	return a.Title + " " + a.Description
}

// HasCoordinates reports whether both coordinates are present and numeric.
func (a Article) HasCoordinates() bool {
	if a.Latitude == nil || a.Longitude == nil {
		return false
	}
	return !math.IsNaN(*a.Latitude) && !math.IsNaN(*a.Longitude)
}

// Validate rejects records the pipeline cannot annotate.
func (a Article) Validate() error {
	if strings.TrimSpace(a.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if a.PublishedAt.IsZero() {
		return fmt.Errorf("%w: publishedAt is required", ErrInvalidInput)
	}
	if a.HasCoordinates() {
		if err := ValidateCoordinates(*a.Latitude, *a.Longitude); err != nil {
			return err
		}
	}
	return nil
}

// ValidateCoordinates checks WGS84 ranges.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidInput, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidInput, lon)
	}
	return nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
