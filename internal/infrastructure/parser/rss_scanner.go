package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"SafeMap/internal/domain"
	"SafeMap/internal/scanner"
)

// RSSScanner reads RSS/Atom/JSON feeds listed as site categories.
// Items carrying georss or W3C geo points keep their own coordinates;
// the rest get the site's lat/lon options.
type RSSScanner struct {
	parser *gofeed.Parser
	logger *slog.Logger
}

// NewRSSScanner wires an HTTP client into the feed parser.
func NewRSSScanner(client *http.Client, log *slog.Logger) *RSSScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	p := gofeed.NewParser()
	p.Client = client
	p.UserAgent = "SafeMap/1.0"
	return &RSSScanner{parser: p, logger: log}
}

// Name identifies the strategy inside the registry.
func (r *RSSScanner) Name() string {
	return "rss"
}

// Scan fetches every feed and returns items published inside the window.
func (r *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Article, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no feeds provided for site %s", req.SiteName)
	}

	filter := newKeywordFilter(req.Options["keywords"], CrimeKeywords)
	lat, lon := siteCoordinates(req.Options, nil, nil)

	var results []domain.Article
	seen := map[string]struct{}{}

	for _, cat := range req.Categories {
		feed, err := r.parser.ParseURLWithContext(cat.URL, ctx)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", cat.Name, err)
		}

		source := strings.TrimSpace(feed.Title)
		if source == "" {
			source = cat.Name
		}

		kept := 0
		for _, item := range feed.Items {
			published := itemTime(item)
			if published.IsZero() || !req.Contains(published) {
				continue
			}

			description := item.Description
			if strings.TrimSpace(description) == "" {
				description = item.Content
			}
			title, description := cleanText(item.Title), cleanText(description)
			if !filter.Match(title, description) {
				continue
			}

			link := strings.TrimSpace(item.Link)
			id := link
			if id == "" {
				id = item.GUID
			}
			if id != "" {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}

			article := domain.Article{
				Title:       title,
				Description: description,
				PublishedAt: published.UTC(),
				Latitude:    lat,
				Longitude:   lon,
				Source:      source,
				URL:         link,
			}
			if pLat, pLon, ok := itemPoint(item.Extensions); ok {
				article.Latitude, article.Longitude = &pLat, &pLon
			}
			results = append(results, article)
			kept++
		}
		r.logger.Debug("feed scanned", "site", req.SiteName, "feed", cat.Name, "items", len(feed.Items), "kept", kept)
	}

	return results, nil
}

func itemTime(item *gofeed.Item) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return *item.PublishedParsed
	case item.UpdatedParsed != nil:
		return *item.UpdatedParsed
	default:
		return time.Time{}
	}
}

// itemPoint reads <georss:point>lat lon</georss:point> or <geo:lat>/<geo:long>.
func itemPoint(extensions ext.Extensions) (float64, float64, bool) {
	if point := extensionValue(extensions, "georss", "point"); point != "" {
		parts := strings.Fields(point)
		if len(parts) == 2 {
			lat, okLat := parseCoordinate(parts[0])
			lon, okLon := parseCoordinate(parts[1])
			if okLat && okLon && domain.ValidateCoordinates(lat, lon) == nil {
				return lat, lon, true
			}
		}
	}

	lat, okLat := parseCoordinate(extensionValue(extensions, "geo", "lat"))
	lon, okLon := parseCoordinate(extensionValue(extensions, "geo", "long"))
	if okLat && okLon && domain.ValidateCoordinates(lat, lon) == nil {
		return lat, lon, true
	}
	return 0, 0, false
}

func extensionValue(extensions ext.Extensions, prefix, name string) string {
	values := extensions[prefix][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}
