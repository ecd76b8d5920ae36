package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"SafeMap/internal/domain"
	"SafeMap/internal/scanner"
)

// Column names of article exports; matching is case-insensitive.
const (
	colTitle       = "title"
	colDescription = "description"
	colPublishedAt = "publishedat"
	colSource      = "source"
	colURL         = "url"
	colLat         = "lat"
	colLon         = "lon"
)

var columnAliases = map[string]string{
	"published_at": colPublishedAt,
	"latitude":     colLat,
	"longitude":    colLon,
}

// CSVScanner reads article exports from local files; each category URL is a path.
type CSVScanner struct{}

// NewCSVScanner builds the file-backed strategy.
func NewCSVScanner() *CSVScanner {
	return &CSVScanner{}
}

// Name identifies the strategy inside the registry.
func (c *CSVScanner) Name() string {
	return "csv"
}

// Scan reads every file and keeps rows inside the window. Rows without a parseable
// date are kept so the pipeline can reject and count them.
func (c *CSVScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Article, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no files provided for site %s", req.SiteName)
	}

	var results []domain.Article
	for _, cat := range req.Categories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		articles, err := ReadCSVFile(cat.URL)
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", cat.Name, err)
		}
		for _, a := range articles {
			if a.PublishedAt.IsZero() || req.Contains(a.PublishedAt) {
				results = append(results, a)
			}
		}
	}
	return results, nil
}

// ReadCSVFile loads articles from a CSV export with a header row.
func ReadCSVFile(path string) ([]domain.Article, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses columns title, description, publishedAt, source, url, lat, lon.
// description and publishedAt are required; empty or non-numeric coordinates are treated as missing.
func ReadCSV(r io.Reader) ([]domain.Article, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := map[string]int{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		index[name] = i
	}
	for _, required := range []string{colDescription, colPublishedAt} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%w: csv column %q is missing", domain.ErrInvalidInput, required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var articles []domain.Article
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(articles)+2, err)
		}

		article := domain.Article{
			Title:       field(record, colTitle),
			Description: field(record, colDescription),
			PublishedAt: parsePublished(field(record, colPublishedAt)),
			Source:      field(record, colSource),
			URL:         field(record, colURL),
		}
		lat, okLat := parseCoordinate(field(record, colLat))
		lon, okLon := parseCoordinate(field(record, colLon))
		if okLat && okLon {
			article.Latitude, article.Longitude = &lat, &lon
		}
		articles = append(articles, article)
	}
	return articles, nil
}
