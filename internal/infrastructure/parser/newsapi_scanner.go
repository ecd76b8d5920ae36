package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"SafeMap/internal/config"
	"SafeMap/internal/domain"
	"SafeMap/internal/scanner"
)

const (
	newsAPIBaseURL    = "https://newsapi.org"
	defaultNewsQuery  = "assault OR violence OR catcalling OR rape OR acid attack"
	defaultNewsPages  = 5
	defaultNewsSortBy = "relevancy"
	newsAPITimeLayout = "2006-01-02T15:04:05"

	// Returned by NewsAPI once a plan's result cap is exceeded.
	codeMaximumResults = "maximumResultsReached"
)

// NewsAPIScanner queries NewsAPI /v2/everything for crime reports inside the request window.
//
// Site options: query, language, country, sources, pages, pageSize, sortBy, keywords, lat, lon.
// Without explicit sources, the country's sources are looked up first.
type NewsAPIScanner struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	lat     *float64
	lon     *float64
	logger  *slog.Logger
}

// NewNewsAPIScanner wires credentials, pacing and the user location attached to articles.
func NewNewsAPIScanner(cfg config.NewsAPIConfig, client *http.Client, log *slog.Logger) *NewsAPIScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	base := cfg.BaseURL
	if base == "" {
		base = newsAPIBaseURL
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &NewsAPIScanner{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		lat:     cfg.UserLat,
		lon:     cfg.UserLon,
		logger:  log,
	}
}

// Name identifies the strategy inside the registry.
func (n *NewsAPIScanner) Name() string {
	return "newsapi"
}

type newsAPIError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *newsAPIError) Error() string {
	return fmt.Sprintf("newsapi %s: %s", e.Code, e.Message)
}

func (e *newsAPIError) apiError() *newsAPIError { return e }

// apiResponse is implemented by every payload embedding newsAPIError.
type apiResponse interface {
	apiError() *newsAPIError
}

type newsAPIArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

type everythingResponse struct {
	newsAPIError
	TotalResults int              `json:"totalResults"`
	Articles     []newsAPIArticle `json:"articles"`
}

type sourcesResponse struct {
	newsAPIError
	Sources []struct {
		ID string `json:"id"`
	} `json:"sources"`
}

// Scan pages through /v2/everything and keeps articles mentioning a crime keyword.
func (n *NewsAPIScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Article, error) {
	if n.apiKey == "" {
		return nil, fmt.Errorf("newsapi: api key is not configured for site %s", req.SiteName)
	}

	opt := func(key, def string) string {
		if v := strings.TrimSpace(req.Options[key]); v != "" {
			return v
		}
		return def
	}
	language := opt("language", "en")
	pages, err := strconv.Atoi(opt("pages", strconv.Itoa(defaultNewsPages)))
	if err != nil || pages < 1 {
		return nil, fmt.Errorf("newsapi: invalid pages option %q", req.Options["pages"])
	}

	sources := opt("sources", "")
	if country := opt("country", ""); sources == "" && country != "" {
		ids, err := n.fetchSources(ctx, language, country)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("newsapi: no %s sources found for country %s", language, country)
		}
		sources = strings.Join(ids, ",")
	}

	query := url.Values{}
	query.Set("q", opt("query", defaultNewsQuery))
	query.Set("language", language)
	query.Set("sortBy", opt("sortBy", defaultNewsSortBy))
	if sources != "" {
		query.Set("sources", sources)
	}
	if pageSize := opt("pageSize", ""); pageSize != "" {
		query.Set("pageSize", pageSize)
	}
	if !req.From.IsZero() {
		query.Set("from", req.From.UTC().Format(newsAPITimeLayout))
	}
	if !req.To.IsZero() {
		query.Set("to", req.To.UTC().Format(newsAPITimeLayout))
	}

	var raw []newsAPIArticle
	for page := 1; page <= pages; page++ {
		query.Set("page", strconv.Itoa(page))

		var resp everythingResponse
		err := n.get(ctx, "/v2/everything", query, &resp)
		var apiErr *newsAPIError
		if page > 1 && errors.As(err, &apiErr) && apiErr.Code == codeMaximumResults {
			n.logger.Debug("newsapi result cap reached", "site", req.SiteName, "page", page)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("newsapi page %d: %w", page, err)
		}

		raw = append(raw, resp.Articles...)
		if len(resp.Articles) == 0 || len(raw) >= resp.TotalResults {
			break
		}
	}

	filter := newKeywordFilter(req.Options["keywords"], CrimeKeywords)
	lat, lon := siteCoordinates(req.Options, n.lat, n.lon)

	articles := make([]domain.Article, 0, len(raw))
	for _, item := range raw {
		if !filter.Match(item.Title, item.Description) {
			continue
		}
		articles = append(articles, domain.Article{
			Title:       cleanText(item.Title),
			Description: cleanText(item.Description),
			PublishedAt: parsePublished(item.PublishedAt),
			Latitude:    lat,
			Longitude:   lon,
			Source:      item.Source.Name,
			URL:         strings.TrimSpace(item.URL),
		})
	}

	n.logger.Debug("newsapi scan done", "site", req.SiteName, "fetched", len(raw), "kept", len(articles))
	return articles, nil
}

func (n *NewsAPIScanner) fetchSources(ctx context.Context, language, country string) ([]string, error) {
	query := url.Values{}
	query.Set("language", language)
	query.Set("country", country)

	var resp sourcesResponse
	if err := n.get(ctx, "/v2/top-headlines/sources", query, &resp); err != nil {
		return nil, fmt.Errorf("newsapi sources: %w", err)
	}

	ids := make([]string, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		if s.ID != "" {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

// get decodes the response body into v. Error payloads become *newsAPIError.
func (n *NewsAPIScanner) get(ctx context.Context, path string, query url.Values, v apiResponse) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Api-Key", n.apiKey)
	req.Header.Set("User-Agent", "SafeMap/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("newsapi returned %s", resp.Status)
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if apiErr := v.apiError(); apiErr.Status == "error" || resp.StatusCode != http.StatusOK {
		if apiErr.Code == "" {
			apiErr.Code = strconv.Itoa(resp.StatusCode)
		}
		return apiErr
	}
	return nil
}

var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	time.DateOnly,
	time.RFC1123Z,
	time.RFC1123,
}

// parsePublished returns the zero time for unparseable values; the pipeline rejects such records.
func parsePublished(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
