package parser

import (
	"context"
	"errors"
	"testing"
	"time"

	"SafeMap/internal/config"
	"SafeMap/internal/domain"
	"SafeMap/internal/scanner"
)

type stubScanner struct {
	name     string
	articles []domain.Article
	err      error
	got      []scanner.Request
}

func (s *stubScanner) Name() string { return s.name }

func (s *stubScanner) Scan(_ context.Context, req scanner.Request) ([]domain.Article, error) {
	s.got = append(s.got, req)
	return s.articles, s.err
}

func TestStrategySourceFetchWindow(t *testing.T) {
	t.Parallel()

	published := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	news := &stubScanner{name: "newsapi", articles: []domain.Article{
		{Title: "a", Description: "murder", PublishedAt: published, URL: "https://example.org/a"},
		{Title: "b", Description: "assault", PublishedAt: published, URL: "https://example.org/b", Source: "NDTV"},
	}}
	feeds := &stubScanner{name: "rss", articles: []domain.Article{
		{Title: "a again", Description: "murder", PublishedAt: published, URL: "https://example.org/a"},
		{Title: "c", Description: "violence", PublishedAt: published, URL: "https://example.org/c"},
	}}

	sites := []config.SiteConfig{
		{Name: "newsapi-india", Scanner: "newsapi", Options: map[string]string{"country": "in"}},
		{Name: "city", Scanner: "rss", Categories: []config.CategoryConfig{{Name: "desk", URL: "https://example.org/feed"}}},
	}
	src := NewStrategySource(scanner.NewRegistry(news, feeds), sites, nil)

	from := published.AddDate(0, 0, -30)
	articles, err := src.FetchWindow(context.Background(), from, published)
	if err != nil {
		t.Fatalf("FetchWindow error: %v", err)
	}

	if len(articles) != 3 {
		t.Fatalf("expected 3 unique articles, got %d", len(articles))
	}
	if articles[0].Source != "newsapi-india" || articles[1].Source != "NDTV" || articles[2].Source != "city" {
		t.Fatalf("unexpected sources: %q %q %q", articles[0].Source, articles[1].Source, articles[2].Source)
	}

	req := feeds.got[0]
	if !req.From.Equal(from) || !req.To.Equal(published) || req.SiteName != "city" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if len(req.Categories) != 1 || req.Categories[0].URL != "https://example.org/feed" {
		t.Fatalf("categories not forwarded: %+v", req.Categories)
	}
	if news.got[0].Options["country"] != "in" {
		t.Fatalf("options not forwarded: %+v", news.got[0].Options)
	}
}

func TestStrategySourceErrors(t *testing.T) {
	t.Parallel()

	if _, err := (&StrategySource{}).FetchWindow(context.Background(), time.Time{}, time.Now()); err == nil {
		t.Fatal("expected error without registry")
	}

	src := NewStrategySource(scanner.NewRegistry(), []config.SiteConfig{{Name: "x", Scanner: "gdelt"}}, nil)
	if _, err := src.FetchWindow(context.Background(), time.Time{}, time.Now()); err == nil {
		t.Fatal("expected unknown scanner error")
	}

	boom := errors.New("boom")
	failing := &stubScanner{name: "rss", err: boom}
	src = NewStrategySource(scanner.NewRegistry(failing), []config.SiteConfig{{Name: "x", Scanner: "rss"}}, nil)
	if _, err := src.FetchWindow(context.Background(), time.Time{}, time.Now()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped scan error, got %v", err)
	}
}
