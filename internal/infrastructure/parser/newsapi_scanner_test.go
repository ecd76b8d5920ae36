package parser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"SafeMap/internal/config"
	"SafeMap/internal/domain"
	"SafeMap/internal/scanner"
)

type newsAPIStub struct {
	mu       sync.Mutex
	everyReq []url.Values
	keys     []string
}

func (s *newsAPIStub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/top-headlines/sources", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("country") != "in" {
			t.Errorf("unexpected sources query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"sources": []map[string]string{{"id": "the-hindu"}, {"id": "ndtv"}},
		})
	})
	mux.HandleFunc("/v2/everything", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.everyReq = append(s.everyReq, r.URL.Query())
		s.keys = append(s.keys, r.Header.Get("X-Api-Key"))
		s.mu.Unlock()

		if r.URL.Query().Get("page") != "1" {
			w.WriteHeader(http.StatusUpgradeRequired)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "error", "code": codeMaximumResults, "message": "Developer accounts are limited to 100 results.",
			})
			return
		}
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"totalResults": 40,
			"articles": [
				{"source": {"id": "the-hindu", "name": "The Hindu"}, "title": "Murder in Bandra",
				 "description": "<p>Police   report a <b>murder</b> near the station.</p>",
				 "url": "https://example.org/a", "publishedAt": "2024-05-20T10:00:00Z"},
				{"source": {"id": "ndtv", "name": "NDTV"}, "title": "Weather update",
				 "description": "Heavy rain expected", "url": "https://example.org/b", "publishedAt": "2024-05-21T10:00:00Z"},
				{"source": {"id": "ndtv", "name": "NDTV"}, "title": "Assault reported",
				 "description": "A commuter was attacked", "url": "https://example.org/c", "publishedAt": "not a date"}
			]
		}`))
	})
	return mux
}

func TestNewsAPIScannerScan(t *testing.T) {
	t.Parallel()

	stub := &newsAPIStub{}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	cfg := config.NewsAPIConfig{APIKey: "secret", BaseURL: srv.URL, UserLat: domain.Float(19.076), UserLon: domain.Float(72.8777)}
	s := NewNewsAPIScanner(cfg, srv.Client(), nil)

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	req := scanner.Request{
		From:     from,
		To:       from.AddDate(0, 0, 30),
		SiteName: "newsapi-india",
		Options:  map[string]string{"country": "in", "pages": "3"},
	}

	articles, err := s.Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	if len(articles) != 2 {
		t.Fatalf("expected 2 crime articles, got %d: %+v", len(articles), articles)
	}
	first := articles[0]
	if first.Description != "Police report a murder near the station." {
		t.Fatalf("description not cleaned: %q", first.Description)
	}
	if first.Source != "The Hindu" || first.URL != "https://example.org/a" {
		t.Fatalf("unexpected source fields: %+v", first)
	}
	if !first.PublishedAt.Equal(time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected publishedAt: %v", first.PublishedAt)
	}
	if !first.HasCoordinates() || *first.Latitude != 19.076 || *first.Longitude != 72.8777 {
		t.Fatalf("user coordinates not attached: %+v", first)
	}
	if !articles[1].PublishedAt.IsZero() {
		t.Fatalf("unparseable date should be zero, got %v", articles[1].PublishedAt)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.everyReq) != 2 {
		t.Fatalf("expected to stop after the result cap, got %d requests", len(stub.everyReq))
	}
	q := stub.everyReq[0]
	if q.Get("sources") != "the-hindu,ndtv" || q.Get("language") != "en" || q.Get("q") != defaultNewsQuery {
		t.Fatalf("unexpected query: %v", q)
	}
	if q.Get("from") != "2024-05-01T00:00:00" || q.Get("to") != "2024-05-31T00:00:00" {
		t.Fatalf("unexpected window: from=%s to=%s", q.Get("from"), q.Get("to"))
	}
	if stub.keys[0] != "secret" {
		t.Fatalf("api key header missing")
	}
}

func TestNewsAPIScannerSiteCoordinatesOverride(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","totalResults":1,"articles":[
			{"source":{"name":"Mid-Day"},"title":"Violence at market","description":"Two hurt","url":"https://example.org/x","publishedAt":"2024-05-02T08:00:00Z"}]}`))
	}))
	defer srv.Close()

	s := NewNewsAPIScanner(config.NewsAPIConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client(), nil)
	articles, err := s.Scan(context.Background(), scanner.Request{
		SiteName: "mumbai",
		Options:  map[string]string{"sources": "mid-day", "lat": "18.97", "lon": "72.82"},
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(articles) != 1 || *articles[0].Latitude != 18.97 || *articles[0].Longitude != 72.82 {
		t.Fatalf("unexpected articles: %+v", articles)
	}
}

func TestNewsAPIScannerErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewNewsAPIScanner(config.NewsAPIConfig{}, nil, nil).Scan(context.Background(), scanner.Request{}); err == nil {
		t.Fatal("expected missing api key error")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid."}`))
	}))
	defer srv.Close()

	s := NewNewsAPIScanner(config.NewsAPIConfig{APIKey: "bad", BaseURL: srv.URL}, srv.Client(), nil)
	_, err := s.Scan(context.Background(), scanner.Request{Options: map[string]string{"sources": "bbc-news"}})
	if err == nil {
		t.Fatal("expected api error")
	}

	if _, err := s.Scan(context.Background(), scanner.Request{Options: map[string]string{"pages": "zero"}}); err == nil {
		t.Fatal("expected invalid pages error")
	}
}

func TestNewsAPIScannerNoCountrySources(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","sources":[]}`))
	}))
	defer srv.Close()

	s := NewNewsAPIScanner(config.NewsAPIConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client(), nil)
	if _, err := s.Scan(context.Background(), scanner.Request{Options: map[string]string{"country": "zz"}}); err == nil {
		t.Fatal("expected error when the country has no sources")
	}
}
