package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/datatypes"

	"loadsignal.dev/collector/internal/db"
)

func scraperSource(url string, cfg ScraperConfig) db.Source {
	raw, _ := json.Marshal(cfg)
	return db.Source{
		SourceID:     "test-scraper",
		Name:         "Test Scraper",
		Kind:         "scraper",
		URL:          url,
		ParserConfig: datatypes.JSON(raw),
	}
}

func TestScraperAdapterWithSelectors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<div class="headline"><a href="/news/first-story">First story</a></div>
<div class="headline"><a href="/news/first-story">First story duplicate link</a></div>
</body></html>`)
	})
	mux.HandleFunc("/news/first-story", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<h1 class="title">First story full headline</h1>
<time class="published" datetime="2026-02-10T08:00:00Z">Feb 10</time>
<div class="content"><p>The article body describes a week of sharply rising charter rates in the container market.</p></div>
</body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	source := scraperSource(server.URL, ScraperConfig{
		ListSelector:  "div.headline",
		TitleSelector: "h1.title",
		BodySelector:  "div.content",
		DateSelector:  "time.published",
	})

	articles, err := NewScraperAdapter(NewClient(5*time.Second)).Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1 (duplicate link deduped)", len(articles))
	}
	got := articles[0]
	if got.Title != "First story full headline" {
		t.Errorf("title = %q", got.Title)
	}
	if got.BodyText == "" {
		t.Error("expected body text from selector")
	}
	if got.PublishedAt == nil || got.PublishedAt.Day() != 10 {
		t.Errorf("published_at = %v", got.PublishedAt)
	}
}

func TestScraperAdapterReadabilityFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a class="story" href="/news/fallback-story">Fallback story</a></body></html>`)
	})
	mux.HandleFunc("/news/fallback-story", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	source := scraperSource(server.URL, ScraperConfig{
		ListSelector: "a.story",
		BodySelector: "div.does-not-exist",
	})

	articles, err := NewScraperAdapter(NewClient(5*time.Second)).Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
	if articles[0].BodyText == "" {
		t.Error("expected readability-extracted body")
	}
}

func TestScraperAdapterIndexFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	source := scraperSource(server.URL, ScraperConfig{ListSelector: "a"})
	if _, err := NewScraperAdapter(NewClient(5*time.Second)).Fetch(context.Background(), source); err == nil {
		t.Fatal("expected error for index page failure")
	}
}

func TestResolveAgainst(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"https://example.com", "/news/a", "https://example.com/news/a"},
		{"https://example.com", "https://other.com/x#frag", "https://other.com/x"},
		{"https://example.com", "news/a", "https://example.com/news/a"},
	}
	for _, tt := range tests {
		if got := resolveAgainst(tt.base, tt.href); got != tt.want {
			t.Errorf("resolveAgainst(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
		}
	}
}
