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

func apiSource(url string, parserConfig map[string]any) db.Source {
	raw, _ := json.Marshal(parserConfig)
	return db.Source{
		SourceID:     "test-api",
		Name:         "Test API",
		Kind:         "api",
		URL:          url,
		ParserConfig: datatypes.JSON(raw),
	}
}

func TestAPIAdapterMapsItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"articles": []map[string]any{
					{
						"headline":  "Rates climb on transpacific",
						"permalink": "https://example.com/news/rates-climb",
						"content":   "Spot rates rose sharply this week.",
						"date":      "2026-03-01T10:00:00Z",
					},
					{"headline": "", "permalink": "https://example.com/skip-me"},
				},
			},
		})
	}))
	defer server.Close()

	source := apiSource(server.URL, map[string]any{
		"items_path": "data.articles",
		"mapping": map[string]string{
			"title":        "headline",
			"url":          "permalink",
			"body_text":    "content",
			"published_at": "date",
		},
	})

	articles, err := NewAPIAdapter(NewClient(5*time.Second)).Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
	got := articles[0]
	if got.Title != "Rates climb on transpacific" {
		t.Errorf("title = %q", got.Title)
	}
	if got.URL != "https://example.com/news/rates-climb" {
		t.Errorf("url = %q", got.URL)
	}
	if got.BodyText != "Spot rates rose sharply this week." {
		t.Errorf("body = %q", got.BodyText)
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("published_at = %v", got.PublishedAt)
	}
}

func TestAPIAdapterPageNumberPagination(t *testing.T) {
	var pagesServed []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pagesServed = append(pagesServed, page)
		items := []map[string]any{}
		if page == "1" || page == "2" {
			items = append(items, map[string]any{
				"title": "Item page " + page,
				"url":   fmt.Sprintf("https://example.com/p/%s", page),
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	}))
	defer server.Close()

	source := apiSource(server.URL, map[string]any{
		"items_path":       "items",
		"pagination_type":  "page_number",
		"pagination_param": "page",
		"max_pages":        5,
	})

	articles, err := NewAPIAdapter(NewClient(5*time.Second)).Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2", len(articles))
	}
	// Pages 1 and 2 return data; page 3 is empty and ends the walk.
	if len(pagesServed) != 3 {
		t.Fatalf("served pages %v, want 3 requests", pagesServed)
	}
}

func TestAPIAdapterCursorPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		switch cursor {
		case "":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items":       []map[string]any{{"title": "First", "url": "https://example.com/1"}},
				"next_cursor": "abc",
			})
		case "abc":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{"title": "Second", "url": "https://example.com/2"}},
			})
		default:
			t.Errorf("unexpected cursor %q", cursor)
		}
	}))
	defer server.Close()

	source := apiSource(server.URL, map[string]any{
		"items_path":       "items",
		"pagination_type":  "cursor",
		"pagination_param": "cursor",
	})

	articles, err := NewAPIAdapter(NewClient(5*time.Second)).Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2", len(articles))
	}
}

func TestAPIAdapterServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	source := apiSource(server.URL, map[string]any{"items_path": "items"})
	_, err := NewAPIAdapter(NewClient(5*time.Second)).Fetch(context.Background(), source)
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestExtractByDotPath(t *testing.T) {
	data := map[string]any{
		"a": map[string]any{"b": map[string]any{"c": "deep"}},
	}
	if got := extractByDotPath(data, "a.b.c"); got != "deep" {
		t.Fatalf("got %v", got)
	}
	if got := extractByDotPath(data, "a.missing.c"); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestExtractNextCursor(t *testing.T) {
	if got := extractNextCursor(map[string]any{"next_cursor": "x"}); got != "x" {
		t.Fatalf("got %q", got)
	}
	if got := extractNextCursor(map[string]any{"pagination": map[string]any{"next": float64(7)}}); got != "7" {
		t.Fatalf("got %q", got)
	}
	if got := extractNextCursor(map[string]any{}); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
