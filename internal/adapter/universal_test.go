package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loadsignal.dev/collector/internal/db"
)

func TestLooksLikeArticleURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/2026/03/rates-surge-again", true},
		{"https://example.com/news/rates-surge-this-week", true},
		{"https://example.com/story/123456", true},
		{"https://example.com/news/article.html", true},
		{"https://example.com/", false},
		{"https://example.com/about", false},
		{"https://example.com/tag/shipping/news", false},
		{"https://example.com/assets/logo.png", false},
		{"https://other-domain.net/2026/03/rates", false},
	}
	for _, tt := range tests {
		if got := looksLikeArticleURL(tt.url, "example.com"); got != tt.want {
			t.Errorf("looksLikeArticleURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestUniversalAdapterFeedAutodiscovery(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head>
<link rel="alternate" type="application/rss+xml" href="/feed.xml">
</head><body>landing</body></html>`)
	})
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>S</title>
<item><title>Found via autodiscovery</title><link>%s/news/found-it-here</link>
<description>A sufficiently long description so the summary fallback keeps it as body text content.</description></item>
</channel></rss>`, server.URL)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	source := db.Source{SourceID: "uni", Name: "Universal Site", Kind: "universal", URL: server.URL}
	articles, err := NewUniversalAdapter(NewClient(5*time.Second)).Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
	if articles[0].Metadata["universal_strategy"] != "feed_autodiscovery" {
		t.Errorf("strategy = %v", articles[0].Metadata["universal_strategy"])
	}
}

func TestUniversalAdapterCommonFeedPath(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head></head><body>no link tags here</body></html>`)
	})
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>S</title>
<item><title>Common path entry</title><link>%s/news/common-path-entry</link>
<description>This description easily exceeds the fifty character body fallback threshold for articles.</description></item>
</channel></rss>`, server.URL)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	source := db.Source{SourceID: "uni2", Name: "Universal Two", Kind: "universal", URL: server.URL}
	articles, err := NewUniversalAdapter(NewClient(5*time.Second)).Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
}

func TestUniversalAdapterPageExtractionFallback(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
<a href="/2026/03/long-read-on-port-congestion">Long read on port congestion</a>
<a href="/about">About</a>
</body></html>`)
	})
	mux.HandleFunc("/2026/03/long-read-on-port-congestion", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage)
	})
	// Every feed probe path falls through to the landing page, which is
	// not a feed.
	server = httptest.NewServer(mux)
	defer server.Close()

	source := db.Source{SourceID: "uni3", Name: "Universal Three", Kind: "universal", URL: server.URL}
	articles, err := NewUniversalAdapter(NewClient(5*time.Second)).Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
	if articles[0].Metadata["universal_strategy"] != "page_extraction" {
		t.Errorf("strategy = %v", articles[0].Metadata["universal_strategy"])
	}
	if articles[0].Title != "Long read on port congestion" {
		t.Errorf("title = %q", articles[0].Title)
	}
}

func TestUniversalAdapterDeadSite(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	source := db.Source{SourceID: "dead", Name: "Dead", Kind: "universal", URL: server.URL}
	if _, err := NewUniversalAdapter(NewClient(5*time.Second)).Fetch(context.Background(), source); err == nil {
		t.Fatal("expected error for unreachable site")
	}
}
