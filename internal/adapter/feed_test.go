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

const articlePage = `<!DOCTYPE html><html><head><title>Rates surge</title></head><body>
<article><h1>Rates surge</h1>
<p>Container spot rates on the Asia-Europe trade climbed for the fourth consecutive week, with carriers pushing through general rate increases ahead of the holiday restocking season. Analysts tracking the weekly indices said the pace of the increases surprised even the carriers themselves, several of which had announced capacity cuts only a month earlier.</p>
<p>Forwarders said space on the trade remained extremely tight, and several reported rolled bookings at the major transshipment hubs. One Hong Kong based forwarder said its customers were now booking three weeks ahead of cargo-ready dates to be sure of uplift, compared with the usual one week during normal market conditions.</p>
<p>The squeeze has also spilled over into the reefer segment, where plug availability at the hub ports has become a constraint of its own. Shippers of perishables warned that transit-time reliability was now a bigger concern than the headline rate levels, and some have begun shifting volumes to air freight despite the cost premium.</p>
</article></body></html>`

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Test Source</title>
<item>
  <title>Rates surge</title>
  <link>%s/news/rates-surge</link>
  <pubDate>Mon, 02 Mar 2026 09:30:00 GMT</pubDate>
  <description>Spot rates climbed again this week across the major east-west trades.</description>
</item>
<item>
  <title></title>
  <link>%s/news/no-title</link>
</item>
</channel></rss>`, server.URL, server.URL)
	})
	mux.HandleFunc("/news/rates-surge", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage)
	})
	server = httptest.NewServer(mux)
	return server
}

func TestFeedAdapterFetch(t *testing.T) {
	server := feedServer(t)
	defer server.Close()

	source := db.Source{
		SourceID: "test-feed",
		Name:     "Test Source",
		Kind:     "feed",
		URL:      server.URL + "/feed.xml",
	}

	articles, err := NewFeedAdapter(NewClient(5*time.Second)).Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1 (entry without title skipped)", len(articles))
	}

	got := articles[0]
	if got.Title != "Rates surge" {
		t.Errorf("title = %q", got.Title)
	}
	if got.URL != server.URL+"/news/rates-surge" {
		t.Errorf("url = %q", got.URL)
	}
	if got.BodyText == "" {
		t.Error("expected extracted body text")
	}
	if got.PublishedAt == nil {
		t.Error("expected published_at from pubDate")
	} else if got.PublishedAt.UTC().Hour() != 9 {
		t.Errorf("published_at = %v", got.PublishedAt)
	}
}

func TestFeedAdapterFeedLevelFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	source := db.Source{SourceID: "dead", Name: "Dead", Kind: "feed", URL: server.URL + "/feed.xml"}
	if _, err := NewFeedAdapter(NewClient(5*time.Second)).Fetch(context.Background(), source); err == nil {
		t.Fatal("expected fatal error for feed-level HTTP failure")
	}
}

func TestFeedAdapterEmptyFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>Empty</title></channel></rss>`)
	}))
	defer server.Close()

	source := db.Source{SourceID: "empty", Name: "Empty", Kind: "feed", URL: server.URL}
	articles, err := NewFeedAdapter(NewClient(5*time.Second)).Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("empty feed should not error: %v", err)
	}
	if len(articles) != 0 {
		t.Fatalf("got %d articles, want 0", len(articles))
	}
}

func TestResolveLink(t *testing.T) {
	tests := []struct {
		base, link, want string
	}{
		{"https://example.com/feed.xml", "https://example.com/a", "https://example.com/a"},
		{"https://example.com/feed.xml", "/news/a", "https://example.com/news/a"},
		{"https://example.com/feed.xml", "", ""},
	}
	for _, tt := range tests {
		if got := resolveLink(tt.base, tt.link); got != tt.want {
			t.Errorf("resolveLink(%q, %q) = %q, want %q", tt.base, tt.link, got, tt.want)
		}
	}
}
