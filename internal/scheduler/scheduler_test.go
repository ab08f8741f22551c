package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"loadsignal.dev/collector/internal/adapter"
	"loadsignal.dev/collector/internal/db"
	"loadsignal.dev/collector/internal/dedup"
	"loadsignal.dev/collector/internal/fingerprint"
)

func TestJitteredIntervalStaysWithinTenPercent(t *testing.T) {
	base := 30 * time.Minute
	lo := time.Duration(float64(base) * 0.9)
	hi := time.Duration(float64(base) * 1.1)
	for i := 0; i < 200; i++ {
		got := jitteredInterval(base)
		if got < lo || got > hi {
			t.Fatalf("jittered interval %v outside [%v, %v]", got, lo, hi)
		}
	}
}

func TestTryLockIsNonReentrant(t *testing.T) {
	s := New(nil, nil, nil, 1, zerolog.Nop())
	if !s.tryLock("src") {
		t.Fatal("first lock must succeed")
	}
	if s.tryLock("src") {
		t.Fatal("second lock on the same source must fail")
	}
	if !s.tryLock("other") {
		t.Fatal("locks are per-source")
	}
	s.unlock("src")
	if !s.tryLock("src") {
		t.Fatal("lock must be reacquirable after unlock")
	}
}

func TestBuildArticle(t *testing.T) {
	source := db.Source{SourceID: "loadstar", Name: "The Loadstar", Kind: "feed"}
	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := adapter.RawArticle{
		URL:          "https://theloadstar.com/a?utm_source=twitter",
		Title:        "Rates surge | The Loadstar",
		BodyText:     "Container spot rates surged again this week as congestion spread across hub ports.",
		BodyMarkdown: "Container spot rates surged again this week as congestion spread across hub ports.",
		PublishedAt:  &published,
		Metadata:     map[string]any{"feed_summary": "x"},
	}

	canonicalURL, err := fingerprint.CanonicalURL(raw.URL)
	if err != nil {
		t.Fatal(err)
	}
	if canonicalURL != "https://theloadstar.com/a" {
		t.Fatalf("canonical url = %q", canonicalURL)
	}

	candidate := dedup.Candidate{CanonicalURL: canonicalURL}
	if simhash, ok := fingerprint.Simhash("Rates surge"); ok {
		candidate.TitleSimhash = simhash
		candidate.HasSimhash = true
	}
	if signature, ok := fingerprint.Minhash(raw.BodyText); ok {
		candidate.ContentMinhash = signature
	}

	article := buildArticle(source, raw, canonicalURL, "Rates surge", raw.BodyText, candidate)

	if article.ID == "" {
		t.Fatal("article must get a generated id")
	}
	if article.URL != canonicalURL {
		t.Errorf("url = %q", article.URL)
	}
	if article.Title != "Rates surge" {
		t.Errorf("title = %q", article.Title)
	}
	if article.ProcessingStatus != "pending" {
		t.Errorf("status = %q", article.ProcessingStatus)
	}
	if article.TitleSimhash == nil {
		t.Error("simhash missing")
	}
	if len(article.ContentMinhash) != fingerprint.NumPerm {
		t.Errorf("minhash length = %d", len(article.ContentMinhash))
	}
	if article.Language == nil || *article.Language != "en" {
		t.Errorf("language = %v", article.Language)
	}
	if article.PublishedAt == nil || !article.PublishedAt.Equal(published) {
		t.Errorf("published_at = %v", article.PublishedAt)
	}
	if article.BodyText == nil || *article.BodyText == "" {
		t.Error("body text missing")
	}
	if len(article.RawMetadata) == 0 {
		t.Error("raw metadata missing")
	}
}

func TestBuildArticleRoundTripsSimhashThroughInt64(t *testing.T) {
	// SimHash values with the top bit set must survive the signed column.
	source := db.Source{SourceID: "s", Name: "S"}
	candidate := dedup.Candidate{
		CanonicalURL: "https://example.com/a",
		TitleSimhash: 0xFFFFFFFFFFFFFFFF,
		HasSimhash:   true,
	}
	article := buildArticle(source, adapter.RawArticle{}, candidate.CanonicalURL, "t", "", candidate)
	if article.TitleSimhash == nil {
		t.Fatal("simhash missing")
	}
	if uint64(*article.TitleSimhash) != candidate.TitleSimhash {
		t.Fatalf("round trip lost bits: %x", uint64(*article.TitleSimhash))
	}
}
