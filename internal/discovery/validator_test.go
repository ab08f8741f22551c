package discovery

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"loadsignal.dev/collector/internal/adapter"
	"loadsignal.dev/collector/internal/sourcecfg"
)

func sampleArticles(n int, body string, withDate bool) []adapter.RawArticle {
	articles := make([]adapter.RawArticle, n)
	for i := range articles {
		articles[i] = adapter.RawArticle{
			Title:    "A sufficiently long article title",
			URL:      "https://example.com/news/some-long-article-slug",
			BodyText: body,
		}
		if withDate {
			now := time.Now().UTC()
			articles[i].PublishedAt = &now
		}
	}
	return articles
}

func TestScoreQualityFullMarks(t *testing.T) {
	body := strings.Repeat("freight rates and port congestion coverage. ", 10)
	got := scoreQuality(sampleArticles(5, body, true))
	if got != 100 {
		t.Fatalf("quality = %d, want 100", got)
	}
}

func TestScoreQualityPartial(t *testing.T) {
	// Two articles, short bodies, no dates: titles 25 + urls 15 only.
	got := scoreQuality(sampleArticles(2, "short", false))
	if got != 40 {
		t.Fatalf("quality = %d, want 40", got)
	}
}

func TestScoreQualityEmpty(t *testing.T) {
	if got := scoreQuality(nil); got != 0 {
		t.Fatalf("quality = %d, want 0", got)
	}
}

func testValidator() *Validator {
	seeds := sourcecfg.Seeds{
		RelevanceKeywords: map[string]sourcecfg.KeywordTiers{
			"en": {
				HighWeight:   []string{"freight", "shipping", "logistics"},
				MediumWeight: []string{"cargo", "port"},
				LowWeight:    []string{"trade"},
			},
		},
	}
	return NewValidator(nil, seeds, 75, zerolog.Nop())
}

func TestScoreRelevance(t *testing.T) {
	v := testValidator()

	relevant := []adapter.RawArticle{{
		Title:    "Freight and shipping update",
		BodyText: "Logistics providers said cargo volumes through the port rose on stronger trade.",
	}}
	// 3 high hits (9) + 2 medium (4) + 1 low (1) = 14, x4 = 56.
	if got := v.scoreRelevance(relevant, "en"); got != 56 {
		t.Fatalf("relevance = %d, want 56", got)
	}

	irrelevant := []adapter.RawArticle{{
		Title:    "Celebrity cooking show recap",
		BodyText: "The finale featured dessert challenges and a surprise guest judge.",
	}}
	if got := v.scoreRelevance(irrelevant, "en"); got != 0 {
		t.Fatalf("relevance = %d, want 0", got)
	}

	if got := v.scoreRelevance(relevant, "sv"); got != 56 {
		t.Fatalf("unknown language should fall back to en, got %d", got)
	}
}

func TestCombinedScore(t *testing.T) {
	// The auto-approval example: 0.4*82 + 0.6*78 = 79.6 -> 79 >= 75.
	if got := combined(82, 78); got != 79 {
		t.Fatalf("combined = %d, want 79", got)
	}
	if combined(82, 78) < 75 != false {
		t.Fatal("score 79 must auto-approve at threshold 75")
	}
	if got := combined(0, 0); got != 0 {
		t.Fatalf("combined = %d, want 0", got)
	}
}

func TestGenerateSourceID(t *testing.T) {
	id := GenerateSourceID("https://www.shippingwatch.example/news")
	if !strings.HasPrefix(id, "shippingwatch_example_") {
		t.Fatalf("id = %q", id)
	}
	if len(id) != len("shippingwatch_example_")+4 {
		t.Fatalf("id = %q, want 4-char suffix", id)
	}
	if GenerateSourceID("https://a.example") == GenerateSourceID("https://a.example") {
		t.Fatal("ids for the same domain should differ by suffix")
	}
}

func TestExtractSiteName(t *testing.T) {
	html := []byte(`<html><head><title>ShippingWatch | Global shipping news</title></head></html>`)
	if got := extractSiteName(html, "https://shippingwatch.example"); got != "ShippingWatch" {
		t.Fatalf("name = %q", got)
	}

	if got := extractSiteName([]byte("<html></html>"), "https://www.foo.example/x"); got != "foo.example" {
		t.Fatalf("fallback name = %q", got)
	}
}
