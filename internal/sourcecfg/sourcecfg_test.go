package sourcecfg

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSources(t *testing.T) {
	path := writeTemp(t, "sources.yaml", `
sources:
  - source_id: loadstar
    name: The Loadstar
    kind: feed
    url: https://theloadstar.com/feed/
    language: en
    fetch_interval_minutes: 30
    priority: 1
  - source_id: custom-api
    name: Custom API
    kind: api
    url: https://api.example.com/v1/articles
    parser_config:
      items_path: data.articles
      pagination_type: page_number
      pagination_param: page
`)

	specs, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs", len(specs))
	}
	if specs[0].SourceID != "loadstar" || specs[0].Kind != "feed" {
		t.Errorf("spec[0] = %+v", specs[0])
	}
	if specs[1].ParserConfig["items_path"] != "data.articles" {
		t.Errorf("parser_config = %v", specs[1].ParserConfig)
	}
}

func TestLoadSourcesRejectsDuplicates(t *testing.T) {
	path := writeTemp(t, "sources.yaml", `
sources:
  - {source_id: a, name: A, kind: feed, url: "https://a.example"}
  - {source_id: a, name: A2, kind: feed, url: "https://a2.example"}
`)
	if _, err := LoadSources(path); err == nil {
		t.Fatal("duplicate source_id accepted")
	}
}

func TestLoadSourcesRejectsUnknownKind(t *testing.T) {
	path := writeTemp(t, "sources.yaml", `
sources:
  - {source_id: a, name: A, kind: carrier-pigeon, url: "https://a.example"}
`)
	if _, err := LoadSources(path); err == nil {
		t.Fatal("unknown kind accepted")
	}
}

func TestToSourceDefaults(t *testing.T) {
	source, err := toSource(SourceSpec{SourceID: "x", Name: "X", Kind: "feed", URL: "https://x.example"})
	if err != nil {
		t.Fatal(err)
	}
	if source.FetchIntervalMinutes != 30 {
		t.Errorf("interval = %d", source.FetchIntervalMinutes)
	}
	if source.Priority != 5 {
		t.Errorf("priority = %d", source.Priority)
	}
	if !source.Enabled {
		t.Error("sources default to enabled")
	}
}

func TestLoadSeeds(t *testing.T) {
	path := writeTemp(t, "seeds.yaml", `
search_queries:
  en: ["logistics news", "freight rates news"]
  zh: ["物流新闻"]
seed_urls:
  - url: https://example.com/logistics
    language: en
relevance_keywords:
  en:
    high_weight: [freight, shipping]
    medium_weight: [cargo]
    low_weight: [trade]
`)

	seeds, err := LoadSeeds(path)
	if err != nil {
		t.Fatalf("LoadSeeds: %v", err)
	}
	if len(seeds.SearchQueries["en"]) != 2 {
		t.Errorf("queries = %v", seeds.SearchQueries)
	}
	if len(seeds.SeedURLs) != 1 || seeds.SeedURLs[0].Language != "en" {
		t.Errorf("seed_urls = %v", seeds.SeedURLs)
	}
	if len(seeds.RelevanceKeywords["en"].HighWeight) != 2 {
		t.Errorf("keywords = %v", seeds.RelevanceKeywords)
	}
}

func TestLoadSeedsMissingFile(t *testing.T) {
	seeds, err := LoadSeeds(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing seeds file should not error: %v", err)
	}
	if len(seeds.SearchQueries) != 0 {
		t.Fatal("expected empty seeds")
	}
}
