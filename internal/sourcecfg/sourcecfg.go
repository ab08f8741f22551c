// Package sourcecfg loads the YAML-based source and discovery-seed
// configuration files and seeds the store from them at startup.
package sourcecfg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"loadsignal.dev/collector/internal/db"
)

// SourceSpec is one entry in sources.yaml.
type SourceSpec struct {
	SourceID             string         `yaml:"source_id"`
	Name                 string         `yaml:"name"`
	Kind                 string         `yaml:"kind"`
	URL                  string         `yaml:"url"`
	Language             string         `yaml:"language"`
	Categories           []string       `yaml:"categories"`
	FetchIntervalMinutes int            `yaml:"fetch_interval_minutes"`
	Priority             int            `yaml:"priority"`
	Enabled              *bool          `yaml:"enabled"`
	ParserConfig         map[string]any `yaml:"parser_config"`
	Notes                string         `yaml:"notes"`
}

type sourcesFile struct {
	Sources []SourceSpec `yaml:"sources"`
}

// Seeds is the discovery configuration: search queries, crawl seeds, and
// the weighted relevance lexicon.
type Seeds struct {
	SearchQueries     map[string][]string     `yaml:"search_queries"`
	SeedURLs          []SeedURL               `yaml:"seed_urls"`
	RelevanceKeywords map[string]KeywordTiers `yaml:"relevance_keywords"`
}

type SeedURL struct {
	URL        string   `yaml:"url"`
	Language   string   `yaml:"language"`
	Categories []string `yaml:"categories"`
}

type KeywordTiers struct {
	HighWeight   []string `yaml:"high_weight"`
	MediumWeight []string `yaml:"medium_weight"`
	LowWeight    []string `yaml:"low_weight"`
}

// LoadSources reads and validates sources.yaml.
func LoadSources(path string) ([]SourceSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file %q: %w", path, err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse sources file %q: %w", path, err)
	}

	seen := make(map[string]struct{}, len(file.Sources))
	for i, spec := range file.Sources {
		id := strings.TrimSpace(spec.SourceID)
		if id == "" {
			return nil, fmt.Errorf("sources[%d] has no source_id", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate source_id %q", id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(spec.URL) == "" {
			return nil, fmt.Errorf("source %q has no url", id)
		}
		switch strings.ToLower(strings.TrimSpace(spec.Kind)) {
		case "feed", "api", "scraper", "universal":
		default:
			return nil, fmt.Errorf("source %q has unknown kind %q", id, spec.Kind)
		}
	}
	return file.Sources, nil
}

// LoadSeeds reads discovery_seeds.yaml. A missing file yields empty seeds
// rather than an error so discovery can stay disabled.
func LoadSeeds(path string) (Seeds, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Seeds{}, nil
		}
		return Seeds{}, fmt.Errorf("read seeds file %q: %w", path, err)
	}

	var seeds Seeds
	if err := yaml.Unmarshal(raw, &seeds); err != nil {
		return Seeds{}, fmt.Errorf("parse seeds file %q: %w", path, err)
	}
	return seeds, nil
}

// SeedStore upserts every configured source. Existing runtime state
// (health, last-fetched) survives reseeding.
func SeedStore(ctx context.Context, pool *db.Pool, specs []SourceSpec) error {
	for _, spec := range specs {
		source, err := toSource(spec)
		if err != nil {
			return err
		}
		if err := pool.UpsertSource(ctx, source); err != nil {
			return err
		}
	}
	return nil
}

func toSource(spec SourceSpec) (*db.Source, error) {
	interval := spec.FetchIntervalMinutes
	if interval <= 0 {
		interval = 30
	}
	priority := spec.Priority
	if priority <= 0 {
		priority = 5
	}
	enabled := true
	if spec.Enabled != nil {
		enabled = *spec.Enabled
	}

	source := &db.Source{
		SourceID:             strings.TrimSpace(spec.SourceID),
		Name:                 strings.TrimSpace(spec.Name),
		Kind:                 strings.ToLower(strings.TrimSpace(spec.Kind)),
		URL:                  strings.TrimSpace(spec.URL),
		Categories:           spec.Categories,
		FetchIntervalMinutes: interval,
		Priority:             priority,
		Enabled:              enabled,
		HealthStatus:         "healthy",
		CreatedAt:            time.Now().UTC(),
	}
	if lang := strings.TrimSpace(spec.Language); lang != "" {
		source.Language = &lang
	}
	if notes := strings.TrimSpace(spec.Notes); notes != "" {
		source.Notes = &notes
	}
	if len(spec.ParserConfig) > 0 {
		encoded, err := json.Marshal(spec.ParserConfig)
		if err != nil {
			return nil, fmt.Errorf("encode parser_config of %q: %w", spec.SourceID, err)
		}
		source.ParserConfig = datatypes.JSON(encoded)
	}
	return source, nil
}
