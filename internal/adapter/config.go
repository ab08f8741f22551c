package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"loadsignal.dev/collector/internal/collecterr"
	"loadsignal.dev/collector/internal/db"
)

// FeedConfig tunes the feed adapter. All fields are optional.
type FeedConfig struct {
	MaxArticles int `json:"max_articles"`
}

// APIConfig drives the generic REST adapter.
type APIConfig struct {
	AuthType  string `json:"auth_type"` // none / api_key_header / api_key_query / bearer
	AuthKey   string `json:"auth_key"`
	AuthValue string `json:"auth_value"` // "$NAME" resolves the environment variable NAME

	PaginationType  string `json:"pagination_type"` // page_number / offset / cursor / none
	PaginationParam string `json:"pagination_param"`
	PageSizeParam   string `json:"page_size_param"`
	PageSize        int    `json:"page_size"`
	MaxPages        int    `json:"max_pages"`

	ItemsPath string            `json:"items_path"`
	Mapping   map[string]string `json:"mapping"`

	FetchFullText bool `json:"fetch_full_text"`
}

// ScraperConfig drives the CSS-selector adapter.
type ScraperConfig struct {
	ListSelector  string `json:"list_selector"`
	TitleSelector string `json:"title_selector"`
	BodySelector  string `json:"body_selector"`
	DateSelector  string `json:"date_selector"`
	DateFormat    string `json:"date_format"`
	BaseURL       string `json:"base_url"`
	MaxArticles   int    `json:"max_articles"`
}

// UniversalConfig tunes the zero-config adapter.
type UniversalConfig struct {
	MaxArticles int `json:"max_articles"`
}

func decodeParserConfig(source db.Source, out any) error {
	if len(source.ParserConfig) == 0 {
		return nil
	}
	if err := json.Unmarshal(source.ParserConfig, out); err != nil {
		return collecterr.Wrap(collecterr.KindConfig, fmt.Errorf("parser config of %s: %w", source.SourceID, err))
	}
	return nil
}

// resolveSecret dereferences "$NAME" values through the environment so
// source files never carry credentials inline.
func resolveSecret(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "$") {
		return trimmed, nil
	}
	name := strings.TrimPrefix(trimmed, "$")
	resolved, ok := os.LookupEnv(name)
	if !ok {
		return "", collecterr.Wrapf(collecterr.KindConfig, "environment variable %s (referenced as %q) is not set", name, value)
	}
	return resolved, nil
}
