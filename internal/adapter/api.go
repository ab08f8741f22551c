package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"loadsignal.dev/collector/internal/collecterr"
	"loadsignal.dev/collector/internal/db"
)

const defaultMaxPages = 10

// APIAdapter is the generic JSON client for REST sources, driven entirely
// by the source's parser configuration.
type APIAdapter struct {
	client *Client
}

func NewAPIAdapter(client *Client) *APIAdapter {
	return &APIAdapter{client: client}
}

func (a *APIAdapter) Fetch(ctx context.Context, source db.Source) ([]RawArticle, error) {
	var cfg APIConfig
	if err := decodeParserConfig(source, &cfg); err != nil {
		return nil, err
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}

	items, err := a.walkPages(ctx, source, cfg)
	if err != nil {
		return nil, err
	}

	articles := make([]RawArticle, 0, len(items))
	for _, item := range items {
		article, ok := mapItem(source, cfg, item)
		if !ok {
			continue
		}
		articles = append(articles, article)
	}

	if cfg.FetchFullText {
		a.enrichFullText(ctx, articles)
	}
	return articles, nil
}

// walkPages fetches pages until exhaustion, an empty page, or max_pages.
func (a *APIAdapter) walkPages(ctx context.Context, source db.Source, cfg APIConfig) ([]map[string]any, error) {
	var all []map[string]any
	page := 1
	offset := 0
	cursor := ""

	for pageNum := 1; pageNum <= cfg.MaxPages; pageNum++ {
		items, nextCursor, err := a.fetchPage(ctx, source, cfg, page, offset, cursor)
		if err != nil {
			// Partial results from earlier pages still count.
			if len(all) > 0 {
				return all, nil
			}
			return nil, err
		}
		all = append(all, items...)
		if len(items) == 0 {
			break
		}

		switch cfg.PaginationType {
		case "page_number":
			page++
		case "offset":
			offset += len(items)
		case "cursor":
			cursor = nextCursor
			if cursor == "" {
				return all, nil
			}
		default:
			return all, nil
		}

		if cfg.PageSize > 0 && len(items) < cfg.PageSize {
			break
		}
	}
	return all, nil
}

func (a *APIAdapter) fetchPage(ctx context.Context, source db.Source, cfg APIConfig, page, offset int, cursor string) ([]map[string]any, string, error) {
	endpoint, err := url.Parse(source.URL)
	if err != nil {
		return nil, "", collecterr.Wrap(collecterr.KindConfig, fmt.Errorf("parse api url %q: %w", source.URL, err))
	}

	params := endpoint.Query()
	headers := map[string]string{"Accept": "application/json"}

	switch cfg.AuthType {
	case "", "none":
	case "api_key_header":
		value, err := resolveSecret(cfg.AuthValue)
		if err != nil {
			return nil, "", err
		}
		headers[cfg.AuthKey] = value
	case "bearer", "bearer_token":
		value, err := resolveSecret(cfg.AuthValue)
		if err != nil {
			return nil, "", err
		}
		headers["Authorization"] = "Bearer " + value
	case "api_key_query":
		value, err := resolveSecret(cfg.AuthValue)
		if err != nil {
			return nil, "", err
		}
		params.Set(cfg.AuthKey, value)
	default:
		return nil, "", collecterr.Wrapf(collecterr.KindConfig, "unknown auth_type %q", cfg.AuthType)
	}

	if cfg.PageSizeParam != "" && cfg.PageSize > 0 {
		params.Set(cfg.PageSizeParam, strconv.Itoa(cfg.PageSize))
	}
	switch cfg.PaginationType {
	case "page_number":
		params.Set(cfg.PaginationParam, strconv.Itoa(page))
	case "offset":
		params.Set(cfg.PaginationParam, strconv.Itoa(offset))
	case "cursor":
		if cursor != "" {
			params.Set(cfg.PaginationParam, cursor)
		}
	}
	endpoint.RawQuery = params.Encode()

	body, _, err := a.client.get(ctx, endpoint.String(), headers)
	if err != nil {
		return nil, "", err
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, "", collecterr.Wrap(collecterr.KindParse, fmt.Errorf("decode api response from %s: %w", source.SourceID, err))
	}

	var rawItems any = payload
	if cfg.ItemsPath != "" {
		rawItems = extractByDotPath(payload, cfg.ItemsPath)
	}
	list, ok := rawItems.([]any)
	if !ok {
		return nil, "", collecterr.Wrapf(collecterr.KindParse, "items_path %q did not resolve to a list for %s", cfg.ItemsPath, source.SourceID)
	}

	items := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if m, ok := entry.(map[string]any); ok {
			items = append(items, m)
		}
	}

	nextCursor := ""
	if cfg.PaginationType == "cursor" {
		nextCursor = extractNextCursor(payload)
	}
	return items, nextCursor, nil
}

// extractByDotPath walks nested objects using a dot-separated path.
func extractByDotPath(data any, path string) any {
	current := data
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = obj[segment]
		if !ok {
			return nil
		}
	}
	return current
}

// extractNextCursor probes common locations for a pagination cursor.
func extractNextCursor(data any) string {
	obj, ok := data.(map[string]any)
	if !ok {
		return ""
	}
	keys := []string{"next_cursor", "cursor", "next", "next_page"}
	for _, key := range keys {
		if v := stringValue(obj[key]); v != "" {
			return v
		}
	}
	for _, wrapper := range []string{"pagination", "meta", "paging"} {
		nested, ok := obj[wrapper].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			if v := stringValue(nested[key]); v != "" {
				return v
			}
		}
	}
	return ""
}

func stringValue(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return ""
	}
}

func mapItem(source db.Source, cfg APIConfig, item map[string]any) (RawArticle, bool) {
	get := func(field string) any {
		key := field
		if mapped, ok := cfg.Mapping[field]; ok && mapped != "" {
			key = mapped
		}
		return extractByDotPath(item, key)
	}

	link := stringValue(get("url"))
	title := strings.TrimSpace(stringValue(get("title")))
	if link == "" || title == "" {
		return RawArticle{}, false
	}

	var publishedAt *time.Time
	if raw := stringValue(get("published_at")); raw != "" {
		if ts, err := dateparse.ParseAny(raw); err == nil {
			utc := ts.UTC()
			publishedAt = &utc
		}
	}

	language := stringValue(get("language"))
	if language == "" {
		language = sourceLanguage(source)
	}

	return RawArticle{
		SourceID:     source.SourceID,
		SourceName:   source.Name,
		URL:          link,
		Title:        title,
		BodyText:     stringValue(get("body_text")),
		BodyMarkdown: stringValue(get("body_markdown")),
		Author:       stringValue(get("author")),
		Language:     language,
		PublishedAt:  publishedAt,
		Metadata:     map[string]any{"api_item": item},
	}, true
}

// enrichFullText backfills missing bodies by fetching each article page.
func (a *APIAdapter) enrichFullText(ctx context.Context, articles []RawArticle) {
	for i := range articles {
		if articles[i].BodyText != "" || ctx.Err() != nil {
			continue
		}
		if text, err := a.client.fetchFullText(ctx, articles[i].URL); err == nil {
			articles[i].BodyText = text
			articles[i].BodyMarkdown = text
		}
		politePause(ctx)
	}
}
