package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"

	"loadsignal.dev/collector/internal/collecterr"
	"loadsignal.dev/collector/internal/db"
)

// FeedAdapter parses RSS 2.0 and Atom feeds and enriches each entry with
// full-text extraction from the target page.
type FeedAdapter struct {
	client *Client
	parser *gofeed.Parser
}

func NewFeedAdapter(client *Client) *FeedAdapter {
	return &FeedAdapter{
		client: client,
		parser: gofeed.NewParser(),
	}
}

func (a *FeedAdapter) Fetch(ctx context.Context, source db.Source) ([]RawArticle, error) {
	var cfg FeedConfig
	if err := decodeParserConfig(source, &cfg); err != nil {
		return nil, err
	}
	maxArticles := cfg.MaxArticles
	if maxArticles <= 0 {
		maxArticles = defaultMaxArticles
	}

	return a.fetchFeed(ctx, source, source.URL, maxArticles, true)
}

// fetchFeed downloads and parses one feed URL. Feed-level failures are
// fatal; per-entry failures skip the entry.
func (a *FeedAdapter) fetchFeed(ctx context.Context, source db.Source, feedURL string, maxArticles int, fullText bool) ([]RawArticle, error) {
	body, _, err := a.client.Get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	feed, err := a.parser.ParseString(string(body))
	if err != nil {
		return nil, collecterr.Wrap(collecterr.KindParse, fmt.Errorf("parse feed %s: %w", feedURL, err))
	}

	articles := make([]RawArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		if len(articles) >= maxArticles {
			break
		}
		if ctx.Err() != nil {
			break
		}

		article, ok := a.processEntry(ctx, source, feedURL, item, fullText)
		if !ok {
			continue
		}
		articles = append(articles, article)
		politePause(ctx)
	}
	return articles, nil
}

func (a *FeedAdapter) processEntry(ctx context.Context, source db.Source, feedURL string, item *gofeed.Item, fullText bool) (RawArticle, bool) {
	if item == nil {
		return RawArticle{}, false
	}

	link := resolveLink(feedURL, item.Link)
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return RawArticle{}, false
	}

	var bodyText, bodyMarkdown string
	if fullText {
		if text, err := a.client.fetchFullText(ctx, link); err == nil {
			bodyText = text
			bodyMarkdown = text
		}
	}
	if bodyText == "" {
		if clean := summaryFallback(firstNonEmpty(item.Content, item.Description)); clean != "" {
			bodyText = clean
			bodyMarkdown = clean
		}
	}

	metadata := map[string]any{}
	if item.Description != "" {
		metadata["feed_summary"] = item.Description
	}
	if len(item.Categories) > 0 {
		metadata["feed_tags"] = item.Categories
	}

	var author string
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		author = strings.TrimSpace(item.Authors[0].Name)
	}

	return RawArticle{
		SourceID:     source.SourceID,
		SourceName:   source.Name,
		URL:          link,
		Title:        title,
		BodyText:     bodyText,
		BodyMarkdown: bodyMarkdown,
		Author:       author,
		Language:     sourceLanguage(source),
		PublishedAt:  entryTimestamp(item),
		Metadata:     metadata,
	}, true
}

// entryTimestamp picks the entry's declared publication time, preferring
// published over updated, with a loose-format fallback.
func entryTimestamp(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		utc := item.PublishedParsed.UTC()
		return &utc
	}
	if item.UpdatedParsed != nil {
		utc := item.UpdatedParsed.UTC()
		return &utc
	}
	for _, raw := range []string{item.Published, item.Updated} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if ts, err := dateparse.ParseAny(raw); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

func resolveLink(base, link string) string {
	trimmed := strings.TrimSpace(link)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	if parsed.IsAbs() {
		return trimmed
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(parsed).String()
}

func sourceLanguage(source db.Source) string {
	if source.Language == nil {
		return ""
	}
	return strings.TrimSpace(*source.Language)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
