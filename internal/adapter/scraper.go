package adapter

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"loadsignal.dev/collector/internal/collecterr"
	"loadsignal.dev/collector/internal/db"
	"loadsignal.dev/collector/internal/textnorm"
)

// ScraperAdapter discovers article links on an index page with CSS
// selectors, then scrapes each detail page. When the detail selectors do
// not resolve, readability extraction takes over.
type ScraperAdapter struct {
	client *Client
}

func NewScraperAdapter(client *Client) *ScraperAdapter {
	return &ScraperAdapter{client: client}
}

func (a *ScraperAdapter) Fetch(ctx context.Context, source db.Source) ([]RawArticle, error) {
	var cfg ScraperConfig
	if err := decodeParserConfig(source, &cfg); err != nil {
		return nil, err
	}
	if cfg.ListSelector == "" {
		cfg.ListSelector = "a"
	}
	if cfg.MaxArticles <= 0 {
		cfg.MaxArticles = defaultMaxArticles
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = deriveBaseURL(source.URL)
	}

	links, err := a.collectLinks(ctx, source.URL, cfg)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}
	if len(links) > cfg.MaxArticles {
		links = links[:cfg.MaxArticles]
	}

	var (
		articles  []RawArticle
		lastError error
	)
	for _, link := range links {
		if ctx.Err() != nil {
			break
		}
		article, err := a.scrapeArticle(ctx, source, cfg, link.url, link.text)
		if err != nil {
			lastError = err
			continue
		}
		articles = append(articles, article)
		politePause(ctx)
	}

	if len(articles) == 0 && lastError != nil {
		return nil, lastError
	}
	if lastError != nil {
		return articles, collecterr.Wrap(collecterr.KindParse, fmt.Errorf("some articles failed: %w", lastError))
	}
	return articles, nil
}

type scrapedLink struct {
	url  string
	text string
}

func (a *ScraperAdapter) collectLinks(ctx context.Context, indexURL string, cfg ScraperConfig) ([]scrapedLink, error) {
	body, _, err := a.client.Get(ctx, indexURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, collecterr.Wrap(collecterr.KindParse, fmt.Errorf("parse index page %s: %w", indexURL, err))
	}

	seen := make(map[string]struct{})
	var links []scrapedLink

	doc.Find(cfg.ListSelector).Each(func(_ int, sel *goquery.Selection) {
		anchor := sel
		if !sel.Is("a") {
			anchor = sel.Find("a").First()
		}
		href, ok := anchor.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		absolute := resolveAgainst(cfg.BaseURL, href)
		if absolute == "" {
			return
		}
		if _, dup := seen[absolute]; dup {
			return
		}
		seen[absolute] = struct{}{}
		links = append(links, scrapedLink{url: absolute, text: strings.TrimSpace(anchor.Text())})
	})

	return links, nil
}

func (a *ScraperAdapter) scrapeArticle(ctx context.Context, source db.Source, cfg ScraperConfig, pageURL, fallbackTitle string) (RawArticle, error) {
	body, _, err := a.client.Get(ctx, pageURL)
	if err != nil {
		return RawArticle{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return RawArticle{}, collecterr.Wrap(collecterr.KindParse, fmt.Errorf("parse article page %s: %w", pageURL, err))
	}

	title := fallbackTitle
	if cfg.TitleSelector != "" {
		if el := doc.Find(cfg.TitleSelector).First(); el.Length() > 0 {
			title = strings.TrimSpace(el.Text())
		}
	}
	if title == "" {
		return RawArticle{}, collecterr.Wrapf(collecterr.KindParse, "no title for %s", pageURL)
	}

	var bodyText string
	if cfg.BodySelector != "" {
		if el := doc.Find(cfg.BodySelector).First(); el.Length() > 0 {
			bodyText = textnorm.Text(elementHTML(el))
		}
	}
	if bodyText == "" {
		// Detail selectors missing or unresolved: readability fallback.
		extracted, err := extractReadable(body, pageURL)
		if err != nil {
			return RawArticle{}, err
		}
		bodyText = extracted
	}

	return RawArticle{
		SourceID:     source.SourceID,
		SourceName:   source.Name,
		URL:          pageURL,
		Title:        title,
		BodyText:     bodyText,
		BodyMarkdown: bodyText,
		Language:     sourceLanguage(source),
		PublishedAt:  a.extractDate(doc, cfg),
		Metadata:     map[string]any{"scraper": true, "list_selector": cfg.ListSelector},
	}, nil
}

func (a *ScraperAdapter) extractDate(doc *goquery.Document, cfg ScraperConfig) *time.Time {
	if cfg.DateSelector == "" {
		return nil
	}
	el := doc.Find(cfg.DateSelector).First()
	if el.Length() == 0 {
		return nil
	}

	raw, ok := el.Attr("datetime")
	if !ok || strings.TrimSpace(raw) == "" {
		raw = el.Text()
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if cfg.DateFormat != "" {
		if ts, err := time.Parse(cfg.DateFormat, raw); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	if ts, err := dateparse.ParseAny(raw); err == nil {
		utc := ts.UTC()
		return &utc
	}
	return nil
}

func elementHTML(sel *goquery.Selection) string {
	html, err := goquery.OuterHtml(sel)
	if err != nil {
		return sel.Text()
	}
	return html
}

func deriveBaseURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return raw
	}
	return parsed.Scheme + "://" + parsed.Host
}

func resolveAgainst(base, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		ref.Fragment = ""
		return ref.String()
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String()
}
