package adapter

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"loadsignal.dev/collector/internal/collecterr"
	"loadsignal.dev/collector/internal/db"
)

// Common feed paths probed when autodiscovery finds nothing in the HTML.
var commonFeedPaths = []string{
	"/feed",
	"/rss",
	"/atom.xml",
	"/feed.xml",
	"/rss.xml",
	"/index.xml",
	"/feeds/posts/default",
}

var (
	nonArticleSegments = regexp.MustCompile(`(?i)/(tag|category|categories|author|page|search|login|signup|register|contact|about|privacy|terms|faq|help|archive|archives|wp-content|wp-admin|cdn-cgi|static|assets|images|img|css|js|fonts)(/|$)`)
	nonArticleExt      = regexp.MustCompile(`(?i)\.(png|jpg|jpeg|gif|svg|webp|ico|css|js|woff2?|ttf|eot|pdf|zip|gz|mp[34]|mov)(\?|$)`)
	yearSegment        = regexp.MustCompile(`/\d{4}/`)
	hyphenSlug         = regexp.MustCompile(`(?i)/[a-z0-9]+-[a-z0-9]+-`)
	numericID          = regexp.MustCompile(`/\d{3,}`)
)

// UniversalAdapter is the zero-config fallback for unknown sites. It
// cascades feed autodiscovery, a feed-URL page scan, and heuristic link
// extraction, returning on the first strategy that yields articles.
type UniversalAdapter struct {
	client *Client
	feed   *FeedAdapter
}

func NewUniversalAdapter(client *Client) *UniversalAdapter {
	return &UniversalAdapter{
		client: client,
		feed:   NewFeedAdapter(client),
	}
}

func (a *UniversalAdapter) Fetch(ctx context.Context, source db.Source) ([]RawArticle, error) {
	var cfg UniversalConfig
	if err := decodeParserConfig(source, &cfg); err != nil {
		return nil, err
	}
	maxArticles := cfg.MaxArticles
	if maxArticles <= 0 {
		maxArticles = defaultMaxArticles
	}

	pageBody, _, fetchErr := a.client.Get(ctx, source.URL)

	// Strategy 1: feed autodiscovery from <link> tags and common paths.
	if fetchErr == nil {
		if feedURL := a.discoverFeedFromHTML(pageBody, source.URL); feedURL != "" {
			if articles, err := a.feed.fetchFeed(ctx, source, feedURL, maxArticles, true); err == nil && len(articles) > 0 {
				tagStrategy(articles, "feed_autodiscovery")
				return articles, nil
			}
		}
	}
	if feedURL := a.probeCommonFeedPaths(ctx, source.URL); feedURL != "" {
		if articles, err := a.feed.fetchFeed(ctx, source, feedURL, maxArticles, true); err == nil && len(articles) > 0 {
			tagStrategy(articles, "feed_autodiscovery")
			return articles, nil
		}
	}

	// Strategy 2: scan the page body for anything that looks like a feed URL.
	if fetchErr == nil {
		for _, feedURL := range a.scanPageForFeedURLs(pageBody, source.URL) {
			if articles, err := a.feed.fetchFeed(ctx, source, feedURL, maxArticles, true); err == nil && len(articles) > 0 {
				tagStrategy(articles, "feed_scan")
				return articles, nil
			}
		}
	}

	// Strategy 3: heuristic link extraction from the landing page.
	if fetchErr != nil {
		return nil, fetchErr
	}
	articles, err := a.extractFromPage(ctx, source, pageBody, maxArticles)
	if err != nil {
		return nil, err
	}
	tagStrategy(articles, "page_extraction")
	return articles, nil
}

// DiscoverFeed exposes the strategy 1+2 probing for discovery validation:
// it returns a working feed URL for the site, or "".
func (a *UniversalAdapter) DiscoverFeed(ctx context.Context, siteURL string) string {
	if body, _, err := a.client.Get(ctx, siteURL); err == nil {
		if feedURL := a.discoverFeedFromHTML(body, siteURL); feedURL != "" {
			if a.isValidFeed(ctx, feedURL) {
				return feedURL
			}
		}
		for _, feedURL := range a.scanPageForFeedURLs(body, siteURL) {
			if a.isValidFeed(ctx, feedURL) {
				return feedURL
			}
		}
	}
	return a.probeCommonFeedPaths(ctx, siteURL)
}

func (a *UniversalAdapter) discoverFeedFromHTML(body []byte, pageURL string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var feedURL string
	doc.Find(`link[rel="alternate"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		linkType, _ := sel.Attr("type")
		switch strings.ToLower(strings.TrimSpace(linkType)) {
		case "application/rss+xml", "application/atom+xml", "application/rdf+xml":
			if href, ok := sel.Attr("href"); ok && strings.TrimSpace(href) != "" {
				feedURL = resolveAgainst(pageURL, href)
				return false
			}
		}
		return true
	})
	return feedURL
}

func (a *UniversalAdapter) probeCommonFeedPaths(ctx context.Context, siteURL string) string {
	base := deriveBaseURL(siteURL)
	for _, path := range commonFeedPaths {
		if ctx.Err() != nil {
			return ""
		}
		candidate := base + path
		if a.isValidFeed(ctx, candidate) {
			return candidate
		}
	}
	return ""
}

// isValidFeed checks that a URL responds with RSS/Atom-looking content.
func (a *UniversalAdapter) isValidFeed(ctx context.Context, feedURL string) bool {
	body, _, err := a.client.Get(ctx, feedURL)
	if err != nil {
		return false
	}
	head := string(body[:min(len(body), 2000)])
	return strings.Contains(head, "<rss") || strings.Contains(head, "<feed") || strings.Contains(strings.ToLower(head), "<rdf")
}

// scanPageForFeedURLs collects hrefs whose shape suggests a feed.
func (a *UniversalAdapter) scanPageForFeedURLs(body []byte, pageURL string) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var found []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		lower := strings.ToLower(href)
		if !strings.Contains(lower, "feed") && !strings.Contains(lower, "rss") && !strings.HasSuffix(lower, ".xml") {
			return
		}
		absolute := resolveAgainst(pageURL, href)
		if absolute == "" {
			return
		}
		if _, dup := seen[absolute]; dup {
			return
		}
		seen[absolute] = struct{}{}
		found = append(found, absolute)
	})

	if len(found) > 3 {
		found = found[:3]
	}
	return found
}

func (a *UniversalAdapter) extractFromPage(ctx context.Context, source db.Source, body []byte, maxArticles int) ([]RawArticle, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, collecterr.Wrap(collecterr.KindParse, fmt.Errorf("parse landing page %s: %w", source.URL, err))
	}

	baseParsed, err := url.Parse(source.URL)
	if err != nil {
		return nil, collecterr.Wrap(collecterr.KindConfig, fmt.Errorf("parse source url %q: %w", source.URL, err))
	}
	baseDomain := baseParsed.Hostname()

	seen := make(map[string]struct{})
	var candidates []scrapedLink
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		absolute := resolveAgainst(source.URL, href)
		if absolute == "" {
			return
		}
		if _, dup := seen[absolute]; dup {
			return
		}
		seen[absolute] = struct{}{}

		text := strings.TrimSpace(sel.Text())
		if text == "" || !looksLikeArticleURL(absolute, baseDomain) {
			return
		}
		candidates = append(candidates, scrapedLink{url: absolute, text: text})
	})

	if len(candidates) > maxArticles {
		candidates = candidates[:maxArticles]
	}

	var articles []RawArticle
	for _, link := range candidates {
		if ctx.Err() != nil {
			break
		}
		text, err := a.client.fetchFullText(ctx, link.url)
		if err != nil {
			continue
		}
		articles = append(articles, RawArticle{
			SourceID:     source.SourceID,
			SourceName:   source.Name,
			URL:          link.url,
			Title:        link.text,
			BodyText:     text,
			BodyMarkdown: text,
			Language:     sourceLanguage(source),
			Metadata:     map[string]any{},
		})
		politePause(ctx)
	}
	return articles, nil
}

// looksLikeArticleURL filters navigation and asset links from article
// permalinks: same domain, path depth >= 2, and no index-page markers.
func looksLikeArticleURL(raw, baseDomain string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}

	host := parsed.Hostname()
	if !strings.HasSuffix(host, baseDomain) && !strings.Contains(host, baseDomain) {
		return false
	}

	path := parsed.Path
	if path == "" || path == "/" {
		return false
	}
	if nonArticleExt.MatchString(path) || nonArticleSegments.MatchString(path) {
		return false
	}

	segments := 0
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments++
		}
	}
	if segments < 2 {
		return false
	}

	if yearSegment.MatchString(path) || hyphenSlug.MatchString(path) || numericID.MatchString(path) {
		return true
	}
	if strings.HasSuffix(path, ".html") || strings.HasSuffix(path, ".htm") || strings.HasSuffix(path, ".shtml") {
		return true
	}
	return segments >= 2
}

func tagStrategy(articles []RawArticle, strategy string) {
	for i := range articles {
		if articles[i].Metadata == nil {
			articles[i].Metadata = map[string]any{}
		}
		articles[i].Metadata["universal_strategy"] = strategy
	}
}
