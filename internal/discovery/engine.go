// Package discovery finds, validates, and promotes new source candidates.
// The scan phase searches the web and crawls seed pages for unknown news
// domains; the validate phase trial-fetches candidates and scores them.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"loadsignal.dev/collector/internal/adapter"
	"loadsignal.dev/collector/internal/db"
	"loadsignal.dev/collector/internal/fingerprint"
	"loadsignal.dev/collector/internal/sourcecfg"
)

const (
	searchResultsPerQuery = 10
	queriesPerLanguage    = 5
	searchPause           = 2 * time.Second
)

// Domains that are never news sources: search engines, social platforms,
// marketplaces.
var blockedDomains = []string{
	"google.com", "bing.com", "yahoo.com", "baidu.com", "duckduckgo.com",
	"facebook.com", "twitter.com", "x.com", "instagram.com",
	"linkedin.com", "youtube.com", "tiktok.com", "reddit.com",
	"wikipedia.org", "amazon.com", "ebay.com", "alibaba.com",
	"github.com", "stackoverflow.com",
}

func isBlockedDomain(rawURL string) bool {
	domain := fingerprint.Domain(rawURL)
	if domain == "" {
		return true
	}
	for _, blocked := range blockedDomains {
		if domain == blocked || strings.HasSuffix(domain, "."+blocked) {
			return true
		}
	}
	return false
}

// rawCandidate is a scan result before persistence.
type rawCandidate struct {
	URL           string
	Name          string
	Language      string
	Categories    []string
	DiscoveredVia string
	Query         string
}

// Engine generates SourceCandidate rows from web search and seed crawls.
type Engine struct {
	pool   *db.Pool
	client *adapter.Client
	seeds  sourcecfg.Seeds
	logger zerolog.Logger

	searchAPIKey   string
	searchEngineID string
	maxCandidates  int
}

func NewEngine(pool *db.Pool, seeds sourcecfg.Seeds, searchAPIKey, searchEngineID string, maxCandidates int, logger zerolog.Logger) *Engine {
	if maxCandidates < 1 {
		maxCandidates = 50
	}
	return &Engine{
		pool:           pool,
		client:         adapter.NewClient(20 * time.Second),
		seeds:          seeds,
		logger:         logger.With().Str("component", "discovery").Logger(),
		searchAPIKey:   strings.TrimSpace(searchAPIKey),
		searchEngineID: strings.TrimSpace(searchEngineID),
		maxCandidates:  maxCandidates,
	}
}

// ScanResult summarizes one scan run.
type ScanResult struct {
	RawResults int `json:"raw_results"`
	Saved      int `json:"saved"`
}

// Scan runs the full discovery pipeline: search + seed crawl, domain
// dedup, blocklist filter, persist new candidates as `discovered`.
func (e *Engine) Scan(ctx context.Context) (ScanResult, error) {
	knownDomains, err := e.loadKnownDomains(ctx)
	if err != nil {
		return ScanResult{}, err
	}

	var raw []rawCandidate
	if e.searchAPIKey != "" && e.searchEngineID != "" {
		raw = append(raw, e.searchViaCustomSearch(ctx)...)
	} else {
		raw = append(raw, e.searchViaDuckDuckGo(ctx)...)
	}
	raw = append(raw, e.expandSeedURLs(ctx)...)

	seen := make(map[string]struct{})
	var unique []rawCandidate
	for _, candidate := range raw {
		domain := fingerprint.Domain(candidate.URL)
		if domain == "" {
			continue
		}
		if _, known := knownDomains[domain]; known {
			continue
		}
		if _, dup := seen[domain]; dup {
			continue
		}
		seen[domain] = struct{}{}
		unique = append(unique, candidate)
		if len(unique) >= e.maxCandidates {
			break
		}
	}

	saved := 0
	for _, candidate := range unique {
		if ctx.Err() != nil {
			break
		}
		inserted, err := e.saveCandidate(ctx, candidate)
		if err != nil {
			e.logger.Warn().Err(err).Str("url", candidate.URL).Msg("saving candidate failed")
			continue
		}
		if inserted {
			saved++
		}
	}

	result := ScanResult{RawResults: len(raw), Saved: saved}
	e.logger.Info().Int("raw", result.RawResults).Int("saved", result.Saved).Msg("discovery scan complete")
	return result, nil
}

func (e *Engine) loadKnownDomains(ctx context.Context) (map[string]struct{}, error) {
	sourceURLs, candidateURLs, err := e.pool.KnownCandidateURLs(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(sourceURLs)+len(candidateURLs))
	for _, u := range sourceURLs {
		if domain := fingerprint.Domain(u); domain != "" {
			known[domain] = struct{}{}
		}
	}
	for _, u := range candidateURLs {
		if domain := fingerprint.Domain(u); domain != "" {
			known[domain] = struct{}{}
		}
	}
	return known, nil
}

// searchViaDuckDuckGo queries the cost-free HTML endpoint and scrapes the
// result links.
func (e *Engine) searchViaDuckDuckGo(ctx context.Context) []rawCandidate {
	var candidates []rawCandidate
	for lang, queries := range e.seeds.SearchQueries {
		limit := min(len(queries), queriesPerLanguage)
		for _, query := range queries[:limit] {
			if ctx.Err() != nil {
				return candidates
			}
			results, err := e.duckDuckGoSearch(ctx, query)
			if err != nil {
				e.logger.Warn().Err(err).Str("query", query).Msg("web search failed")
			}
			for _, result := range results {
				if isBlockedDomain(result.URL) {
					continue
				}
				result.DiscoveredVia = "web_search"
				result.Query = query
				result.Language = lang
				candidates = append(candidates, result)
			}
			pause(ctx, searchPause)
		}
	}
	e.logger.Info().Int("results", len(candidates)).Msg("web search finished")
	return candidates
}

func (e *Engine) duckDuckGoSearch(ctx context.Context, query string) ([]rawCandidate, error) {
	endpoint := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)
	body, _, err := e.client.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}

	var results []rawCandidate
	doc.Find("a.result__a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		siteURL := siteRootOf(resolveResultHref(href))
		if siteURL == "" {
			return true
		}
		results = append(results, rawCandidate{
			URL:  siteURL,
			Name: truncate(strings.TrimSpace(sel.Text()), 200),
		})
		return len(results) < searchResultsPerQuery
	})
	return results, nil
}

// resolveResultHref unwraps DuckDuckGo's redirect links (/l/?uddg=<url>).
func resolveResultHref(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	if parsed.IsAbs() {
		return href
	}
	return ""
}

// searchViaCustomSearch uses the configured Google Custom Search API.
func (e *Engine) searchViaCustomSearch(ctx context.Context) []rawCandidate {
	var candidates []rawCandidate
	for lang, queries := range e.seeds.SearchQueries {
		limit := min(len(queries), queriesPerLanguage)
		for _, query := range queries[:limit] {
			if ctx.Err() != nil {
				return candidates
			}
			endpoint := fmt.Sprintf(
				"https://www.googleapis.com/customsearch/v1?key=%s&cx=%s&q=%s&num=%d&lr=lang_%s",
				url.QueryEscape(e.searchAPIKey),
				url.QueryEscape(e.searchEngineID),
				url.QueryEscape(query),
				searchResultsPerQuery,
				url.QueryEscape(lang),
			)
			body, _, err := e.client.Get(ctx, endpoint)
			if err != nil {
				e.logger.Warn().Err(err).Str("query", query).Msg("custom search failed")
				pause(ctx, time.Second)
				continue
			}

			var response struct {
				Items []struct {
					Link  string `json:"link"`
					Title string `json:"title"`
				} `json:"items"`
			}
			if err := json.Unmarshal(body, &response); err != nil {
				e.logger.Warn().Err(err).Str("query", query).Msg("custom search decode failed")
				continue
			}
			for _, item := range response.Items {
				siteURL := siteRootOf(item.Link)
				if siteURL == "" || isBlockedDomain(siteURL) {
					continue
				}
				candidates = append(candidates, rawCandidate{
					URL:           siteURL,
					Name:          truncate(item.Title, 200),
					Language:      lang,
					DiscoveredVia: "web_search",
					Query:         query,
				})
			}
			pause(ctx, time.Second)
		}
	}
	return candidates
}

// expandSeedURLs crawls configured industry pages for outbound links to
// other domains.
func (e *Engine) expandSeedURLs(ctx context.Context) []rawCandidate {
	var candidates []rawCandidate
	for _, seed := range e.seeds.SeedURLs {
		if ctx.Err() != nil {
			break
		}
		found, err := e.crawlForOutbound(ctx, seed)
		if err != nil {
			e.logger.Warn().Err(err).Str("seed", seed.URL).Msg("seed crawl failed")
			continue
		}
		candidates = append(candidates, found...)
	}
	return candidates
}

func (e *Engine) crawlForOutbound(ctx context.Context, seed sourcecfg.SeedURL) ([]rawCandidate, error) {
	body, _, err := e.client.Get(ctx, seed.URL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse seed page: %w", err)
	}

	seedDomain := fingerprint.Domain(seed.URL)
	seen := make(map[string]struct{})
	var candidates []rawCandidate

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		absolute := absoluteURL(seed.URL, href)
		if absolute == "" {
			return
		}
		domain := fingerprint.Domain(absolute)
		if domain == "" || domain == seedDomain {
			return
		}
		if _, dup := seen[domain]; dup {
			return
		}
		if isBlockedDomain(absolute) {
			return
		}
		seen[domain] = struct{}{}

		name := truncate(strings.TrimSpace(sel.Text()), 200)
		if name == "" {
			name = domain
		}
		candidates = append(candidates, rawCandidate{
			URL:           siteRootOf(absolute),
			Name:          name,
			Language:      seed.Language,
			Categories:    seed.Categories,
			DiscoveredVia: "seed_expansion",
			Query:         "outbound from " + seed.URL,
		})
	})
	return candidates, nil
}

func (e *Engine) saveCandidate(ctx context.Context, candidate rawCandidate) (bool, error) {
	now := time.Now().UTC()
	row := &db.SourceCandidate{
		ID:        uuid.NewString(),
		URL:       candidate.URL,
		Status:    "discovered",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if candidate.Name != "" {
		name := candidate.Name
		row.Name = &name
	}
	if candidate.Language != "" {
		lang := candidate.Language
		row.Language = &lang
	}
	if len(candidate.Categories) > 0 {
		row.Categories = candidate.Categories
	}
	if candidate.DiscoveredVia != "" {
		via := candidate.DiscoveredVia
		row.DiscoveredVia = &via
	}
	if candidate.Query != "" {
		query := candidate.Query
		row.DiscoveryQuery = &query
	}
	return e.pool.CreateCandidateIfAbsent(ctx, row)
}

func siteRootOf(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	if !strings.HasPrefix(parsed.Scheme, "http") {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

func absoluteURL(base, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(ref)
	if !strings.HasPrefix(resolved.Scheme, "http") {
		return ""
	}
	resolved.Fragment = ""
	resolved.RawQuery = ""
	return resolved.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func pause(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
