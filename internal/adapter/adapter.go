// Package adapter converts configured sources into streams of RawArticle
// records. Adapters are pure producers: they never touch the store.
package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"loadsignal.dev/collector/internal/collecterr"
	"loadsignal.dev/collector/internal/db"
)

const (
	// DefaultDeadline bounds one complete adapter fetch.
	DefaultDeadline = 60 * time.Second

	userAgent = "LoadsignalCollector/1.0 (+https://loadsignal.dev; news aggregation bot)"

	defaultBodyByteLimit = 2 * 1024 * 1024
	fetchDelay           = 500 * time.Millisecond
	defaultMaxArticles   = 20
)

// RawArticle is the adapter output contract, shared by all four shapes.
type RawArticle struct {
	SourceID     string
	SourceName   string
	URL          string
	Title        string
	BodyText     string
	BodyMarkdown string
	Author       string
	Language     string
	PublishedAt  *time.Time
	Metadata     map[string]any
}

// Adapter fetches new articles for one source. A nil error with zero
// articles means the source genuinely had nothing new; partial results
// travel alongside a non-nil error.
type Adapter interface {
	Fetch(ctx context.Context, source db.Source) ([]RawArticle, error)
}

// Client wraps the shared HTTP behavior of every adapter: the bot
// user-agent, redirect following, and a response body cap.
type Client struct {
	http      *http.Client
	bodyLimit int64
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		bodyLimit: defaultBodyByteLimit,
	}
}

// Get fetches a URL and returns the capped body. Non-2xx statuses are
// network errors carrying the status code.
func (c *Client) Get(ctx context.Context, url string) ([]byte, *http.Response, error) {
	return c.get(ctx, url, nil)
}

func (c *Client) get(ctx context.Context, url string, headers map[string]string) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(url), nil)
	if err != nil {
		return nil, nil, collecterr.Wrap(collecterr.KindNetwork, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8,zh;q=0.6")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, collecterr.Wrap(collecterr.KindNetwork, fmt.Errorf("fetch %s: %w", url, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.bodyLimit))
	if err != nil {
		return nil, resp, collecterr.Wrap(collecterr.KindNetwork, fmt.Errorf("read body of %s: %w", url, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, resp, collecterr.Wrapf(collecterr.KindNetwork, "fetch %s: status %d", url, resp.StatusCode)
	}
	return body, resp, nil
}

// politePause sleeps the inter-fetch delay unless the context ends first.
func politePause(ctx context.Context) {
	timer := time.NewTimer(fetchDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// New returns the adapter for a source kind.
func New(kind string, client *Client) (Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "feed", "rss":
		return NewFeedAdapter(client), nil
	case "api":
		return NewAPIAdapter(client), nil
	case "scraper":
		return NewScraperAdapter(client), nil
	case "universal":
		return NewUniversalAdapter(client), nil
	default:
		return nil, collecterr.Wrapf(collecterr.KindConfig, "no adapter for source kind %q", kind)
	}
}
