package adapter

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"

	"loadsignal.dev/collector/internal/collecterr"
	"loadsignal.dev/collector/internal/textnorm"
)

// extractReadable runs readability over fetched HTML and returns the
// cleaned article text. The page URL anchors relative references.
func extractReadable(html []byte, pageURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return "", collecterr.Wrap(collecterr.KindParse, fmt.Errorf("parse page url: %w", err))
	}

	article, err := readability.FromReader(bytes.NewReader(html), parsed)
	if err != nil {
		return "", collecterr.Wrap(collecterr.KindParse, fmt.Errorf("readability parse: %w", err))
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return "", collecterr.Wrap(collecterr.KindParse, fmt.Errorf("render article text: %w", err))
	}

	text := textnorm.Text(rendered.String())
	if text == "" {
		text = textnorm.Text(article.Excerpt())
	}
	if text == "" {
		return "", collecterr.Wrapf(collecterr.KindParse, "extracted empty content from %s", pageURL)
	}
	return text, nil
}

// fetchFullText fetches a page and extracts its readable body text.
func (c *Client) fetchFullText(ctx context.Context, pageURL string) (string, error) {
	body, _, err := c.Get(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return extractReadable(body, pageURL)
}

// summaryFallback strips markup from a feed-provided summary; summaries
// of 50 bytes or fewer carry too little content to index.
func summaryFallback(summary string) string {
	clean := textnorm.Text(summary)
	if len(clean) <= 50 {
		return ""
	}
	return clean
}
