// Package fingerprint produces the identity signals used by the
// deduplication cascade: canonical URLs, title SimHashes, and content
// MinHash signatures with an LSH candidate index.
package fingerprint

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Query parameters that never change page identity.
var trackingParams = map[string]struct{}{
	"fbclid":      {},
	"gclid":       {},
	"dclid":       {},
	"msclkid":     {},
	"mc_cid":      {},
	"mc_eid":      {},
	"igshid":      {},
	"ref":         {},
	"ref_src":     {},
	"spm":         {},
	"_hsenc":      {},
	"_hsmi":       {},
	"cmpid":       {},
	"ncid":        {},
	"sr_share":    {},
	"session_id":  {},
	"campaign_id": {},
}

// CanonicalURL normalizes a URL to the form used as the article's unique
// external identity. The operation is idempotent.
func CanonicalURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("url is empty")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	// Strip default ports.
	if host, port, found := strings.Cut(parsed.Host, ":"); found {
		if (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443") {
			parsed.Host = host
		}
	}

	// Drop tracking parameters, sort the remainder lexically.
	query := parsed.Query()
	kept := url.Values{}
	for key, values := range query {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			continue
		}
		if _, blocked := trackingParams[lower]; blocked {
			continue
		}
		for _, v := range values {
			kept.Add(key, v)
		}
	}
	if len(kept) == 0 {
		parsed.RawQuery = ""
	} else {
		parsed.RawQuery = encodeSorted(kept)
	}

	if len(parsed.Path) > 1 {
		parsed.Path = strings.TrimRight(parsed.Path, "/")
	}
	parsed.RawPath = ""

	return parsed.String(), nil
}

func encodeSorted(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		vs := append([]string(nil), values[key]...)
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Domain returns the lowercased host name of a URL with any "www." prefix
// removed; other subdomains are kept. Used for discovery dedup and
// blocklisting.
func Domain(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	return host
}
