// Package textnorm normalizes scraped article text before fingerprinting
// and storage. The pipeline is deterministic: identical input always yields
// identical output.
package textnorm

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	blockTagPattern   = regexp.MustCompile(`(?i)</?(p|div|br|li|h[1-6]|tr|blockquote)[^>]*>`)
	spaceRunPattern   = regexp.MustCompile(`[ \t\r\f]+`)
	newlineRunPattern = regexp.MustCompile(`\n{3,}`)
)

// Full-width CJK punctuation folded to ASCII equivalents. NFKC handles
// full-width Latin forms but leaves these untouched.
var punctFold = strings.NewReplacer(
	"，", ",",
	"。", ".",
	"！", "!",
	"？", "?",
	"：", ":",
	"；", ";",
	"（", "(",
	"）", ")",
	"【", "[",
	"】", "]",
	"「", "\"",
	"」", "\"",
	"『", "\"",
	"』", "\"",
	"、", ",",
	"〜", "~",
)

// Text runs the full normalization pipeline over body content:
// HTML unescape, tag strip (block-level tags become paragraph breaks),
// whitespace collapse, Unicode NFKC, and full-width punctuation folding.
// Returns "" when nothing survives.
func Text(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	text := blockTagPattern.ReplaceAllString(raw, "\n")
	text = tagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)

	text = spaceRunPattern.ReplaceAllString(text, " ")
	text = newlineRunPattern.ReplaceAllString(text, "\n\n")

	text = norm.NFKC.String(text)
	text = punctFold.Replace(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	return strings.TrimSpace(text)
}

// Title normalizes an article title and strips a trailing source-name
// suffix ("Rates surge | The Loadstar" -> "Rates surge") when the suffix
// equals the known source name.
func Title(raw, sourceName string) string {
	title := Text(raw)
	if title == "" {
		return ""
	}
	title = strings.Join(strings.Fields(title), " ")

	source := strings.TrimSpace(sourceName)
	if source == "" {
		return title
	}

	for _, sep := range []string{" | ", " - ", " – ", " — "} {
		idx := strings.LastIndex(title, sep)
		if idx <= 0 {
			continue
		}
		suffix := strings.TrimSpace(title[idx+len(sep):])
		if strings.EqualFold(suffix, source) {
			return strings.TrimSpace(title[:idx])
		}
	}
	return title
}
