package enrich

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"loadsignal.dev/collector/internal/collecterr"
)

// Analysis is the validated, normalized structured output of one LLM call.
type Analysis struct {
	SummaryEN       string              `json:"summary_en"`
	SummaryZH       string              `json:"summary_zh"`
	TransportModes  []string            `json:"transport_modes"`
	PrimaryTopic    string              `json:"primary_topic"`
	SecondaryTopics []string            `json:"secondary_topics"`
	ContentType     string              `json:"content_type"`
	Regions         []string            `json:"regions"`
	Entities        map[string][]string `json:"entities"`
	Sentiment       string              `json:"sentiment"`
	MarketImpact    string              `json:"market_impact"`
	Urgency         string              `json:"urgency"`
	KeyMetrics      []KeyMetric         `json:"key_metrics"`
}

// KeyMetric is one numeric data point lifted from the article.
type KeyMetric struct {
	Metric  string `json:"metric"`
	Value   string `json:"value"`
	Unit    string `json:"unit"`
	Context string `json:"context"`
}

var (
	sentimentValues    = enumSet("positive", "negative", "neutral", "mixed")
	marketImpactValues = enumSet("high", "medium", "low", "none")
	urgencyValues      = enumSet("breaking", "high", "medium", "low")
	contentTypeValues  = enumSet("news", "analysis", "opinion", "press_release", "market_data")
	transportValues    = enumSet("ocean", "air", "rail", "road", "multimodal")

	entityCategories = []string{"companies", "ports", "people", "organizations"}
)

func enumSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// The schema only gates structure and the mandatory fields; enum folding
// and set normalization happen afterwards so near-miss casing is accepted.
const analysisSchemaJSON = `{
  "type": "object",
  "required": ["summary_en", "summary_zh", "sentiment", "urgency"],
  "properties": {
    "summary_en": {"type": "string", "minLength": 1},
    "summary_zh": {"type": "string", "minLength": 1},
    "transport_modes": {"type": "array", "items": {"type": "string"}},
    "primary_topic": {"type": "string"},
    "secondary_topics": {"type": "array", "items": {"type": "string"}},
    "content_type": {"type": "string"},
    "regions": {"type": "array", "items": {"type": "string"}},
    "entities": {"type": "object"},
    "sentiment": {"type": "string"},
    "market_impact": {"type": "string"},
    "urgency": {"type": "string"},
    "key_metrics": {"type": "array", "items": {"type": "object"}}
  }
}`

var analysisSchema = jsonschema.MustCompileString("analysis.json", analysisSchemaJSON)

// unfenceJSON tolerates surrounding whitespace and a single fenced code
// block wrapper; anything else around the JSON object is rejected. This is
// a narrow allow-list, not a general markdown unwrap.
func unfenceJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", collecterr.Wrapf(collecterr.KindValidation, "llm response is empty")
	}

	if strings.HasPrefix(text, "```") {
		newline := strings.IndexByte(text, '\n')
		if newline < 0 {
			return "", collecterr.Wrapf(collecterr.KindValidation, "llm response is a bare code fence")
		}
		text = text[newline+1:]
		text = strings.TrimSpace(text)
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}

	if !strings.HasPrefix(text, "{") || !strings.HasSuffix(text, "}") {
		return "", collecterr.Wrapf(collecterr.KindValidation, "llm response is not a bare JSON object")
	}
	return text, nil
}

// ParseAnalysis validates and normalizes a raw LLM response into an
// Analysis. Missing mandatory fields and unknown enum members for the
// mandatory enums are validation errors.
func ParseAnalysis(raw string) (Analysis, error) {
	text, err := unfenceJSON(raw)
	if err != nil {
		return Analysis{}, err
	}

	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return Analysis{}, collecterr.Wrap(collecterr.KindValidation, fmt.Errorf("llm response is not valid JSON: %w", err))
	}
	if err := analysisSchema.Validate(decoded); err != nil {
		return Analysis{}, collecterr.Wrap(collecterr.KindValidation, fmt.Errorf("llm response schema: %w", err))
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return Analysis{}, collecterr.Wrap(collecterr.KindValidation, fmt.Errorf("decode llm response: %w", err))
	}

	analysis.Sentiment = strings.ToLower(strings.TrimSpace(analysis.Sentiment))
	if _, ok := sentimentValues[analysis.Sentiment]; !ok {
		return Analysis{}, collecterr.Wrapf(collecterr.KindValidation, "sentiment %q is not a known value", analysis.Sentiment)
	}
	analysis.Urgency = strings.ToLower(strings.TrimSpace(analysis.Urgency))
	if _, ok := urgencyValues[analysis.Urgency]; !ok {
		return Analysis{}, collecterr.Wrapf(collecterr.KindValidation, "urgency %q is not a known value", analysis.Urgency)
	}
	if strings.TrimSpace(analysis.SummaryEN) == "" || strings.TrimSpace(analysis.SummaryZH) == "" {
		return Analysis{}, collecterr.Wrapf(collecterr.KindValidation, "summaries must be non-empty")
	}

	// Optional enums drop to empty rather than failing the article.
	analysis.MarketImpact = keepIfMember(analysis.MarketImpact, marketImpactValues)
	analysis.ContentType = keepIfMember(analysis.ContentType, contentTypeValues)

	analysis.TransportModes = normalizeSet(analysis.TransportModes, transportValues)
	analysis.SecondaryTopics = normalizeSet(analysis.SecondaryTopics, nil)
	analysis.Regions = dedupeStrings(analysis.Regions)
	analysis.PrimaryTopic = strings.ToLower(strings.TrimSpace(analysis.PrimaryTopic))

	analysis.Entities = normalizeEntities(analysis.Entities)
	analysis.KeyMetrics = normalizeMetrics(analysis.KeyMetrics)

	return analysis, nil
}

func keepIfMember(value string, allowed map[string]struct{}) string {
	folded := strings.ToLower(strings.TrimSpace(value))
	if _, ok := allowed[folded]; ok {
		return folded
	}
	return ""
}

// normalizeSet lowercases, trims, and dedupes while preserving order. A
// non-nil allowed set drops unknown members.
func normalizeSet(values []string, allowed map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		folded := strings.ToLower(strings.TrimSpace(v))
		if folded == "" {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[folded]; !ok {
				continue
			}
		}
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		out = append(out, folded)
	}
	return out
}

// dedupeStrings trims and dedupes case-insensitively but keeps the
// original casing (region names are proper nouns).
func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func normalizeEntities(entities map[string][]string) map[string][]string {
	out := make(map[string][]string, len(entityCategories))
	for _, category := range entityCategories {
		out[category] = dedupeStrings(entities[category])
	}
	return out
}

func normalizeMetrics(metrics []KeyMetric) []KeyMetric {
	out := make([]KeyMetric, 0, len(metrics))
	for _, m := range metrics {
		if strings.TrimSpace(m.Metric) == "" || strings.TrimSpace(m.Value) == "" {
			continue
		}
		out = append(out, KeyMetric{
			Metric:  strings.TrimSpace(m.Metric),
			Value:   strings.TrimSpace(m.Value),
			Unit:    strings.TrimSpace(m.Unit),
			Context: strings.TrimSpace(m.Context),
		})
	}
	return out
}
