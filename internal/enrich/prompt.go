package enrich

import "fmt"

// PromptVersion identifies the analysis template. Bump when the schema or
// instructions change so downstream consumers can segment results.
const PromptVersion = "v1"

// maxPromptBodyChars bounds the article body included in the prompt.
const maxPromptBodyChars = 8000

const analysisSystemPrompt = `You are a logistics and supply chain news analyst. Your task is to analyze news articles and extract structured metadata. You handle articles in any language, including English and Chinese.

You MUST respond with a single valid JSON object and nothing else — no markdown fences, no commentary, no extra text. The JSON must conform exactly to the schema described in the user message.`

const analysisUserTemplate = `Analyze the following logistics/shipping news article and return a JSON object with the extracted fields.

=== ARTICLE ===
Title: %s

Body:
%s
=== END ARTICLE ===

Return a JSON object with these fields:

1. "summary_en" (string): A concise 2-3 sentence summary in English. If the article is in another language, translate the summary to English.

2. "summary_zh" (string): A concise 2-3 sentence summary in Chinese. If the article is in another language, translate the summary to Chinese.

3. "transport_modes" (array of strings): Transport modes discussed. Choose from: "ocean", "air", "rail", "road", "multimodal". Empty array if none apply.

4. "primary_topic" (string): The single most relevant topic. Choose from: "freight_rates", "port_operations", "supply_chain_disruption", "trade_policy", "carrier_news", "technology", "sustainability", "labor", "mergers_acquisitions", "capacity", "regulation", "infrastructure", "ecommerce_logistics", "last_mile", "warehousing", "cold_chain", "dangerous_goods", "customs", "market_outlook", "other".

5. "secondary_topics" (array of strings): Additional relevant topics from the same list. Empty array if only one topic applies.

6. "content_type" (string): One of "news", "analysis", "opinion", "press_release", "market_data".

7. "regions" (array of strings): Geographic regions mentioned or relevant, such as "Asia", "Europe", "North America", "Southeast Asia", "Mediterranean", plus prominently featured country names. Empty array when no specific region is discussed.

8. "entities" (object): Named entities with keys "companies", "ports", "people", "organizations", each an array of strings. Empty arrays for categories with no entities.

9. "sentiment" (string): One of "positive", "negative", "neutral", "mixed".

10. "market_impact" (string): One of "high", "medium", "low", "none".

11. "urgency" (string): One of "breaking", "high", "medium", "low".

12. "key_metrics" (array of objects): Numerical data points from the article. Each object has "metric", "value", "unit", "context" (all strings). Empty array when none are found.

Respond ONLY with the JSON object. No extra text.`

// buildAnalysisPrompt renders the user message for one article, truncating
// the body to stay inside the context window.
func buildAnalysisPrompt(title, bodyText string) string {
	body := bodyText
	if len(body) > maxPromptBodyChars {
		body = body[:maxPromptBodyChars]
	}
	return fmt.Sprintf(analysisUserTemplate, title, body)
}
