package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"loadsignal.dev/collector/internal/adapter"
	"loadsignal.dev/collector/internal/db"
	"loadsignal.dev/collector/internal/sourcecfg"
)

const (
	// ProbeTimeout bounds the synchronous single-URL probe.
	ProbeTimeout = 30 * time.Second

	reachabilityTimeout = 20 * time.Second
	trialSampleLimit    = 5

	qualityWeight   = 0.4
	relevanceWeight = 0.6
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// ValidationResult is the scored outcome of validating one candidate.
type ValidationResult struct {
	CandidateID     string          `json:"candidate_id,omitempty"`
	URL             string          `json:"url"`
	Name            string          `json:"name,omitempty"`
	FeedURL         string          `json:"feed_url,omitempty"`
	Kind            string          `json:"kind"`
	Reachable       bool            `json:"reachable"`
	ArticlesFetched int             `json:"articles_fetched"`
	QualityScore    int             `json:"quality_score"`
	RelevanceScore  int             `json:"relevance_score"`
	CombinedScore   int             `json:"combined_score"`
	AutoApproved    bool            `json:"auto_approved"`
	Samples         []SampleArticle `json:"samples,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// SampleArticle is a trial-fetch preview stored with the candidate.
type SampleArticle struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	BodyPreview string `json:"body_preview"`
	PublishedAt string `json:"published_at,omitempty"`
}

// Validator trial-fetches candidates and scores quality and relevance.
type Validator struct {
	pool      *db.Pool
	client    *adapter.Client
	universal *adapter.UniversalAdapter
	keywords  map[string]sourcecfg.KeywordTiers
	logger    zerolog.Logger

	autoApproveScore int
}

func NewValidator(pool *db.Pool, seeds sourcecfg.Seeds, autoApproveScore int, logger zerolog.Logger) *Validator {
	client := adapter.NewClient(reachabilityTimeout)
	if autoApproveScore <= 0 {
		autoApproveScore = 75
	}
	return &Validator{
		pool:             pool,
		client:           client,
		universal:        adapter.NewUniversalAdapter(client),
		keywords:         seeds.RelevanceKeywords,
		logger:           logger.With().Str("component", "discovery-validator").Logger(),
		autoApproveScore: autoApproveScore,
	}
}

// BatchResult summarizes one validate run.
type BatchResult struct {
	Validated    int `json:"validated"`
	AutoApproved int `json:"auto_approved"`
}

// ValidateBatch claims up to limit discovered candidates and validates
// each in turn.
func (v *Validator) ValidateBatch(ctx context.Context, limit int) (BatchResult, error) {
	candidates, err := v.pool.ClaimCandidatesForValidation(ctx, limit)
	if err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		outcome, err := v.validateOne(ctx, candidate)
		if err != nil {
			v.logger.Warn().Err(err).Str("url", candidate.URL).Msg("validation failed")
			v.saveFailure(ctx, candidate.ID, err)
			result.Validated++
			continue
		}
		result.Validated++
		if outcome.AutoApproved {
			result.AutoApproved++
		}
		pause(ctx, searchPause)
	}

	v.logger.Info().Int("validated", result.Validated).Int("auto_approved", result.AutoApproved).Msg("validation batch complete")
	return result, nil
}

// ValidateCandidate runs the validator on one claimed candidate by id.
func (v *Validator) ValidateCandidate(ctx context.Context, candidateID string) (ValidationResult, error) {
	candidate, err := v.pool.GetCandidate(ctx, candidateID)
	if err != nil {
		return ValidationResult{}, err
	}
	if err := v.pool.UpdateCandidate(ctx, candidateID, map[string]any{"status": "validating"}); err != nil {
		return ValidationResult{}, err
	}
	return v.validateOne(ctx, *candidate)
}

// Probe runs the same validator synchronously against a bare URL without
// touching the store.
func (v *Validator) Probe(ctx context.Context, rawURL, language string) (ValidationResult, error) {
	probeCtx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	candidate := db.SourceCandidate{URL: strings.TrimSpace(rawURL)}
	if language != "" {
		candidate.Language = &language
	}
	return v.inspect(probeCtx, candidate)
}

func (v *Validator) validateOne(ctx context.Context, candidate db.SourceCandidate) (ValidationResult, error) {
	result, err := v.inspect(ctx, candidate)
	if err != nil {
		return ValidationResult{}, err
	}
	result.CandidateID = candidate.ID

	if err := v.persistResult(ctx, candidate, result); err != nil {
		return ValidationResult{}, err
	}
	if result.AutoApproved {
		if _, err := v.promote(ctx, candidate, result); err != nil {
			v.logger.Error().Err(err).Str("url", candidate.URL).Msg("promotion failed")
		}
	}
	return result, nil
}

// inspect performs reachability, feed detection, trial fetch, and scoring
// without persistence.
func (v *Validator) inspect(ctx context.Context, candidate db.SourceCandidate) (ValidationResult, error) {
	result := ValidationResult{URL: candidate.URL, Kind: "universal"}

	reachCtx, cancel := context.WithTimeout(ctx, reachabilityTimeout)
	pageBody, _, err := v.client.Get(reachCtx, candidate.URL)
	cancel()
	if err != nil {
		result.Error = "site unreachable: " + err.Error()
		return result, nil
	}
	result.Reachable = true
	result.Name = extractSiteName(pageBody, candidate.URL)

	if feedURL := v.universal.DiscoverFeed(ctx, candidate.URL); feedURL != "" {
		result.FeedURL = feedURL
		result.Kind = "feed"
	}

	samples := v.trialFetch(ctx, candidate, result)
	result.ArticlesFetched = len(samples)
	if len(samples) == 0 {
		result.QualityScore = 10
		result.CombinedScore = combined(result.QualityScore, 0)
		result.Error = "no articles extracted"
		return result, nil
	}

	for _, sample := range samples[:min(len(samples), trialSampleLimit)] {
		preview := SampleArticle{
			Title:       truncate(sample.Title, 200),
			URL:         sample.URL,
			BodyPreview: truncate(sample.BodyText, 300),
		}
		if sample.PublishedAt != nil {
			preview.PublishedAt = sample.PublishedAt.UTC().Format(time.RFC3339)
		}
		result.Samples = append(result.Samples, preview)
	}

	result.QualityScore = scoreQuality(samples)
	result.RelevanceScore = v.scoreRelevance(samples, candidateLanguage(candidate))
	result.CombinedScore = combined(result.QualityScore, result.RelevanceScore)
	result.AutoApproved = result.CombinedScore >= v.autoApproveScore
	return result, nil
}

func (v *Validator) trialFetch(ctx context.Context, candidate db.SourceCandidate, result ValidationResult) []adapter.RawArticle {
	probeSource := db.Source{
		SourceID: "discovery-probe",
		Name:     result.Name,
		URL:      candidate.URL,
		Kind:     "universal",
		Language: candidate.Language,
	}

	var (
		articles []adapter.RawArticle
		err      error
	)
	if result.FeedURL != "" {
		feedSource := probeSource
		feedSource.Kind = "feed"
		feedSource.URL = result.FeedURL
		articles, err = adapter.NewFeedAdapter(v.client).Fetch(ctx, feedSource)
	} else {
		articles, err = v.universal.Fetch(ctx, probeSource)
	}
	if err != nil && len(articles) == 0 {
		return nil
	}
	if len(articles) > trialSampleLimit {
		articles = articles[:trialSampleLimit]
	}
	return articles
}

// scoreQuality rates article completeness 0-100: non-empty titles (25),
// bodies of at least 200 chars (25), at least three articles (20),
// populated dates (15), canonical-looking (absolute, with a host) URLs (15).
func scoreQuality(articles []adapter.RawArticle) int {
	if len(articles) == 0 {
		return 0
	}

	total := len(articles)
	withTitle, withBody, withDate, withURL := 0, 0, 0, 0
	for _, a := range articles {
		if strings.TrimSpace(a.Title) != "" {
			withTitle++
		}
		if len(a.BodyText) >= 200 {
			withBody++
		}
		if a.PublishedAt != nil {
			withDate++
		}
		if u, err := url.Parse(a.URL); err == nil && u.IsAbs() && u.Host != "" {
			withURL++
		}
	}

	score := 0
	score += int(25 * float64(withTitle) / float64(total))
	score += int(25 * float64(withBody) / float64(total))
	if total >= 3 {
		score += 20
	}
	score += int(15 * float64(withDate) / float64(total))
	score += int(15 * float64(withURL) / float64(total))
	return min(score, 100)
}

// scoreRelevance counts weighted keyword matches (high=3, medium=2,
// low=1) per article, averaged and clamped to 100.
func (v *Validator) scoreRelevance(articles []adapter.RawArticle, language string) int {
	langKey := "en"
	if strings.HasPrefix(strings.ToLower(language), "zh") {
		langKey = "zh"
	}
	tiers, ok := v.keywords[langKey]
	if !ok {
		return 0
	}

	total := 0
	for _, article := range articles {
		text := strings.ToLower(article.Title + " " + article.BodyText)
		score := 0
		for _, kw := range tiers.HighWeight {
			if strings.Contains(text, strings.ToLower(kw)) {
				score += 3
			}
		}
		for _, kw := range tiers.MediumWeight {
			if strings.Contains(text, strings.ToLower(kw)) {
				score += 2
			}
		}
		for _, kw := range tiers.LowWeight {
			if strings.Contains(text, strings.ToLower(kw)) {
				score += 1
			}
		}
		total += min(score*4, 100)
	}

	if len(articles) == 0 {
		return 0
	}
	return min(total/len(articles), 100)
}

func combined(quality, relevance int) int {
	return int(qualityWeight*float64(quality) + relevanceWeight*float64(relevance))
}

func (v *Validator) persistResult(ctx context.Context, candidate db.SourceCandidate, result ValidationResult) error {
	status := "validated"
	if result.AutoApproved {
		status = "approved"
	}

	values := map[string]any{
		"status":           status,
		"kind":             result.Kind,
		"quality_score":    result.QualityScore,
		"relevance_score":  result.RelevanceScore,
		"combined_score":   result.CombinedScore,
		"fetch_success":    result.ArticlesFetched > 0,
		"articles_fetched": result.ArticlesFetched,
		"auto_approved":    result.AutoApproved,
		"validated_at":     time.Now().UTC(),
		"updated_at":       time.Now().UTC(),
	}
	if result.Name != "" {
		values["name"] = result.Name
	}
	if result.FeedURL != "" {
		values["feed_url"] = result.FeedURL
	}
	if result.Error != "" {
		values["error_message"] = truncate(result.Error, 500)
	}
	if len(result.Samples) > 0 {
		if encoded, err := json.Marshal(result.Samples); err == nil {
			values["sample_articles"] = encoded
		}
	}
	if details, err := json.Marshal(result); err == nil {
		values["validation_info"] = details
	}
	return v.pool.UpdateCandidate(ctx, candidate.ID, values)
}

func (v *Validator) saveFailure(ctx context.Context, candidateID string, failure error) {
	values := map[string]any{
		"status":          "validated",
		"fetch_success":   false,
		"quality_score":   0,
		"relevance_score": 0,
		"combined_score":  0,
		"error_message":   truncate(failure.Error(), 500),
		"validated_at":    time.Now().UTC(),
		"updated_at":      time.Now().UTC(),
	}
	if err := v.pool.UpdateCandidate(ctx, candidateID, values); err != nil {
		v.logger.Error().Err(err).Str("candidate_id", candidateID).Msg("saving validation failure failed")
	}
}

// Promote creates a Source from a candidate. Exported for the operator
// approve endpoint; auto-approval calls it internally.
func (v *Validator) Promote(ctx context.Context, candidate db.SourceCandidate) (*db.Source, error) {
	result := ValidationResult{
		URL:  candidate.URL,
		Kind: "universal",
	}
	if candidate.Name != nil {
		result.Name = *candidate.Name
	}
	if candidate.FeedURL != nil {
		result.FeedURL = *candidate.FeedURL
		result.Kind = "feed"
	}
	sourceID, err := v.promote(ctx, candidate, result)
	if err != nil {
		return nil, err
	}
	return v.pool.GetSource(ctx, sourceID)
}

func (v *Validator) promote(ctx context.Context, candidate db.SourceCandidate, result ValidationResult) (string, error) {
	sourceID := GenerateSourceID(candidate.URL)
	sourceURL := candidate.URL
	if result.FeedURL != "" {
		sourceURL = result.FeedURL
	}
	name := result.Name
	if name == "" {
		name = fingerprintDomainOrURL(candidate.URL)
	}

	notes := "auto-discovered"
	if candidate.DiscoveredVia != nil {
		notes = "auto-discovered via " + *candidate.DiscoveredVia
	}

	source := &db.Source{
		SourceID:             sourceID,
		Name:                 name,
		Kind:                 result.Kind,
		URL:                  sourceURL,
		Language:             candidate.Language,
		Categories:           candidate.Categories,
		FetchIntervalMinutes: 60,
		Enabled:              true,
		Priority:             3,
		HealthStatus:         "healthy",
		Notes:                &notes,
		CreatedAt:            time.Now().UTC(),
	}

	created, err := v.pool.CreateSourceIfAbsent(ctx, source)
	if err != nil {
		return "", err
	}
	if !created {
		v.logger.Info().Str("source_id", sourceID).Msg("source already exists, promotion skipped")
		return sourceID, nil
	}
	v.logger.Info().Str("source_id", sourceID).Str("kind", result.Kind).Msg("candidate promoted to source")
	return sourceID, nil
}

// GenerateSourceID slugs the domain and appends a short random suffix so
// re-discovered domains never collide.
func GenerateSourceID(rawURL string) string {
	domain := fingerprintDomainOrURL(rawURL)
	slug := strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(domain), "_"), "_")
	if slug == "" {
		slug = "source"
	}
	const suffixChars = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = suffixChars[rand.Intn(len(suffixChars))]
	}
	return slug + "_" + string(suffix)
}

func fingerprintDomainOrURL(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

func extractSiteName(html []byte, rawURL string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err == nil {
		title := strings.TrimSpace(doc.Find("title").First().Text())
		if title != "" {
			// Keep only the part before common separators.
			for _, sep := range []string{"|", " - ", "–", "—"} {
				if idx := strings.Index(title, sep); idx > 0 {
					title = title[:idx]
				}
			}
			title = strings.TrimSpace(title)
			if len(title) > 3 {
				return truncate(title, 200)
			}
		}
	}
	return fingerprintDomainOrURL(rawURL)
}

func candidateLanguage(candidate db.SourceCandidate) string {
	if candidate.Language == nil {
		return "en"
	}
	return *candidate.Language
}
