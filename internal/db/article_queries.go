package db

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const ftsExpr = "to_tsvector('simple', title || ' ' || coalesce(body_text, ''))"

// InsertArticleIfAbsent persists the article unless its canonical URL is
// already taken. The unique index on url is the serialization point for
// concurrent dedup races: losers observe inserted=false and receive the
// winner's id.
func (p *Pool) InsertArticleIfAbsent(ctx context.Context, article *Article) (inserted bool, existingID string, err error) {
	if p == nil || p.gdb == nil {
		return false, "", fmt.Errorf("database pool is not initialized")
	}
	if article == nil {
		return false, "", fmt.Errorf("article is nil")
	}

	res := p.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "url"}}, DoNothing: true}).
		Create(article)
	if res.Error != nil {
		return false, "", fmt.Errorf("insert article: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, article.ID, nil
	}

	var existing Article
	if err := p.gdb.WithContext(ctx).Select("id").Where("url = ?", article.URL).First(&existing).Error; err != nil {
		return false, "", fmt.Errorf("lookup conflicting article: %w", err)
	}
	return false, existing.ID, nil
}

func (p *Pool) GetArticle(ctx context.Context, id string) (*Article, error) {
	var article Article
	if err := p.gdb.WithContext(ctx).Where("id = ?", id).First(&article).Error; err != nil {
		return nil, err
	}
	return &article, nil
}

// ArticleIDByURL returns the id of the article with the given canonical
// URL, or "" when none exists.
func (p *Pool) ArticleIDByURL(ctx context.Context, canonicalURL string) (string, error) {
	var article Article
	err := p.gdb.WithContext(ctx).Select("id").Where("url = ?", canonicalURL).First(&article).Error
	if IsNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup article by url: %w", err)
	}
	return article.ID, nil
}

// ArticleFilter narrows ListArticles. Zero values mean "no constraint".
type ArticleFilter struct {
	SourceID      string
	TransportMode string
	Topic         string
	Language      string
	Sentiment     string
	Urgency       string
	Search        string
	FromDate      *time.Time
	ToDate        *time.Time
	Page          int
	PageSize      int
}

func (p *Pool) ListArticles(ctx context.Context, filter ArticleFilter) ([]Article, int64, error) {
	query := p.gdb.WithContext(ctx).Model(&Article{})

	if filter.SourceID != "" {
		query = query.Where("source_id = ?", filter.SourceID)
	}
	if filter.TransportMode != "" {
		query = query.Where("transport_modes @> ?", "{"+filter.TransportMode+"}")
	}
	if filter.Topic != "" {
		query = query.Where("primary_topic = ?", filter.Topic)
	}
	if filter.Language != "" {
		query = query.Where("language = ?", filter.Language)
	}
	if filter.Sentiment != "" {
		query = query.Where("sentiment = ?", filter.Sentiment)
	}
	if filter.Urgency != "" {
		query = query.Where("urgency = ?", filter.Urgency)
	}
	if filter.FromDate != nil {
		query = query.Where("published_at >= ?", filter.FromDate.UTC())
	}
	if filter.ToDate != nil {
		query = query.Where("published_at <= ?", filter.ToDate.UTC())
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where(ftsExpr+" @@ websearch_to_tsquery('simple', ?)", search)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count articles: %w", err)
	}

	page := max(filter.Page, 1)
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 25
	}

	var articles []Article
	err := query.
		Order("published_at DESC NULLS LAST, fetched_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&articles).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list articles: %w", err)
	}
	return articles, total, nil
}

// SemanticMatch pairs an article with its cosine similarity to a query.
type SemanticMatch struct {
	Article    `gorm:"embedded"`
	Similarity float64 `json:"similarity"`
}

// SemanticSearch orders completed articles by cosine similarity to the
// query embedding via the HNSW index.
func (p *Pool) SemanticSearch(ctx context.Context, queryVector string, filter ArticleFilter, limit int) ([]SemanticMatch, error) {
	if limit < 1 {
		limit = 10
	}

	query := p.gdb.WithContext(ctx).Model(&Article{}).
		Select("*, 1 - (embedding <=> ?) AS similarity", queryVector).
		Where("embedding IS NOT NULL")

	if filter.TransportMode != "" {
		query = query.Where("transport_modes @> ?", "{"+filter.TransportMode+"}")
	}
	if filter.Topic != "" {
		query = query.Where("primary_topic = ?", filter.Topic)
	}
	if filter.Language != "" {
		query = query.Where("language = ?", filter.Language)
	}

	var matches []SemanticMatch
	err := query.Order(clause.OrderBy{
		Expression: clause.Expr{SQL: "embedding <=> ?", Vars: []any{queryVector}, WithoutParentheses: true},
	}).
		Limit(limit).
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	return matches, nil
}

// RelatedArticles finds the nearest neighbors of an existing article's
// embedding, excluding the article itself.
func (p *Pool) RelatedArticles(ctx context.Context, articleID string, limit int, excludeSameSource bool) ([]SemanticMatch, error) {
	article, err := p.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	if article.Embedding == nil {
		return nil, nil
	}
	if limit < 1 {
		limit = 5
	}

	query := p.gdb.WithContext(ctx).Model(&Article{}).
		Select("*, 1 - (embedding <=> ?) AS similarity", *article.Embedding).
		Where("embedding IS NOT NULL").
		Where("id <> ?", articleID)
	if excludeSameSource {
		query = query.Where("source_id <> ?", article.SourceID)
	}

	var matches []SemanticMatch
	err = query.Order(clause.OrderBy{
		Expression: clause.Expr{SQL: "embedding <=> ?", Vars: []any{*article.Embedding}, WithoutParentheses: true},
	}).
		Limit(limit).
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("related articles: %w", err)
	}
	return matches, nil
}

// FingerprintRow carries the persisted dedup signals of one article.
type FingerprintRow struct {
	ID             string
	TitleSimhash   *int64
	ContentMinhash []int64
}

// ScanFingerprints streams persisted fingerprints in batches, invoking fn
// for each row. Used for LSH warmup and the SimHash scan.
func (p *Pool) ScanFingerprints(ctx context.Context, fn func(FingerprintRow) error) error {
	const batchSize = 1000

	var rows []Article
	result := p.gdb.WithContext(ctx).
		Select("id", "title_simhash", "content_minhash").
		Where("title_simhash IS NOT NULL OR content_minhash IS NOT NULL").
		FindInBatches(&rows, batchSize, func(_ *gorm.DB, _ int) error {
			for _, row := range rows {
				if err := fn(FingerprintRow{
					ID:             row.ID,
					TitleSimhash:   row.TitleSimhash,
					ContentMinhash: row.ContentMinhash,
				}); err != nil {
					return err
				}
			}
			return nil
		})
	if result.Error != nil {
		return fmt.Errorf("scan fingerprints: %w", result.Error)
	}
	return nil
}

// SimhashEntry is one persisted title fingerprint.
type SimhashEntry struct {
	ID           string
	TitleSimhash int64
}

func (p *Pool) ListSimhashes(ctx context.Context) ([]SimhashEntry, error) {
	var rows []Article
	err := p.gdb.WithContext(ctx).
		Select("id", "title_simhash").
		Where("title_simhash IS NOT NULL").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list simhashes: %w", err)
	}
	entries := make([]SimhashEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, SimhashEntry{ID: row.ID, TitleSimhash: *row.TitleSimhash})
	}
	return entries, nil
}

func (p *Pool) PendingArticleIDs(ctx context.Context, limit int) ([]string, error) {
	if limit < 1 {
		limit = 50
	}
	var ids []string
	err := p.gdb.WithContext(ctx).Model(&Article{}).
		Where("processing_status = ? AND body_text IS NOT NULL", "pending").
		Order("fetched_at DESC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list pending articles: %w", err)
	}
	return ids, nil
}

// CASProcessingStatus transitions processing_status from one value to
// another atomically, reporting whether this caller won the transition.
func (p *Pool) CASProcessingStatus(ctx context.Context, articleID, from, to string) (bool, error) {
	res := p.gdb.WithContext(ctx).Model(&Article{}).
		Where("id = ? AND processing_status = ?", articleID, from).
		Update("processing_status", to)
	if res.Error != nil {
		return false, fmt.Errorf("transition processing status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// EnrichmentUpdate carries every field the enrichment pipeline writes on
// success.
type EnrichmentUpdate struct {
	SummaryEN       string
	SummaryZH       string
	TransportModes  []string
	PrimaryTopic    string
	SecondaryTopics []string
	ContentType     string
	Regions         []string
	Entities        []byte
	Sentiment       string
	MarketImpact    string
	Urgency         string
	KeyMetrics      []byte
	Embedding       string
}

func (p *Pool) CompleteEnrichment(ctx context.Context, articleID string, update EnrichmentUpdate) error {
	values := map[string]any{
		"summary_en":        update.SummaryEN,
		"summary_zh":        update.SummaryZH,
		"transport_modes":   toStringArray(update.TransportModes),
		"primary_topic":     nullableString(update.PrimaryTopic),
		"secondary_topics":  toStringArray(update.SecondaryTopics),
		"content_type":      nullableString(update.ContentType),
		"regions":           toStringArray(update.Regions),
		"sentiment":         update.Sentiment,
		"market_impact":     nullableString(update.MarketImpact),
		"urgency":           update.Urgency,
		"embedding":         update.Embedding,
		"llm_processed":     true,
		"processing_status": "completed",
	}
	if len(update.Entities) > 0 {
		values["entities"] = update.Entities
	}
	if len(update.KeyMetrics) > 0 {
		values["key_metrics"] = update.KeyMetrics
	}

	res := p.gdb.WithContext(ctx).Model(&Article{}).Where("id = ?", articleID).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("complete enrichment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("article %s not found", articleID)
	}
	return nil
}

// FailEnrichment marks the article failed and records the error in
// raw_metadata under llm_error.
func (p *Pool) FailEnrichment(ctx context.Context, articleID, message string) error {
	if len(message) > 1000 {
		message = message[:1000]
	}
	res := p.gdb.WithContext(ctx).Model(&Article{}).
		Where("id = ?", articleID).
		Updates(map[string]any{
			"processing_status": "failed",
			"llm_processed":     false,
			"raw_metadata":      clause.Expr{SQL: "coalesce(raw_metadata, '{}'::jsonb) || jsonb_build_object('llm_error', ?::text)", Vars: []any{message}},
		})
	if res.Error != nil {
		return fmt.Errorf("mark enrichment failed: %w", res.Error)
	}
	return nil
}

// ResetFailedArticle puts a failed article back to pending. Operator-only.
func (p *Pool) ResetFailedArticle(ctx context.Context, articleID string) (bool, error) {
	return p.CASProcessingStatus(ctx, articleID, "failed", "pending")
}

// VectorLiteral renders an embedding in pgvector input syntax.
func VectorLiteral(vector []float32) (string, error) {
	if len(vector) == 0 {
		return "", fmt.Errorf("embedding vector is empty")
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return "", fmt.Errorf("embedding component %d is not finite", i)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}

func toStringArray(values []string) any {
	if values == nil {
		values = []string{}
	}
	return pq.StringArray(values)
}

func nullableString(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
