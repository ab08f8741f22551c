package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"loadsignal.dev/collector/internal/db"
)

const queueCapacity = 1024

// Publisher receives articles that completed enrichment. Implemented by
// the dispatcher; declared here to keep the dependency pointing outward.
type Publisher interface {
	PublishArticle(article *db.Article)
}

// Pipeline drives LLM analysis and embedding generation over newly
// ingested articles with a bounded worker pool. Each article id flows
// through exactly once, enforced by the processing-status CAS.
type Pipeline struct {
	pool      *db.Pool
	llm       *LLMClient
	publisher Publisher
	logger    zerolog.Logger

	workers int
	queue   chan string
	wg      sync.WaitGroup
}

func NewPipeline(pool *db.Pool, llm *LLMClient, publisher Publisher, workers int, logger zerolog.Logger) *Pipeline {
	if workers < 1 {
		workers = 4
	}
	return &Pipeline{
		pool:      pool,
		llm:       llm,
		publisher: publisher,
		logger:    logger.With().Str("component", "enrich").Logger(),
		workers:   workers,
		queue:     make(chan string, queueCapacity),
	}
}

// Start launches the worker pool. Workers exit when ctx ends.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case articleID := <-p.queue:
					p.processOne(ctx, articleID)
				}
			}
		}()
	}
}

// Wait blocks until every worker has exited.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Enqueue schedules article ids for enrichment. A full queue drops the id;
// the periodic backstop re-discovers pending articles.
func (p *Pipeline) Enqueue(articleIDs ...string) {
	for _, id := range articleIDs {
		select {
		case p.queue <- id:
		default:
			p.logger.Warn().Str("article_id", id).Msg("enrichment queue full, waiting for backstop")
		}
	}
}

// EnqueuePending loads pending articles from the store and queues them.
// Serves both the 10-minute backstop and the manual /process trigger.
func (p *Pipeline) EnqueuePending(ctx context.Context, limit int) (int, error) {
	ids, err := p.pool.PendingArticleIDs(ctx, limit)
	if err != nil {
		return 0, err
	}
	p.Enqueue(ids...)
	return len(ids), nil
}

func (p *Pipeline) processOne(ctx context.Context, articleID string) {
	logger := p.logger.With().Str("article_id", articleID).Logger()

	won, err := p.pool.CASProcessingStatus(ctx, articleID, "pending", "processing")
	if err != nil {
		logger.Error().Err(err).Msg("status transition failed")
		return
	}
	if !won {
		// Already processing, completed, or failed elsewhere.
		return
	}

	if err := p.enrich(ctx, articleID, logger); err != nil {
		logger.Error().Err(err).Msg("enrichment failed")
		if failErr := p.pool.FailEnrichment(ctx, articleID, err.Error()); failErr != nil {
			logger.Error().Err(failErr).Msg("recording failure state failed")
		}
	}
}

func (p *Pipeline) enrich(ctx context.Context, articleID string, logger zerolog.Logger) error {
	article, err := p.pool.GetArticle(ctx, articleID)
	if err != nil {
		return fmt.Errorf("load article: %w", err)
	}
	if article.BodyText == nil || strings.TrimSpace(*article.BodyText) == "" {
		return fmt.Errorf("article has no body text")
	}

	raw, err := p.llm.Chat(ctx, analysisSystemPrompt, buildAnalysisPrompt(article.Title, *article.BodyText))
	if err != nil {
		return fmt.Errorf("llm analysis: %w", err)
	}

	analysis, err := ParseAnalysis(raw)
	if err != nil {
		return err
	}

	vector, err := p.llm.Embed(ctx, article.Title+"\n"+analysis.SummaryEN)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	vectorLiteral, err := db.VectorLiteral(vector)
	if err != nil {
		return fmt.Errorf("render embedding: %w", err)
	}

	entitiesJSON, err := json.Marshal(analysis.Entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}
	metricsJSON, err := json.Marshal(analysis.KeyMetrics)
	if err != nil {
		return fmt.Errorf("marshal key metrics: %w", err)
	}

	update := db.EnrichmentUpdate{
		SummaryEN:       analysis.SummaryEN,
		SummaryZH:       analysis.SummaryZH,
		TransportModes:  analysis.TransportModes,
		PrimaryTopic:    analysis.PrimaryTopic,
		SecondaryTopics: analysis.SecondaryTopics,
		ContentType:     analysis.ContentType,
		Regions:         analysis.Regions,
		Entities:        entitiesJSON,
		Sentiment:       analysis.Sentiment,
		MarketImpact:    analysis.MarketImpact,
		Urgency:         analysis.Urgency,
		KeyMetrics:      metricsJSON,
		Embedding:       vectorLiteral,
	}
	if err := p.pool.CompleteEnrichment(ctx, articleID, update); err != nil {
		return err
	}

	logger.Info().
		Str("topic", analysis.PrimaryTopic).
		Str("sentiment", analysis.Sentiment).
		Str("urgency", analysis.Urgency).
		Msg("article enriched")

	if p.publisher != nil {
		completed, err := p.pool.GetArticle(ctx, articleID)
		if err != nil {
			logger.Error().Err(err).Msg("reload for dispatch failed")
			return nil
		}
		p.publisher.PublishArticle(completed)
	}
	return nil
}

// QueryEmbedding embeds free text for semantic search.
func (p *Pipeline) QueryEmbedding(ctx context.Context, query string) (string, error) {
	vector, err := p.llm.Embed(ctx, query)
	if err != nil {
		return "", err
	}
	return db.VectorLiteral(vector)
}
