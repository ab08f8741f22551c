package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"loadsignal.dev/collector/internal/db"
)

type articleListResponse struct {
	Articles []db.Article `json:"articles"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

func (s *Server) handleListArticles(c echo.Context) error {
	filter, err := parseArticleFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	articles, total, err := s.pool.ListArticles(c.Request().Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing articles failed")
		return internalError(c, "failed to list articles")
	}
	if articles == nil {
		articles = []db.Article{}
	}
	return c.JSON(http.StatusOK, articleListResponse{
		Articles: articles,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
}

func parseArticleFilter(c echo.Context) (db.ArticleFilter, error) {
	filter := db.ArticleFilter{
		SourceID:      c.QueryParam("source_id"),
		TransportMode: c.QueryParam("transport_mode"),
		Topic:         c.QueryParam("topic"),
		Language:      c.QueryParam("language"),
		Sentiment:     c.QueryParam("sentiment"),
		Urgency:       c.QueryParam("urgency"),
		Search:        c.QueryParam("search"),
		Page:          queryInt(c, "page", 1),
		PageSize:      clamp(queryInt(c, "page_size", defaultPageSize), 1, maxPageSize),
	}

	var err error
	if filter.FromDate, err = queryTime(c, "from_date"); err != nil {
		return filter, err
	}
	if filter.ToDate, err = queryTime(c, "to_date"); err != nil {
		return filter, err
	}
	return filter, nil
}

func (s *Server) handleGetArticle(c echo.Context) error {
	article, err := s.pool.GetArticle(c.Request().Context(), c.Param("id"))
	if err != nil {
		if db.IsNoRows(err) {
			return notFound(c, "article")
		}
		s.logger.Error().Err(err).Msg("loading article failed")
		return internalError(c, "failed to load article")
	}
	return c.JSON(http.StatusOK, article)
}

func (s *Server) handleSemanticSearch(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return badRequest(c, "q is required")
	}
	if !s.cfg.LLMConfigured() {
		return respondError(c, http.StatusServiceUnavailable, "llm_unconfigured", "LLM_API_KEY not configured")
	}

	queryVector, err := s.enrich.QueryEmbedding(c.Request().Context(), query)
	if err != nil {
		s.logger.Error().Err(err).Msg("query embedding failed")
		return respondError(c, http.StatusBadGateway, "embedding_failed", "failed to generate query embedding")
	}

	filter := db.ArticleFilter{
		TransportMode: c.QueryParam("transport_mode"),
		Topic:         c.QueryParam("topic"),
		Language:      c.QueryParam("language"),
	}
	limit := clamp(queryInt(c, "limit", 10), 1, 50)

	matches, err := s.pool.SemanticSearch(c.Request().Context(), queryVector, filter, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("semantic search failed")
		return internalError(c, "semantic search failed")
	}
	if matches == nil {
		matches = []db.SemanticMatch{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"query":   query,
		"results": matches,
	})
}

func (s *Server) handleRelatedArticles(c echo.Context) error {
	limit := clamp(queryInt(c, "limit", 5), 1, 20)
	excludeSameSource := c.QueryParam("exclude_same_source") == "true"

	matches, err := s.pool.RelatedArticles(c.Request().Context(), c.Param("id"), limit, excludeSameSource)
	if err != nil {
		if db.IsNoRows(err) {
			return notFound(c, "article")
		}
		s.logger.Error().Err(err).Msg("related articles failed")
		return internalError(c, "failed to load related articles")
	}
	if matches == nil {
		matches = []db.SemanticMatch{}
	}
	return c.JSON(http.StatusOK, map[string]any{"results": matches})
}

// handleProcessPending manually sweeps pending articles into enrichment.
func (s *Server) handleProcessPending(c echo.Context) error {
	limit := clamp(queryInt(c, "limit", 50), 1, 500)
	count, err := s.enrich.EnqueuePending(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("manual processing trigger failed")
		return internalError(c, "failed to enqueue pending articles")
	}
	return c.JSON(http.StatusAccepted, map[string]any{"enqueued": count})
}

// handleReprocessArticle resets a failed article to pending and enqueues
// it. Failed articles are never retried automatically.
func (s *Server) handleReprocessArticle(c echo.Context) error {
	articleID := c.Param("id")
	reset, err := s.pool.ResetFailedArticle(c.Request().Context(), articleID)
	if err != nil {
		s.logger.Error().Err(err).Msg("resetting article failed")
		return internalError(c, "failed to reset article")
	}
	if !reset {
		return respondError(c, http.StatusConflict, "not_failed", "article is not in failed state")
	}
	s.enrich.Enqueue(articleID)
	return c.JSON(http.StatusAccepted, map[string]any{"article_id": articleID, "status": "pending"})
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func queryTime(c echo.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			utc := ts.UTC()
			return &utc, nil
		}
	}
	return nil, fmt.Errorf("%s must be RFC3339 or YYYY-MM-DD", name)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
