package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"loadsignal.dev/collector/internal/db"
)

func (s *Server) handleListSources(c echo.Context) error {
	enabledOnly := c.QueryParam("enabled") == "true"
	sources, err := s.pool.ListSources(c.Request().Context(), enabledOnly)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing sources failed")
		return internalError(c, "failed to list sources")
	}
	if sources == nil {
		sources = []db.Source{}
	}
	return c.JSON(http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) handleGetSource(c echo.Context) error {
	source, err := s.pool.GetSource(c.Request().Context(), c.Param("id"))
	if err != nil {
		if db.IsNoRows(err) {
			return notFound(c, "source")
		}
		s.logger.Error().Err(err).Msg("loading source failed")
		return internalError(c, "failed to load source")
	}
	return c.JSON(http.StatusOK, source)
}

func (s *Server) handleListFetchLogs(c echo.Context) error {
	limit := clamp(queryInt(c, "limit", 50), 1, 500)
	logs, err := s.pool.ListFetchLogs(c.Request().Context(), c.QueryParam("source_id"), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing fetch logs failed")
		return internalError(c, "failed to list fetch logs")
	}
	if logs == nil {
		logs = []db.FetchLog{}
	}
	return c.JSON(http.StatusOK, map[string]any{"fetch_logs": logs})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// sourceHealthReport is the per-source 24h operational summary.
type sourceHealthReport struct {
	SourceID      string     `json:"source_id"`
	Name          string     `json:"name"`
	Enabled       bool       `json:"enabled"`
	HealthStatus  string     `json:"health_status"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	FetchCount24h int        `json:"fetch_count_24h"`
	SuccessRate   float64    `json:"success_rate_24h"`
	ArticlesNew   int        `json:"articles_new_24h"`
	AvgDurationMS float64    `json:"avg_duration_ms"`
}

func (s *Server) handleSourceHealth(c echo.Context) error {
	sources, err := s.pool.ListSources(c.Request().Context(), false)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing sources failed")
		return internalError(c, "failed to list sources")
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	reports := make([]sourceHealthReport, 0, len(sources))
	for _, source := range sources {
		report := sourceHealthReport{
			SourceID:      source.SourceID,
			Name:          source.Name,
			Enabled:       source.Enabled,
			HealthStatus:  source.HealthStatus,
			LastFetchedAt: source.LastFetchedAt,
		}
		stats, err := s.pool.FetchStatsSince(c.Request().Context(), source.SourceID, cutoff)
		if err == nil {
			report.FetchCount24h = stats.Total
			report.ArticlesNew = stats.ArticlesNew
			report.AvgDurationMS = stats.AvgDurationMS
			if stats.Total > 0 {
				report.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
			}
		}
		reports = append(reports, report)
	}
	return c.JSON(http.StatusOK, map[string]any{"sources": reports})
}
