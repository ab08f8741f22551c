package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"loadsignal.dev/collector/internal/analytics"
)

func (s *Server) handleTrending(c echo.Context) error {
	limit := clamp(queryInt(c, "limit", 10), 1, 50)
	trending, err := s.analytics.Trending(
		c.Request().Context(),
		c.QueryParam("time_window"),
		c.QueryParam("transport_mode"),
		c.QueryParam("region"),
		limit,
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("trending query failed")
		return internalError(c, "failed to compute trending topics")
	}
	return c.JSON(http.StatusOK, map[string]any{"trending": trending})
}

func (s *Server) handleSentimentTrend(c echo.Context) error {
	days := clamp(queryInt(c, "days", 30), 1, 365)
	trend, err := s.analytics.SentimentTrend(
		c.Request().Context(),
		c.QueryParam("granularity"),
		c.QueryParam("transport_mode"),
		c.QueryParam("topic"),
		c.QueryParam("region"),
		days,
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("sentiment trend failed")
		return internalError(c, "failed to compute sentiment trend")
	}
	return c.JSON(http.StatusOK, trend)
}

func (s *Server) handleTopEntities(c echo.Context) error {
	days := clamp(queryInt(c, "days", 30), 1, 365)
	limit := clamp(queryInt(c, "limit", 20), 1, 100)
	entities, err := s.analytics.TopEntities(c.Request().Context(), c.QueryParam("type"), days, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("top entities failed")
		return internalError(c, "failed to rank entities")
	}
	return c.JSON(http.StatusOK, map[string]any{"entities": entities})
}

func (s *Server) handleEntityGraph(c echo.Context) error {
	days := clamp(queryInt(c, "days", 30), 1, 365)
	minCooccurrence := clamp(queryInt(c, "min_cooccurrence", 2), 1, 100)
	limit := clamp(queryInt(c, "limit", 50), 1, 500)

	graph, err := s.analytics.EntityCooccurrence(c.Request().Context(), days, minCooccurrence, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("entity graph failed")
		return internalError(c, "failed to build entity graph")
	}
	return c.JSON(http.StatusOK, graph)
}

func (s *Server) handleExportArticles(c echo.Context) error {
	filter := analytics.ExportFilter{
		SourceID:      c.QueryParam("source_id"),
		TransportMode: c.QueryParam("transport_mode"),
		Topic:         c.QueryParam("topic"),
		Limit:         queryInt(c, "limit", 0),
	}
	var err error
	if filter.FromDate, err = queryTime(c, "from_date"); err != nil {
		return badRequest(c, err.Error())
	}
	if filter.ToDate, err = queryTime(c, "to_date"); err != nil {
		return badRequest(c, err.Error())
	}

	format := strings.ToLower(strings.TrimSpace(c.QueryParam("format")))
	switch format {
	case "", "json":
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c.Response().WriteHeader(http.StatusOK)
		if _, err := s.analytics.ExportJSON(c.Request().Context(), c.Response(), filter); err != nil {
			s.logger.Error().Err(err).Msg("json export failed")
			return err
		}
	case "csv":
		c.Response().Header().Set(echo.HeaderContentType, "text/csv")
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="articles.csv"`)
		c.Response().WriteHeader(http.StatusOK)
		if _, err := s.analytics.ExportCSV(c.Request().Context(), c.Response(), filter); err != nil {
			s.logger.Error().Err(err).Msg("csv export failed")
			return err
		}
	default:
		return badRequest(c, "format must be json or csv")
	}
	return nil
}
