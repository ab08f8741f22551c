// Package httpapi exposes the read surface, operator endpoints, and the
// push upgrade over echo.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"loadsignal.dev/collector/internal/analytics"
	"loadsignal.dev/collector/internal/config"
	"loadsignal.dev/collector/internal/db"
	"loadsignal.dev/collector/internal/discovery"
	"loadsignal.dev/collector/internal/dispatch"
	"loadsignal.dev/collector/internal/enrich"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
)

// Server wires every handler to its collaborators.
type Server struct {
	cfg        *config.Config
	pool       *db.Pool
	enrich     *enrich.Pipeline
	dispatcher *dispatch.Dispatcher
	jobs       *discovery.Jobs
	validator  *discovery.Validator
	analytics  *analytics.Service
	limiter    *rateLimiter
	logger     zerolog.Logger

	echo *echo.Echo
}

func NewServer(
	cfg *config.Config,
	pool *db.Pool,
	pipeline *enrich.Pipeline,
	dispatcher *dispatch.Dispatcher,
	jobs *discovery.Jobs,
	validator *discovery.Validator,
	analyticsService *analytics.Service,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		cfg:        cfg,
		pool:       pool,
		enrich:     pipeline,
		dispatcher: dispatcher,
		jobs:       jobs,
		validator:  validator,
		analytics:  analyticsService,
		limiter:    newRateLimiter(cfg.RateLimitRPM),
		logger:     logger.With().Str("component", "httpapi").Logger(),
	}
	s.echo = s.buildEcho()
	return s
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))
	e.Use(s.requestLogger())
	e.Use(s.rateLimit())
	e.Use(s.requireAPIKey())

	e.GET("/health", s.handleHealth)
	e.GET("/health/sources", s.handleSourceHealth)
	e.GET("/ws/articles", s.handleWebSocket)

	v1 := e.Group("/api/v1")

	v1.GET("/articles", s.handleListArticles)
	v1.GET("/articles/search/semantic", s.handleSemanticSearch)
	v1.GET("/articles/:id", s.handleGetArticle)
	v1.GET("/articles/:id/related", s.handleRelatedArticles)
	v1.POST("/articles/:id/reprocess", s.handleReprocessArticle)
	v1.POST("/process", s.handleProcessPending)

	v1.GET("/sources", s.handleListSources)
	v1.GET("/sources/:id", s.handleGetSource)
	v1.GET("/fetch-logs", s.handleListFetchLogs)

	v1.POST("/subscriptions", s.handleCreateSubscription)
	v1.GET("/subscriptions", s.handleListSubscriptions)
	v1.GET("/subscriptions/:id", s.handleGetSubscription)
	v1.PUT("/subscriptions/:id", s.handleUpdateSubscription)
	v1.DELETE("/subscriptions/:id", s.handleDeleteSubscription)
	v1.GET("/subscriptions/:id/deliveries", s.handleListDeliveries)

	v1.GET("/analytics/trending", s.handleTrending)
	v1.GET("/analytics/sentiment-trend", s.handleSentimentTrend)
	v1.GET("/analytics/entities", s.handleTopEntities)
	v1.GET("/analytics/entities/graph", s.handleEntityGraph)
	v1.GET("/export/articles", s.handleExportArticles)

	v1.POST("/discovery/start", s.handleDiscoveryStart)
	v1.POST("/discovery/stop", s.handleDiscoveryStop)
	v1.GET("/discovery/status", s.handleDiscoveryStatus)
	v1.POST("/discovery/scan", s.handleDiscoveryScan)
	v1.POST("/discovery/validate", s.handleDiscoveryValidate)
	v1.GET("/discovery/candidates", s.handleListCandidates)
	v1.POST("/discovery/candidates/:id/approve", s.handleApproveCandidate)
	v1.POST("/discovery/candidates/:id/reject", s.handleRejectCandidate)
	v1.POST("/discovery/probe", s.handleProbe)

	v1.POST("/admin/api-keys", s.handleCreateAPIKey)
	v1.GET("/admin/api-keys", s.handleListAPIKeys)
	v1.DELETE("/admin/api-keys/:id", s.handleDeleteAPIKey)

	return e
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := s.cfg.ListenAddr()
	s.logger.Info().Str("addr", addr).Msg("http server listening")
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the handler tree for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			started := time.Now()
			err := next(c)
			s.logger.Debug().
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(started)).
				Msg("request")
			return err
		}
	}
}

// errorBody is the structured error payload: {detail, code}.
type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

func respondError(c echo.Context, status int, code, detail string) error {
	return c.JSON(status, errorBody{Detail: detail, Code: code})
}

func notFound(c echo.Context, what string) error {
	return respondError(c, http.StatusNotFound, "not_found", what+" not found")
}

func badRequest(c echo.Context, detail string) error {
	return respondError(c, http.StatusBadRequest, "bad_request", detail)
}

func internalError(c echo.Context, detail string) error {
	return respondError(c, http.StatusInternalServerError, "internal_error", detail)
}
