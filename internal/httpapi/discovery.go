package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"loadsignal.dev/collector/internal/db"
)

func (s *Server) handleDiscoveryStart(c echo.Context) error {
	s.jobs.Start()
	return c.JSON(http.StatusOK, map[string]any{"running": true})
}

func (s *Server) handleDiscoveryStop(c echo.Context) error {
	s.jobs.Stop()
	return c.JSON(http.StatusOK, map[string]any{"running": false})
}

func (s *Server) handleDiscoveryStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.jobs.Status())
}

// Manual triggers run detached: scans crawl dozens of pages and should
// not hold an HTTP request open.
func (s *Server) handleDiscoveryScan(c echo.Context) error {
	if s.jobs.Status().ScanInProgress {
		return respondError(c, http.StatusConflict, "scan_in_progress", "a discovery scan is already running")
	}
	go s.jobs.RunScan(context.Background())
	return c.JSON(http.StatusAccepted, map[string]any{"started": true})
}

func (s *Server) handleDiscoveryValidate(c echo.Context) error {
	if s.jobs.Status().ValidateInProgress {
		return respondError(c, http.StatusConflict, "validate_in_progress", "a validation batch is already running")
	}
	go s.jobs.RunValidate(context.Background())
	return c.JSON(http.StatusAccepted, map[string]any{"started": true})
}

func (s *Server) handleListCandidates(c echo.Context) error {
	limit := clamp(queryInt(c, "limit", 50), 1, 200)
	offset := max(queryInt(c, "offset", 0), 0)

	candidates, total, err := s.pool.ListCandidates(c.Request().Context(), c.QueryParam("status"), limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing candidates failed")
		return internalError(c, "failed to list candidates")
	}
	if candidates == nil {
		candidates = []db.SourceCandidate{}
	}
	return c.JSON(http.StatusOK, map[string]any{"candidates": candidates, "total": total})
}

// handleApproveCandidate is the operator path: promote regardless of
// score.
func (s *Server) handleApproveCandidate(c echo.Context) error {
	ctx := c.Request().Context()
	candidate, err := s.pool.GetCandidate(ctx, c.Param("id"))
	if err != nil {
		if db.IsNoRows(err) {
			return notFound(c, "candidate")
		}
		s.logger.Error().Err(err).Msg("loading candidate failed")
		return internalError(c, "failed to load candidate")
	}
	if candidate.Status == "approved" {
		return respondError(c, http.StatusConflict, "already_approved", "candidate already approved")
	}

	source, err := s.validator.Promote(ctx, *candidate)
	if err != nil {
		s.logger.Error().Err(err).Msg("promoting candidate failed")
		return internalError(c, "failed to promote candidate")
	}

	values := map[string]any{
		"status":     "approved",
		"updated_at": time.Now().UTC(),
	}
	if err := s.pool.UpdateCandidate(ctx, candidate.ID, values); err != nil {
		s.logger.Error().Err(err).Msg("updating candidate status failed")
	}
	return c.JSON(http.StatusOK, map[string]any{"candidate_id": candidate.ID, "source": source})
}

func (s *Server) handleRejectCandidate(c echo.Context) error {
	values := map[string]any{
		"status":     "rejected",
		"updated_at": time.Now().UTC(),
	}
	if err := s.pool.UpdateCandidate(c.Request().Context(), c.Param("id"), values); err != nil {
		if db.IsNoRows(err) {
			return notFound(c, "candidate")
		}
		s.logger.Error().Err(err).Msg("rejecting candidate failed")
		return internalError(c, "failed to reject candidate")
	}
	return c.JSON(http.StatusOK, map[string]any{"candidate_id": c.Param("id"), "status": "rejected"})
}

type probeRequest struct {
	URL      string `json:"url"`
	Language string `json:"language"`
}

// handleProbe validates a single URL synchronously without persistence.
func (s *Server) handleProbe(c echo.Context) error {
	var req probeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.URL) == "" {
		return badRequest(c, "url is required")
	}

	result, err := s.validator.Probe(c.Request().Context(), req.URL, req.Language)
	if err != nil {
		s.logger.Error().Err(err).Msg("probe failed")
		return internalError(c, "probe failed")
	}
	return c.JSON(http.StatusOK, result)
}
