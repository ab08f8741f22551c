package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"loadsignal.dev/collector/internal/db"
)

type createAPIKeyRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

func (s *Server) handleCreateAPIKey(c echo.Context) error {
	if err := s.requireAdmin(c); err != nil {
		return err
	}

	var req createAPIKeyRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return badRequest(c, "name is required")
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	switch role {
	case "":
		role = "reader"
	case "admin", "reader", "subscriber":
	default:
		return badRequest(c, "role must be admin, reader, or subscriber")
	}

	cleartext := GenerateAPIKey()
	key := &db.APIKey{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		KeyHash:   HashAPIKey(cleartext),
		Role:      role,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.pool.CreateAPIKey(c.Request().Context(), key); err != nil {
		s.logger.Error().Err(err).Msg("creating api key failed")
		return internalError(c, "failed to create api key")
	}

	// The cleartext is shown exactly once.
	return c.JSON(http.StatusCreated, map[string]any{
		"id":      key.ID,
		"name":    key.Name,
		"role":    key.Role,
		"api_key": cleartext,
	})
}

func (s *Server) handleListAPIKeys(c echo.Context) error {
	if err := s.requireAdmin(c); err != nil {
		return err
	}

	keys, err := s.pool.ListAPIKeys(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("listing api keys failed")
		return internalError(c, "failed to list api keys")
	}
	if keys == nil {
		keys = []db.APIKey{}
	}
	return c.JSON(http.StatusOK, map[string]any{"api_keys": keys})
}

func (s *Server) handleDeleteAPIKey(c echo.Context) error {
	if err := s.requireAdmin(c); err != nil {
		return err
	}

	if err := s.pool.DeleteAPIKey(c.Request().Context(), c.Param("id")); err != nil {
		if db.IsNoRows(err) {
			return notFound(c, "api key")
		}
		s.logger.Error().Err(err).Msg("deleting api key failed")
		return internalError(c, "failed to delete api key")
	}
	return c.NoContent(http.StatusNoContent)
}
