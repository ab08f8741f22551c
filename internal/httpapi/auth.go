package httpapi

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"loadsignal.dev/collector/internal/db"
)

const (
	apiKeyHeader    = "X-API-Key"
	principalCtxKey = "auth.principal"
	keyPrefix       = "lsc_"
)

// HashAPIKey is the storage form of a key: hex SHA-256 of the cleartext.
func HashAPIKey(cleartext string) string {
	sum := sha256.Sum256([]byte(cleartext))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey produces a new random cleartext key.
func GenerateAPIKey() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return keyPrefix + base64.RawURLEncoding.EncodeToString(buf)
}

// requireAPIKey enforces API-key auth on everything but /health and /ws.
// With zero keys in the store the system runs open.
func (s *Server) requireAPIKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/ws") {
				return next(c)
			}

			hasKeys, err := s.pool.HasAPIKeys(c.Request().Context())
			if err != nil {
				s.logger.Error().Err(err).Msg("api key lookup failed")
				return internalError(c, "failed to authorize request")
			}
			if !hasKeys {
				// Open mode: no keys configured yet.
				return next(c)
			}

			presented := strings.TrimSpace(c.Request().Header.Get(apiKeyHeader))
			if presented == "" {
				return respondError(c, http.StatusUnauthorized, "auth_required", "API key required")
			}

			key, err := s.pool.APIKeyByHash(c.Request().Context(), HashAPIKey(presented))
			if err != nil {
				s.logger.Error().Err(err).Msg("api key verification failed")
				return internalError(c, "failed to authorize request")
			}
			if key == nil {
				return respondError(c, http.StatusUnauthorized, "invalid_key", "invalid API key")
			}

			_ = s.pool.TouchAPIKey(c.Request().Context(), key.ID, time.Now().UTC())
			c.Set(principalCtxKey, key)
			return next(c)
		}
	}
}

// requireAdmin guards the API-key management endpoints. In open mode
// (no principal set) admin actions are allowed so the first key can be
// created.
func (s *Server) requireAdmin(c echo.Context) error {
	principal, ok := c.Get(principalCtxKey).(*db.APIKey)
	if !ok || principal == nil {
		return nil
	}
	if principal.Role != "admin" {
		return respondError(c, http.StatusForbidden, "admin_required", "admin role required")
	}
	return nil
}
