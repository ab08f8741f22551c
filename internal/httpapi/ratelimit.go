package httpapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// rateLimiter is an in-memory sliding window per client: the API key when
// presented, the source IP otherwise.
type rateLimiter struct {
	rpm int

	mu      sync.Mutex
	windows map[string][]time.Time
}

func newRateLimiter(rpm int) *rateLimiter {
	if rpm < 1 {
		rpm = 120
	}
	return &rateLimiter{
		rpm:     rpm,
		windows: make(map[string][]time.Time),
	}
}

func (l *rateLimiter) clientID(c echo.Context) string {
	if key := strings.TrimSpace(c.Request().Header.Get(apiKeyHeader)); key != "" {
		if len(key) > 16 {
			key = key[:16]
		}
		return "key:" + key
	}
	return "ip:" + c.RealIP()
}

// allow records the request and reports whether it fits the window.
func (l *rateLimiter) allow(clientID string, now time.Time) bool {
	windowStart := now.Add(-time.Minute)

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamps := l.windows[clientID]
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.rpm {
		l.windows[clientID] = kept
		return false
	}
	l.windows[clientID] = append(kept, now)
	return true
}

// rateLimit applies the sliding window to everything but /health and /ws.
func (s *Server) rateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/ws") {
				return next(c)
			}

			if !s.limiter.allow(s.limiter.clientID(c), time.Now()) {
				c.Response().Header().Set("Retry-After", "60")
				return respondError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			}
			return next(c)
		}
	}
}
