package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"loadsignal.dev/collector/internal/db"
	"loadsignal.dev/collector/internal/dispatch"
)

type subscriptionRequest struct {
	Name           string         `json:"name"`
	SourceIDs      []string       `json:"source_ids"`
	TransportModes []string       `json:"transport_modes"`
	Topics         []string       `json:"topics"`
	Regions        []string       `json:"regions"`
	Languages      []string       `json:"languages"`
	UrgencyMin     string         `json:"urgency_min"`
	Channel        string         `json:"channel"`
	ChannelConfig  map[string]any `json:"channel_config"`
	Frequency      string         `json:"frequency"`
	Enabled        *bool          `json:"enabled"`
}

func (r subscriptionRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	switch r.Channel {
	case "push":
	case "webhook":
		// Webhook channel config must be schema-complete.
		url, _ := r.ChannelConfig["url"].(string)
		if strings.TrimSpace(url) == "" {
			return fmt.Errorf("webhook subscriptions require channel_config.url")
		}
		secret, _ := r.ChannelConfig["secret"].(string)
		if strings.TrimSpace(secret) == "" {
			return fmt.Errorf("webhook subscriptions require channel_config.secret")
		}
	default:
		return fmt.Errorf("channel must be push or webhook")
	}
	switch r.Frequency {
	case "", "realtime", "daily", "weekly":
	default:
		return fmt.Errorf("frequency must be realtime, daily, or weekly")
	}
	if r.UrgencyMin != "" {
		switch strings.ToLower(r.UrgencyMin) {
		case "low", "medium", "high":
		default:
			return fmt.Errorf("urgency_min must be low, medium, or high")
		}
	}
	return nil
}

func (s *Server) handleCreateSubscription(c echo.Context) error {
	var req subscriptionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return badRequest(c, err.Error())
	}

	now := time.Now().UTC()
	sub := &db.Subscription{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(req.Name),
		SourceIDs:      pq.StringArray(req.SourceIDs),
		TransportModes: pq.StringArray(req.TransportModes),
		Topics:         pq.StringArray(req.Topics),
		Regions:        pq.StringArray(req.Regions),
		Languages:      pq.StringArray(req.Languages),
		Channel:        req.Channel,
		Frequency:      defaultString(req.Frequency, "realtime"),
		Enabled:        req.Enabled == nil || *req.Enabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.UrgencyMin != "" {
		urgency := strings.ToLower(req.UrgencyMin)
		sub.UrgencyMin = &urgency
	}
	if len(req.ChannelConfig) > 0 {
		encoded, err := json.Marshal(req.ChannelConfig)
		if err != nil {
			return badRequest(c, "invalid channel_config")
		}
		sub.ChannelConfig = datatypes.JSON(encoded)
	}

	if err := s.pool.CreateSubscription(c.Request().Context(), sub); err != nil {
		s.logger.Error().Err(err).Msg("creating subscription failed")
		return internalError(c, "failed to create subscription")
	}
	return c.JSON(http.StatusCreated, sub)
}

func (s *Server) handleListSubscriptions(c echo.Context) error {
	subs, err := s.pool.ListSubscriptions(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("listing subscriptions failed")
		return internalError(c, "failed to list subscriptions")
	}
	if subs == nil {
		subs = []db.Subscription{}
	}
	return c.JSON(http.StatusOK, map[string]any{"subscriptions": subs})
}

func (s *Server) handleGetSubscription(c echo.Context) error {
	sub, err := s.pool.GetSubscription(c.Request().Context(), c.Param("id"))
	if err != nil {
		if db.IsNoRows(err) {
			return notFound(c, "subscription")
		}
		s.logger.Error().Err(err).Msg("loading subscription failed")
		return internalError(c, "failed to load subscription")
	}
	return c.JSON(http.StatusOK, sub)
}

func (s *Server) handleUpdateSubscription(c echo.Context) error {
	var req subscriptionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return badRequest(c, err.Error())
	}

	values := map[string]any{
		"name":            strings.TrimSpace(req.Name),
		"source_ids":      pq.StringArray(req.SourceIDs),
		"transport_modes": pq.StringArray(req.TransportModes),
		"topics":          pq.StringArray(req.Topics),
		"regions":         pq.StringArray(req.Regions),
		"languages":       pq.StringArray(req.Languages),
		"channel":         req.Channel,
		"frequency":       defaultString(req.Frequency, "realtime"),
		"updated_at":      time.Now().UTC(),
	}
	if req.UrgencyMin != "" {
		values["urgency_min"] = strings.ToLower(req.UrgencyMin)
	} else {
		values["urgency_min"] = nil
	}
	if req.Enabled != nil {
		values["enabled"] = *req.Enabled
	}
	if len(req.ChannelConfig) > 0 {
		encoded, err := json.Marshal(req.ChannelConfig)
		if err != nil {
			return badRequest(c, "invalid channel_config")
		}
		values["channel_config"] = datatypes.JSON(encoded)
	}

	if err := s.pool.UpdateSubscription(c.Request().Context(), c.Param("id"), values); err != nil {
		if db.IsNoRows(err) {
			return notFound(c, "subscription")
		}
		s.logger.Error().Err(err).Msg("updating subscription failed")
		return internalError(c, "failed to update subscription")
	}

	sub, err := s.pool.GetSubscription(c.Request().Context(), c.Param("id"))
	if err != nil {
		return internalError(c, "failed to reload subscription")
	}
	return c.JSON(http.StatusOK, sub)
}

func (s *Server) handleDeleteSubscription(c echo.Context) error {
	if err := s.pool.DeleteSubscription(c.Request().Context(), c.Param("id")); err != nil {
		if db.IsNoRows(err) {
			return notFound(c, "subscription")
		}
		s.logger.Error().Err(err).Msg("deleting subscription failed")
		return internalError(c, "failed to delete subscription")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListDeliveries(c echo.Context) error {
	limit := clamp(queryInt(c, "limit", 50), 1, 500)
	logs, err := s.pool.ListWebhookDeliveryLogs(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing deliveries failed")
		return internalError(c, "failed to list deliveries")
	}
	if logs == nil {
		logs = []db.WebhookDeliveryLog{}
	}
	return c.JSON(http.StatusOK, map[string]any{"deliveries": logs})
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// filterFromQuery builds a push filter from the /ws/articles query
// parameters.
func filterFromQuery(c echo.Context) dispatch.Filter {
	var filter dispatch.Filter
	if mode := strings.TrimSpace(c.QueryParam("transport_mode")); mode != "" {
		filter.TransportModes = []string{mode}
	}
	if topic := strings.TrimSpace(c.QueryParam("topic")); topic != "" {
		filter.Topics = []string{topic}
	}
	if region := strings.TrimSpace(c.QueryParam("region")); region != "" {
		filter.Regions = []string{region}
	}
	if language := strings.TrimSpace(c.QueryParam("language")); language != "" {
		filter.Languages = []string{language}
	}
	if urgency := strings.TrimSpace(c.QueryParam("urgency_min")); urgency != "" {
		filter.UrgencyMin = urgency
	}
	return filter
}
