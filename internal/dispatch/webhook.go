package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"loadsignal.dev/collector/internal/db"
)

const (
	webhookTimeout    = 10 * time.Second
	webhookMaxAttempt = 3
	webhookQueueSize  = 256

	// HeaderSignature carries hex(HMAC-SHA256(body, secret)).
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	EventArticleNew = "article.new"
)

var webhookBackoff = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// WebhookConfig is the channel_config schema for webhook subscriptions.
type WebhookConfig struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

type delivery struct {
	subscription db.Subscription
	article      *db.Article
}

// WebhookSender delivers signed article payloads with bounded retry.
// At-least-once: a delivery that times out after a successful receive will
// be retried, so receivers should treat article ids as idempotency hints.
type WebhookSender struct {
	pool   *db.Pool
	logger zerolog.Logger
	http   *http.Client

	workers int
	queue   chan delivery
	wg      sync.WaitGroup
}

func NewWebhookSender(pool *db.Pool, workers int, logger zerolog.Logger) *WebhookSender {
	if workers < 1 {
		workers = 4
	}
	return &WebhookSender{
		pool:    pool,
		logger:  logger.With().Str("component", "webhook").Logger(),
		http:    &http.Client{Timeout: webhookTimeout},
		workers: workers,
		queue:   make(chan delivery, webhookQueueSize),
	}
}

// Start launches the delivery workers.
func (s *WebhookSender) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case item := <-s.queue:
					s.deliver(ctx, item)
				}
			}
		}()
	}
}

// Drain waits for the queue to empty, up to the given grace period. The
// caller cancels the worker context afterwards.
func (s *WebhookSender) Drain(grace time.Duration) {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if len(s.queue) == 0 {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	s.logger.Warn().Int("queued", len(s.queue)).Msg("webhook drain grace expired")
}

// Enqueue schedules one delivery. A full queue drops with a capacity log;
// webhook delivery is at-least-once, not guaranteed.
func (s *WebhookSender) Enqueue(sub db.Subscription, article *db.Article) {
	select {
	case s.queue <- delivery{subscription: sub, article: article}:
	default:
		s.logger.Warn().
			Str("subscription_id", sub.ID).
			Str("article_id", article.ID).
			Msg("webhook queue full, delivery dropped")
	}
}

// Sign computes the hex HMAC-SHA256 signature of a payload.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *WebhookSender) deliver(ctx context.Context, item delivery) {
	logger := s.logger.With().
		Str("subscription_id", item.subscription.ID).
		Str("article_id", item.article.ID).
		Logger()

	var cfg WebhookConfig
	if len(item.subscription.ChannelConfig) > 0 {
		if err := json.Unmarshal(item.subscription.ChannelConfig, &cfg); err != nil {
			logger.Error().Err(err).Msg("invalid webhook channel config")
			return
		}
	}
	if strings.TrimSpace(cfg.URL) == "" {
		logger.Error().Msg("webhook subscription has no target url")
		return
	}

	body, err := json.Marshal(item.article)
	if err != nil {
		logger.Error().Err(err).Msg("marshal article payload failed")
		return
	}
	signature := Sign(body, cfg.Secret)

	for attempt := 1; attempt <= webhookMaxAttempt; attempt++ {
		statusCode, latency, attemptErr := s.post(ctx, cfg.URL, body, signature)
		success := attemptErr == nil && statusCode >= 200 && statusCode < 300

		s.logAttempt(item, cfg.URL, attempt, statusCode, latency, success, attemptErr)

		if success {
			logger.Debug().Int("attempt", attempt).Msg("webhook delivered")
			return
		}

		// 4xx responses are non-retryable: the receiver rejected the payload.
		if attemptErr == nil && statusCode >= 400 && statusCode < 500 {
			logger.Warn().Int("status", statusCode).Msg("webhook rejected, not retrying")
			return
		}

		if attempt < webhookMaxAttempt {
			select {
			case <-ctx.Done():
				return
			case <-time.After(webhookBackoff[attempt-1]):
			}
		}
	}
	logger.Warn().Int("attempts", webhookMaxAttempt).Msg("webhook delivery failed")
}

func (s *WebhookSender) post(ctx context.Context, url string, body []byte, signature string) (int, time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderEvent, EventArticleNew)

	started := time.Now()
	resp, err := s.http.Do(req)
	latency := time.Since(started)
	if err != nil {
		return 0, latency, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, latency, nil
}

func (s *WebhookSender) logAttempt(item delivery, url string, attempt, statusCode int, latency time.Duration, success bool, attemptErr error) {
	if s.pool == nil {
		return
	}

	row := &db.WebhookDeliveryLog{
		SubscriptionID: item.subscription.ID,
		ArticleID:      item.article.ID,
		URL:            url,
		Success:        success,
		Attempt:        attempt,
		DeliveredAt:    time.Now().UTC(),
	}
	if statusCode > 0 {
		row.StatusCode = &statusCode
	}
	if latency > 0 {
		ms := latency.Milliseconds()
		row.LatencyMS = &ms
	}
	if attemptErr != nil {
		msg := attemptErr.Error()
		if len(msg) > 500 {
			msg = msg[:500]
		}
		row.ErrorMessage = &msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.pool.CreateWebhookDeliveryLog(ctx, row); err != nil {
		s.logger.Error().Err(err).Msg("writing delivery log failed")
	}
}
