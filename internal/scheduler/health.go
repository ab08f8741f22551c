package scheduler

import (
	"context"
	"time"

	"loadsignal.dev/collector/internal/db"
)

const healthWindow = 24 * time.Hour

// Health states, ordered from best to worst.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthFailing  = "failing"
)

// updateHealth re-evaluates and persists the source's health state from
// its 24-hour fetch history. Failing sources keep running on schedule;
// health is a visibility signal, not a gate.
func (s *Scheduler) updateHealth(ctx context.Context, source db.Source) {
	health, err := s.evaluateHealth(ctx, source)
	if err != nil {
		s.logger.Error().Err(err).Str("source_id", source.SourceID).Msg("health evaluation failed")
		return
	}
	if health == source.HealthStatus {
		return
	}
	if err := s.pool.SetSourceHealth(ctx, source.SourceID, health); err != nil {
		s.logger.Error().Err(err).Str("source_id", source.SourceID).Msg("persisting health failed")
		return
	}
	s.logger.Info().
		Str("source_id", source.SourceID).
		Str("from", source.HealthStatus).
		Str("to", health).
		Msg("source health changed")
}

func (s *Scheduler) evaluateHealth(ctx context.Context, source db.Source) (string, error) {
	now := s.nowFunc()
	stats, err := s.pool.FetchStatsSince(ctx, source.SourceID, now.Add(-healthWindow))
	if err != nil {
		return "", err
	}

	interval := time.Duration(source.FetchIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	lastSuccess := stats.LastSuccessAt
	if lastSuccess == nil {
		// The window may simply be too short; consult the full history.
		lastSuccess, err = s.pool.LastSuccessfulFetch(ctx, source.SourceID)
		if err != nil {
			return "", err
		}
	}

	return classifyHealth(stats, lastSuccess, now.Add(-3*interval)), nil
}

// classifyHealth applies the thresholds: success rate >= 80% healthy,
// 50-80% degraded, below 50% failing. No successful fetch within three
// intervals is failing outright; a source with no history at all is
// healthy until proven otherwise.
func classifyHealth(stats db.FetchWindowStats, lastSuccess *time.Time, staleCutoff time.Time) string {
	if lastSuccess == nil {
		if stats.Total == 0 {
			return HealthHealthy
		}
		return HealthFailing
	}
	if lastSuccess.Before(staleCutoff) {
		return HealthFailing
	}

	if stats.Total == 0 {
		return HealthHealthy
	}
	rate := float64(stats.Succeeded) / float64(stats.Total)
	switch {
	case rate >= 0.8:
		return HealthHealthy
	case rate >= 0.5:
		return HealthDegraded
	default:
		return HealthFailing
	}
}
