package db

import (
	"context"
	"fmt"
	"time"
)

func (p *Pool) CreateFetchLog(ctx context.Context, log *FetchLog) error {
	if log == nil {
		return fmt.Errorf("fetch log is nil")
	}
	if err := p.gdb.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("create fetch log: %w", err)
	}
	return nil
}

// CompleteFetchLog fills in the terminal fields of a started fetch log.
func (p *Pool) CompleteFetchLog(ctx context.Context, log *FetchLog) error {
	if log == nil || log.ID == 0 {
		return fmt.Errorf("fetch log has no id")
	}
	err := p.gdb.WithContext(ctx).Model(&FetchLog{}).
		Where("id = ?", log.ID).
		Updates(map[string]any{
			"completed_at":   log.CompletedAt,
			"status":         log.Status,
			"articles_found": log.ArticlesFound,
			"articles_new":   log.ArticlesNew,
			"articles_dedup": log.ArticlesDedup,
			"error_message":  log.ErrorMessage,
			"duration_ms":    log.DurationMS,
		}).Error
	if err != nil {
		return fmt.Errorf("complete fetch log: %w", err)
	}
	return nil
}

func (p *Pool) ListFetchLogs(ctx context.Context, sourceID string, limit int) ([]FetchLog, error) {
	if limit < 1 {
		limit = 50
	}
	query := p.gdb.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if sourceID != "" {
		query = query.Where("source_id = ?", sourceID)
	}
	var logs []FetchLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list fetch logs: %w", err)
	}
	return logs, nil
}

// FetchWindowStats aggregates a source's fetch outcomes since the cutoff.
type FetchWindowStats struct {
	Total         int
	Succeeded     int
	ArticlesNew   int
	AvgDurationMS float64
	LastSuccessAt *time.Time
}

func (p *Pool) FetchStatsSince(ctx context.Context, sourceID string, cutoff time.Time) (FetchWindowStats, error) {
	var logs []FetchLog
	err := p.gdb.WithContext(ctx).
		Where("source_id = ? AND started_at >= ?", sourceID, cutoff.UTC()).
		Find(&logs).Error
	if err != nil {
		return FetchWindowStats{}, fmt.Errorf("fetch stats for %s: %w", sourceID, err)
	}

	stats := FetchWindowStats{Total: len(logs)}
	var durationSum, durationCount int64
	for _, log := range logs {
		if log.Status == "success" {
			stats.Succeeded++
			started := log.StartedAt
			if stats.LastSuccessAt == nil || started.After(*stats.LastSuccessAt) {
				at := started
				stats.LastSuccessAt = &at
			}
		}
		stats.ArticlesNew += log.ArticlesNew
		if log.DurationMS != nil {
			durationSum += *log.DurationMS
			durationCount++
		}
	}
	if durationCount > 0 {
		stats.AvgDurationMS = float64(durationSum) / float64(durationCount)
	}
	return stats, nil
}

// LastSuccessfulFetch returns the start time of the source's most recent
// successful fetch regardless of window, or nil when none exists.
func (p *Pool) LastSuccessfulFetch(ctx context.Context, sourceID string) (*time.Time, error) {
	var log FetchLog
	err := p.gdb.WithContext(ctx).
		Where("source_id = ? AND status = ?", sourceID, "success").
		Order("started_at DESC").
		First(&log).Error
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last successful fetch for %s: %w", sourceID, err)
	}
	at := log.StartedAt
	return &at, nil
}
