// Package analytics derives aggregate views over enriched articles:
// trending topics, sentiment over time, entity rankings, and exports.
package analytics

import (
	"context"
	"fmt"
	"time"

	"loadsignal.dev/collector/internal/db"
)

// Service owns the read-only analytical queries.
type Service struct {
	pool *db.Pool
}

func NewService(pool *db.Pool) *Service {
	return &Service{pool: pool}
}

// TrendingTopic is one ranked topic with its growth against the previous
// equal-length period.
type TrendingTopic struct {
	Topic                 string      `json:"topic"`
	Count                 int         `json:"count"`
	GrowthRate            float64     `json:"growth_rate"`
	RepresentativeArticle *ArticleRef `json:"representative_article,omitempty"`
}

// ArticleRef is a light pointer used in analytics payloads.
type ArticleRef struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	SourceName *string `json:"source_name,omitempty"`
}

// windowHours maps the API window names to durations.
func windowHours(window string) int {
	switch window {
	case "7d":
		return 168
	case "30d":
		return 720
	default:
		return 24
	}
}

// Trending ranks primary topics by article count inside the window and
// computes growth against the preceding window of the same length.
func (s *Service) Trending(ctx context.Context, window, transportMode, region string, limit int) ([]TrendingTopic, error) {
	if limit < 1 {
		limit = 10
	}
	hours := windowHours(window)
	now := time.Now().UTC()
	cutoff := now.Add(-time.Duration(hours) * time.Hour)
	prevCutoff := cutoff.Add(-time.Duration(hours) * time.Hour)

	base := s.pool.GORM().WithContext(ctx).Model(&db.Article{}).
		Where("primary_topic IS NOT NULL").
		Where("published_at >= ?", cutoff)
	if transportMode != "" {
		base = base.Where("transport_modes @> ?", "{"+transportMode+"}")
	}
	if region != "" {
		base = base.Where("regions @> ?", "{"+region+"}")
	}

	type topicCount struct {
		PrimaryTopic string
		Count        int
	}
	var current []topicCount
	err := base.Select("primary_topic, count(*) AS count").
		Group("primary_topic").
		Order("count DESC").
		Limit(limit).
		Scan(&current).Error
	if err != nil {
		return nil, fmt.Errorf("trending topics: %w", err)
	}
	if len(current) == 0 {
		return []TrendingTopic{}, nil
	}

	topics := make([]string, len(current))
	for i, row := range current {
		topics[i] = row.PrimaryTopic
	}

	var previous []topicCount
	err = s.pool.GORM().WithContext(ctx).Model(&db.Article{}).
		Select("primary_topic, count(*) AS count").
		Where("primary_topic IN ?", topics).
		Where("published_at >= ? AND published_at < ?", prevCutoff, cutoff).
		Group("primary_topic").
		Scan(&previous).Error
	if err != nil {
		return nil, fmt.Errorf("trending previous period: %w", err)
	}
	prevMap := make(map[string]int, len(previous))
	for _, row := range previous {
		prevMap[row.PrimaryTopic] = row.Count
	}

	trending := make([]TrendingTopic, 0, len(current))
	for _, row := range current {
		entry := TrendingTopic{
			Topic:      row.PrimaryTopic,
			Count:      row.Count,
			GrowthRate: growthRate(row.Count, prevMap[row.PrimaryTopic]),
		}

		var rep db.Article
		err := s.pool.GORM().WithContext(ctx).
			Select("id", "title", "url", "source_name").
			Where("primary_topic = ? AND published_at >= ?", row.PrimaryTopic, cutoff).
			Order("published_at DESC").
			First(&rep).Error
		if err == nil {
			entry.RepresentativeArticle = &ArticleRef{
				ID:         rep.ID,
				Title:      rep.Title,
				URL:        rep.URL,
				SourceName: rep.SourceName,
			}
		}
		trending = append(trending, entry)
	}
	return trending, nil
}

func growthRate(current, previous int) float64 {
	if previous <= 0 {
		if current > 0 {
			return 100.0
		}
		return 0.0
	}
	rate := float64(current-previous) / float64(previous) * 100
	// One decimal, matching the API contract.
	return float64(int(rate*10)) / 10
}
