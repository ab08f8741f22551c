package analytics

import (
	"context"
	"fmt"
	"time"

	"loadsignal.dev/collector/internal/db"
)

// SentimentPoint is one time bucket of sentiment counts.
type SentimentPoint struct {
	Period         *time.Time `json:"period"`
	Positive       int        `json:"positive"`
	Negative       int        `json:"negative"`
	Neutral        int        `json:"neutral"`
	Mixed          int        `json:"mixed"`
	Total          int        `json:"total"`
	SentimentRatio float64    `json:"sentiment_ratio"`
}

// SentimentTrend groups sentiment counts into hour/day/week buckets over
// the trailing N days.
type SentimentTrend struct {
	Granularity string           `json:"granularity"`
	Days        int              `json:"days"`
	DataPoints  []SentimentPoint `json:"data_points"`
}

func (s *Service) SentimentTrend(ctx context.Context, granularity, transportMode, topic, region string, days int) (SentimentTrend, error) {
	switch granularity {
	case "hour", "week":
	default:
		granularity = "day"
	}
	if days < 1 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	query := s.pool.GORM().WithContext(ctx).Model(&db.Article{}).
		Select(fmt.Sprintf(`date_trunc('%s', published_at) AS period,
			count(*) AS total,
			count(*) FILTER (WHERE sentiment = 'positive') AS positive,
			count(*) FILTER (WHERE sentiment = 'negative') AS negative,
			count(*) FILTER (WHERE sentiment = 'neutral') AS neutral,
			count(*) FILTER (WHERE sentiment = 'mixed') AS mixed`, granularity)).
		Where("published_at >= ? AND sentiment IS NOT NULL", cutoff)

	if transportMode != "" {
		query = query.Where("transport_modes @> ?", "{"+transportMode+"}")
	}
	if topic != "" {
		query = query.Where("primary_topic = ?", topic)
	}
	if region != "" {
		query = query.Where("regions @> ?", "{"+region+"}")
	}

	var points []SentimentPoint
	err := query.Group("period").Order("period").Scan(&points).Error
	if err != nil {
		return SentimentTrend{}, fmt.Errorf("sentiment trend: %w", err)
	}

	for i := range points {
		points[i].SentimentRatio = sentimentRatio(points[i])
	}
	return SentimentTrend{Granularity: granularity, Days: days, DataPoints: points}, nil
}

func sentimentRatio(point SentimentPoint) float64 {
	if point.Total <= 0 {
		return 0
	}
	ratio := float64(point.Positive-point.Negative) / float64(point.Total)
	return float64(int(ratio*10000)) / 10000
}
