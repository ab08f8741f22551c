package analytics

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"loadsignal.dev/collector/internal/db"
)

const exportBatchLimit = 5000

// ExportFilter narrows the export scan.
type ExportFilter struct {
	SourceID      string
	TransportMode string
	Topic         string
	FromDate      *time.Time
	ToDate        *time.Time
	Limit         int
}

// ExportCSV streams matching articles as CSV rows.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, filter ExportFilter) (int, error) {
	articles, err := s.exportScan(ctx, filter)
	if err != nil {
		return 0, err
	}

	writer := csv.NewWriter(w)
	header := []string{
		"id", "source_id", "url", "title", "language", "published_at",
		"primary_topic", "transport_modes", "regions", "sentiment",
		"market_impact", "urgency", "summary_en",
	}
	if err := writer.Write(header); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	for _, a := range articles {
		record := []string{
			a.ID,
			a.SourceID,
			a.URL,
			a.Title,
			derefOr(a.Language, ""),
			formatTime(a.PublishedAt),
			derefOr(a.PrimaryTopic, ""),
			strings.Join(a.TransportModes, ";"),
			strings.Join(a.Regions, ";"),
			derefOr(a.Sentiment, ""),
			derefOr(a.MarketImpact, ""),
			derefOr(a.Urgency, ""),
			derefOr(a.SummaryEN, ""),
		}
		if err := writer.Write(record); err != nil {
			return 0, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return len(articles), writer.Error()
}

// ExportJSON streams matching articles as a JSON array.
func (s *Service) ExportJSON(ctx context.Context, w io.Writer, filter ExportFilter) (int, error) {
	articles, err := s.exportScan(ctx, filter)
	if err != nil {
		return 0, err
	}
	encoder := json.NewEncoder(w)
	if err := encoder.Encode(articles); err != nil {
		return 0, fmt.Errorf("encode export: %w", err)
	}
	return len(articles), nil
}

func (s *Service) exportScan(ctx context.Context, filter ExportFilter) ([]db.Article, error) {
	limit := filter.Limit
	if limit < 1 || limit > exportBatchLimit {
		limit = exportBatchLimit
	}

	query := s.pool.GORM().WithContext(ctx).Model(&db.Article{})
	if filter.SourceID != "" {
		query = query.Where("source_id = ?", filter.SourceID)
	}
	if filter.TransportMode != "" {
		query = query.Where("transport_modes @> ?", "{"+filter.TransportMode+"}")
	}
	if filter.Topic != "" {
		query = query.Where("primary_topic = ?", filter.Topic)
	}
	if filter.FromDate != nil {
		query = query.Where("published_at >= ?", filter.FromDate.UTC())
	}
	if filter.ToDate != nil {
		query = query.Where("published_at <= ?", filter.ToDate.UTC())
	}

	var articles []db.Article
	err := query.Order("published_at DESC NULLS LAST").Limit(limit).Find(&articles).Error
	if err != nil {
		return nil, fmt.Errorf("export scan: %w", err)
	}
	return articles, nil
}

func derefOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
