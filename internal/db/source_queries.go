package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

func (p *Pool) ListSources(ctx context.Context, enabledOnly bool) ([]Source, error) {
	query := p.gdb.WithContext(ctx).Order("priority ASC, source_id ASC")
	if enabledOnly {
		query = query.Where("enabled = true")
	}
	var sources []Source
	if err := query.Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

func (p *Pool) GetSource(ctx context.Context, sourceID string) (*Source, error) {
	var source Source
	if err := p.gdb.WithContext(ctx).Where("source_id = ?", sourceID).First(&source).Error; err != nil {
		return nil, err
	}
	return &source, nil
}

// UpsertSource creates the source or refreshes its configurable fields.
// Runtime state (last_fetched_at, health_status) is left alone on conflict.
func (p *Pool) UpsertSource(ctx context.Context, source *Source) error {
	if source == nil {
		return fmt.Errorf("source is nil")
	}
	err := p.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "source_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "kind", "url", "language", "categories",
				"fetch_interval_minutes", "parser_config", "enabled", "priority", "notes",
			}),
		}).
		Create(source).Error
	if err != nil {
		return fmt.Errorf("upsert source %s: %w", source.SourceID, err)
	}
	return nil
}

// CreateSourceIfAbsent inserts the source only when the id is free.
func (p *Pool) CreateSourceIfAbsent(ctx context.Context, source *Source) (bool, error) {
	if source == nil {
		return false, fmt.Errorf("source is nil")
	}
	res := p.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "source_id"}}, DoNothing: true}).
		Create(source)
	if res.Error != nil {
		return false, fmt.Errorf("create source %s: %w", source.SourceID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (p *Pool) TouchSourceFetched(ctx context.Context, sourceID string, at time.Time) error {
	err := p.gdb.WithContext(ctx).Model(&Source{}).
		Where("source_id = ?", sourceID).
		Update("last_fetched_at", at.UTC()).Error
	if err != nil {
		return fmt.Errorf("touch source %s: %w", sourceID, err)
	}
	return nil
}

func (p *Pool) SetSourceHealth(ctx context.Context, sourceID, health string) error {
	err := p.gdb.WithContext(ctx).Model(&Source{}).
		Where("source_id = ?", sourceID).
		Update("health_status", health).Error
	if err != nil {
		return fmt.Errorf("set source health %s: %w", sourceID, err)
	}
	return nil
}
