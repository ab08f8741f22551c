package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (p *Pool) CreateCandidateIfAbsent(ctx context.Context, candidate *SourceCandidate) (bool, error) {
	if candidate == nil {
		return false, fmt.Errorf("candidate is nil")
	}
	res := p.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "url"}}, DoNothing: true}).
		Create(candidate)
	if res.Error != nil {
		return false, fmt.Errorf("create candidate: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (p *Pool) GetCandidate(ctx context.Context, id string) (*SourceCandidate, error) {
	var candidate SourceCandidate
	if err := p.gdb.WithContext(ctx).Where("id = ?", id).First(&candidate).Error; err != nil {
		return nil, err
	}
	return &candidate, nil
}

func (p *Pool) ListCandidates(ctx context.Context, status string, limit, offset int) ([]SourceCandidate, int64, error) {
	query := p.gdb.WithContext(ctx).Model(&SourceCandidate{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count candidates: %w", err)
	}

	if limit < 1 {
		limit = 50
	}
	var candidates []SourceCandidate
	err := query.Order("combined_score DESC, created_at DESC").
		Offset(max(offset, 0)).
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list candidates: %w", err)
	}
	return candidates, total, nil
}

// ClaimCandidatesForValidation moves up to limit discovered candidates to
// validating and returns them, oldest first.
func (p *Pool) ClaimCandidatesForValidation(ctx context.Context, limit int) ([]SourceCandidate, error) {
	if limit < 1 {
		limit = 10
	}
	var candidates []SourceCandidate
	err := p.gdb.WithContext(ctx).
		Where("status = ?", "discovered").
		Order("created_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("select discovered candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	err = p.gdb.WithContext(ctx).Model(&SourceCandidate{}).
		Where("id IN ?", ids).
		Update("status", "validating").Error
	if err != nil {
		return nil, fmt.Errorf("mark candidates validating: %w", err)
	}
	return candidates, nil
}

func (p *Pool) UpdateCandidate(ctx context.Context, id string, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	res := p.gdb.WithContext(ctx).Model(&SourceCandidate{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update candidate %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoRows
	}
	return nil
}

// KnownCandidateURLs returns the URLs of all sources and of all candidates
// (as two slices), for discovery dedup.
func (p *Pool) KnownCandidateURLs(ctx context.Context) ([]string, []string, error) {
	var sourceURLs []string
	if err := p.gdb.WithContext(ctx).Model(&Source{}).Pluck("url", &sourceURLs).Error; err != nil {
		return nil, nil, fmt.Errorf("list source urls: %w", err)
	}
	var candidateURLs []string
	if err := p.gdb.WithContext(ctx).Model(&SourceCandidate{}).Pluck("url", &candidateURLs).Error; err != nil {
		return nil, nil, fmt.Errorf("list candidate urls: %w", err)
	}
	return sourceURLs, candidateURLs, nil
}
