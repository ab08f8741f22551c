package db

import (
	"context"
	"fmt"
	"time"
)

func (p *Pool) CreateAPIKey(ctx context.Context, key *APIKey) error {
	if key == nil {
		return fmt.Errorf("api key is nil")
	}
	if err := p.gdb.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (p *Pool) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	var keys []APIKey
	if err := p.gdb.WithContext(ctx).Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// HasAPIKeys reports whether any key exists at all. With zero keys the API
// runs open.
func (p *Pool) HasAPIKeys(ctx context.Context) (bool, error) {
	var count int64
	if err := p.gdb.WithContext(ctx).Model(&APIKey{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count api keys: %w", err)
	}
	return count > 0, nil
}

// APIKeyByHash resolves an enabled key from the SHA-256 hex of the
// presented cleartext. Returns nil when no enabled key matches.
func (p *Pool) APIKeyByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	var key APIKey
	err := p.gdb.WithContext(ctx).
		Where("key_hash = ? AND enabled = true", keyHash).
		First(&key).Error
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	return &key, nil
}

func (p *Pool) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	err := p.gdb.WithContext(ctx).Model(&APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", at.UTC()).Error
	if err != nil {
		return fmt.Errorf("touch api key %s: %w", id, err)
	}
	return nil
}

func (p *Pool) DeleteAPIKey(ctx context.Context, id string) error {
	res := p.gdb.WithContext(ctx).Where("id = ?", id).Delete(&APIKey{})
	if res.Error != nil {
		return fmt.Errorf("delete api key %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoRows
	}
	return nil
}
