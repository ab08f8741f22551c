package db

import (
	"context"
	"fmt"
)

func (p *Pool) CreateSubscription(ctx context.Context, sub *Subscription) error {
	if sub == nil {
		return fmt.Errorf("subscription is nil")
	}
	if err := p.gdb.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

func (p *Pool) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	var sub Subscription
	if err := p.gdb.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (p *Pool) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	if err := p.gdb.WithContext(ctx).Order("created_at DESC").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// RealtimeWebhookSubscriptions returns every enabled webhook subscription
// with realtime frequency; predicate matching happens in the dispatcher.
func (p *Pool) RealtimeWebhookSubscriptions(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	err := p.gdb.WithContext(ctx).
		Where("enabled = true AND channel = ? AND frequency = ?", "webhook", "realtime").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("list realtime webhook subscriptions: %w", err)
	}
	return subs, nil
}

func (p *Pool) UpdateSubscription(ctx context.Context, id string, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	res := p.gdb.WithContext(ctx).Model(&Subscription{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update subscription %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoRows
	}
	return nil
}

func (p *Pool) DeleteSubscription(ctx context.Context, id string) error {
	res := p.gdb.WithContext(ctx).Where("id = ?", id).Delete(&Subscription{})
	if res.Error != nil {
		return fmt.Errorf("delete subscription %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoRows
	}
	return nil
}

func (p *Pool) CreateWebhookDeliveryLog(ctx context.Context, log *WebhookDeliveryLog) error {
	if log == nil {
		return fmt.Errorf("delivery log is nil")
	}
	if err := p.gdb.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("create webhook delivery log: %w", err)
	}
	return nil
}

func (p *Pool) ListWebhookDeliveryLogs(ctx context.Context, subscriptionID string, limit int) ([]WebhookDeliveryLog, error) {
	if limit < 1 {
		limit = 50
	}
	query := p.gdb.WithContext(ctx).Order("delivered_at DESC").Limit(limit)
	if subscriptionID != "" {
		query = query.Where("subscription_id = ?", subscriptionID)
	}
	var logs []WebhookDeliveryLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list webhook delivery logs: %w", err)
	}
	return logs, nil
}
