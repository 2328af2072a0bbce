package db

import (
	"context"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"gorm.io/gorm"
)

func (d *DbDao) AddOutboxEvent(ctx context.Context, event *model.OutboxEvent) error {
	return translate(d.conn(ctx).Create(event).Error, "add outbox event %s", event.EventType)
}

func (d *DbDao) ListPendingOutboxEvents(ctx context.Context, limit, maxAttempts int) ([]model.OutboxEvent, error) {
	events := []model.OutboxEvent{}
	err := d.conn(ctx).
		Where("published_at IS NULL AND attempts < ?", maxAttempts).
		Order("attempts, created_at, id").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, translate(err, "list pending outbox events")
	}
	return events, nil
}

func (d *DbDao) MarkOutboxEventPublished(ctx context.Context, id string) error {
	res := d.conn(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).Updates(map[string]any{
		"published_at": time.Now().UTC(),
		"attempts":     gorm.Expr("attempts + 1"),
		"last_error":   "",
	})
	if res.Error != nil {
		return translate(res.Error, "mark outbox event %s", id)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "outbox event %s", id)
	}
	return nil
}

func (d *DbDao) MarkOutboxEventFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res := d.conn(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).Updates(map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": msg,
	})
	if res.Error != nil {
		return translate(res.Error, "mark outbox event %s", id)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "outbox event %s", id)
	}
	return nil
}
