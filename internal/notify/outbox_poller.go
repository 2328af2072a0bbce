package notify

import (
	"context"
	"errors"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/repository"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

type OutboxPoller struct {
	store       repository.OutboxStore
	publisher   Publisher
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

// NewOutboxPoller 失敗達 maxAttempts 次的事件不再重送, 留在表內等人工處理
func NewOutboxPoller(store repository.OutboxStore, publisher Publisher, interval time.Duration, batchSize, maxAttempts int) *OutboxPoller {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &OutboxPoller{store: store, publisher: publisher, interval: interval, batchSize: batchSize, maxAttempts: maxAttempts}
}

// Run 直到 ctx 結束, 回傳值固定是 ctx.Err()
func (p *OutboxPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("failed to fetch outbox events")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

/*
ProcessOnce 送出一批尚未發布的事件, 回傳成功數量
單筆失敗記錄在事件上, 下一輪重試, 失敗次數少的先送, 持續失敗的事件不會卡住新事件
breaker 打開時整批停止, 不計入失敗次數
*/
func (p *OutboxPoller) ProcessOnce(ctx context.Context) (int, error) {
	events, err := p.store.ListPendingOutboxEvents(ctx, p.batchSize, p.maxAttempts)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}
		err := p.publisher.Publish(ctx, event)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn().Str("event_id", event.ID).Msg("publisher unavailable, outbox batch deferred")
			return published, nil
		}
		if err != nil {
			log.Error().Err(err).Str("event_id", event.ID).Str("event_type", string(event.EventType)).Msg("failed to publish outbox event")
			if markErr := p.store.MarkOutboxEventFailed(ctx, event.ID, err); markErr != nil {
				log.Error().Err(markErr).Str("event_id", event.ID).Msg("failed to record outbox failure")
			} else if event.Attempts+1 >= p.maxAttempts {
				log.Error().Str("event_id", event.ID).Str("aggregate_id", event.AggregateID).
					Int("attempts", event.Attempts+1).Msg("outbox event gave up after max attempts")
			}
			continue
		}
		if err := p.store.MarkOutboxEventPublished(ctx, event.ID); err != nil {
			log.Error().Err(err).Str("event_id", event.ID).Msg("failed to mark outbox event as published")
			continue
		}
		published++
	}
	return published, nil
}
