package notify

import (
	"context"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/rs/zerolog/log"
)

//go:generate mockgen -source=publisher.go -destination=mock/publisher_mock.go -package=mock_notify

type Publisher interface {
	Publish(ctx context.Context, event model.OutboxEvent) error
	Close() error
}

// LogPublisher 沒有設定 kafka 時使用, 只寫 log
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event model.OutboxEvent) error {
	log.Info().
		Str("event_id", event.ID).
		Str("event_type", string(event.EventType)).
		Str("aggregate_id", event.AggregateID).
		RawJSON("payload", event.Payload).
		Msg("order notification")
	return nil
}

func (LogPublisher) Close() error { return nil }
