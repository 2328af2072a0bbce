package notify

import (
	"context"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	// 連續失敗幾次後打開
	ConsecutiveFailures uint32
	// 打開後多久進入 half-open
	OpenTimeout time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// BreakerPublisher broker 持續失敗時直接拒絕, 不再佔用 poller
type BreakerPublisher struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreakerPublisher(name string, next Publisher, cfg BreakerConfig) *BreakerPublisher {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &BreakerPublisher{next: next, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

func (p *BreakerPublisher) Publish(ctx context.Context, event model.OutboxEvent) error {
	_, err := p.cb.Execute(func() (any, error) {
		return nil, p.next.Publish(ctx, event)
	})
	return err
}

func (p *BreakerPublisher) State() gobreaker.State {
	return p.cb.State()
}

func (p *BreakerPublisher) Close() error {
	return p.next.Close()
}
