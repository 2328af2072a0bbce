package ratelimit

import (
	"context"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/pkg/apperr"
	"github.com/rs/zerolog/log"
)

type Rule struct {
	Max     int           `mapstructure:"max"`
	Window  time.Duration `mapstructure:"window"`
	Message string        `mapstructure:"message"`
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

/*
Limiter fixed window: 視窗邊界前後各打滿時, 短時間內最多可通過 2*Max 次
*/
type Limiter struct {
	name  string
	rule  Rule
	store CounterStore
	now   func() time.Time
}

type LimiterOption func(*Limiter)

func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.now = now
	}
}

func NewLimiter(name string, rule Rule, store CounterStore, opts ...LimiterOption) *Limiter {
	l := &Limiter{name: name, rule: rule, store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Name() string { return l.name }

func (l *Limiter) Rule() Rule { return l.rule }

// Allow 超過上限回 RateLimited 錯誤, 計數儲存失敗時放行
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	c, err := l.store.Increment(ctx, key, l.rule.Window)
	if err != nil {
		log.Warn().Err(err).Str("limiter", l.name).Str("key", key).Msg("rate limit store unavailable, request allowed")
		return Result{
			Allowed:   true,
			Limit:     l.rule.Max,
			Remaining: l.rule.Max,
			ResetAt:   l.now().Add(l.rule.Window),
		}, nil
	}

	res := Result{
		Allowed:   c.Count <= l.rule.Max,
		Limit:     l.rule.Max,
		Remaining: max(0, l.rule.Max-c.Count),
		ResetAt:   c.ResetAt,
	}
	if res.Allowed {
		return res, nil
	}
	res.RetryAfter = max(0, c.ResetAt.Sub(l.now()))
	return res, apperr.RateLimited(l.rule.Message, res.RetryAfter)
}
