package ratelimit

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/constants"
	"github.com/redis/go-redis/v9"
)

func DefaultRules() map[string]Rule {
	return map[string]Rule{
		constants.LimiterGeneral: {
			Max:     100,
			Window:  15 * time.Minute,
			Message: "Too many requests from this IP, please try again after 15 minutes",
		},
		constants.LimiterAuth: {
			Max:     100,
			Window:  15 * time.Minute,
			Message: "Too many login attempts, please try again later",
		},
		constants.LimiterAPI: {
			Max:     60,
			Window:  time.Minute,
			Message: "API rate limit exceeded, please slow down",
		},
		constants.LimiterUpload: {
			Max:     20,
			Window:  time.Hour,
			Message: "Upload limit exceeded, please try again later",
		},
	}
}

// Registry 依名稱取得 limiter, 每個 limiter 的計數互不影響
type Registry struct {
	limiters map[string]*Limiter
	closers  []io.Closer
}

// NewMemoryRegistry 每個 limiter 一個 MemoryStore, 清理週期等於自己的視窗長度
func NewMemoryRegistry(rules map[string]Rule, opts ...MemoryStoreOption) *Registry {
	r := &Registry{limiters: make(map[string]*Limiter, len(rules))}
	for name, rule := range rules {
		store := NewMemoryStore(rule.Window, opts...)
		r.limiters[name] = NewLimiter(name, rule, store)
		r.closers = append(r.closers, store)
	}
	return r
}

func NewRedisRegistry(client redis.Scripter, rules map[string]Rule) *Registry {
	r := &Registry{limiters: make(map[string]*Limiter, len(rules))}
	for name, rule := range rules {
		r.limiters[name] = NewLimiter(name, rule, NewRedisStore(client, name))
	}
	return r
}

func (r *Registry) Get(name string) (*Limiter, error) {
	l, ok := r.limiters[name]
	if !ok {
		return nil, fmt.Errorf("rate limiter %q is not configured", name)
	}
	return l, nil
}

// MustGet 給路由組裝使用, 名稱寫錯屬於程式錯誤
func (r *Registry) MustGet(name string) *Limiter {
	l, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return l
}

func (r *Registry) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
