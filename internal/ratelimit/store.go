package ratelimit

import (
	"context"
	"time"
)

// Counter 某個 key 在目前視窗內的計數
type Counter struct {
	Count   int
	ResetAt time.Time
}

/*
CounterStore fixed window 計數
key 不存在或 now >= ResetAt 時重新開窗, Count 從 1 開始
*/
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (Counter, error)
}
