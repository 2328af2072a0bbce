package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
	// 被 sweep 移除後仍被持有的 entry 不可再使用
	deleted bool
}

/*
MemoryStore 單一 process 內的計數, 不跨 instance 共享
每個 key 各自一把鎖, sweep 一次只持有一個 entry 的鎖
*/
type MemoryStore struct {
	entries   sync.Map
	now       func() time.Time
	interval  time.Duration
	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type MemoryStoreOption func(*MemoryStore)

func WithMemoryClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore sweepInterval <= 0 時不啟動背景清理
func NewMemoryStore(sweepInterval time.Duration, opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		now:      time.Now,
		interval: sweepInterval,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval > 0 {
		s.wg.Add(1)
		go s.sweepLoop()
	}
	return s
}

func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (Counter, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, err
	}
	for {
		v, _ := s.entries.LoadOrStore(key, &memoryEntry{})
		e := v.(*memoryEntry)

		e.mu.Lock()
		if e.deleted {
			e.mu.Unlock()
			continue
		}
		now := s.now()
		if e.count == 0 || !now.Before(e.resetAt) {
			e.count = 1
			e.resetAt = now.Add(window)
		} else {
			e.count++
		}
		c := Counter{Count: e.count, ResetAt: e.resetAt}
		e.mu.Unlock()
		return c, nil
	}
}

// Sweep 移除視窗已過期的 entry, 回傳移除數量
func (s *MemoryStore) Sweep() int {
	now := s.now()
	removed := 0
	s.entries.Range(func(k, v any) bool {
		e := v.(*memoryEntry)
		e.mu.Lock()
		if e.count > 0 && !now.Before(e.resetAt) {
			e.deleted = true
			if s.entries.CompareAndDelete(k, e) {
				removed++
			}
		}
		e.mu.Unlock()
		return true
	})
	return removed
}

// Len 目前保存的 key 數量
func (s *MemoryStore) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *MemoryStore) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
	return nil
}
