package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/pkg/apperr"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// fakeClock 測試用可控時間
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type MemoryLimiterTestSuite struct {
	suite.Suite
	clock   *fakeClock
	store   *MemoryStore
	limiter *Limiter
	ctx     context.Context
}

func (s *MemoryLimiterTestSuite) SetupTest() {
	s.clock = newFakeClock()
	s.store = NewMemoryStore(0, WithMemoryClock(s.clock.Now))
	s.limiter = NewLimiter("test", Rule{Max: 3, Window: time.Second, Message: "slow down"}, s.store, WithLimiterClock(s.clock.Now))
	s.ctx = context.Background()
}

func (s *MemoryLimiterTestSuite) TearDownTest() {
	s.store.Close()
}

func TestMemoryLimiterSuite(t *testing.T) {
	suite.Run(t, new(MemoryLimiterTestSuite))
}

func (s *MemoryLimiterTestSuite) TestFixedWindowBoundary() {
	for i := 0; i < 3; i++ {
		res, err := s.limiter.Allow(s.ctx, "1.2.3.4")
		require.NoError(s.T(), err, "應該允許第 %d 次請求", i+1)
		require.True(s.T(), res.Allowed)
		require.Equal(s.T(), 2-i, res.Remaining)
	}

	s.clock.Advance(500 * time.Millisecond)
	res, err := s.limiter.Allow(s.ctx, "1.2.3.4")
	require.Error(s.T(), err, "超過容量限制應該被拒絕")
	require.False(s.T(), res.Allowed)
	require.Equal(s.T(), 0, res.Remaining)
	require.Equal(s.T(), 500*time.Millisecond, res.RetryAfter)
	require.Equal(s.T(), apperr.RateLimitedCode, apperr.CodeOf(err))
	require.Equal(s.T(), "slow down", apperr.PublicMessage(err))

	s.clock.Advance(501 * time.Millisecond)
	res, err = s.limiter.Allow(s.ctx, "1.2.3.4")
	require.NoError(s.T(), err, "新視窗應重新計數")
	require.Equal(s.T(), 2, res.Remaining)
	require.Equal(s.T(), s.clock.Now().Add(time.Second), res.ResetAt)
}

func (s *MemoryLimiterTestSuite) TestResetExactlyAtWindowEnd() {
	for i := 0; i < 4; i++ {
		_, _ = s.limiter.Allow(s.ctx, "k")
	}
	s.clock.Advance(time.Second)
	_, err := s.limiter.Allow(s.ctx, "k")
	require.NoError(s.T(), err, "now == resetAt 時應重新開窗")
}

func (s *MemoryLimiterTestSuite) TestBurstAcrossBoundaryAllowsTwiceMax() {
	allowed := 0
	s.clock.Advance(900 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if _, err := s.limiter.Allow(s.ctx, "burst"); err == nil {
			allowed++
		}
	}
	s.clock.Advance(time.Second)
	for i := 0; i < 3; i++ {
		if _, err := s.limiter.Allow(s.ctx, "burst"); err == nil {
			allowed++
		}
	}
	require.Equal(s.T(), 6, allowed)
}

func (s *MemoryLimiterTestSuite) TestKeysAreIndependent() {
	for i := 0; i < 3; i++ {
		_, err := s.limiter.Allow(s.ctx, "a")
		require.NoError(s.T(), err)
	}
	_, err := s.limiter.Allow(s.ctx, "a")
	require.Error(s.T(), err)

	_, err = s.limiter.Allow(s.ctx, "b")
	require.NoError(s.T(), err)
}

func (s *MemoryLimiterTestSuite) TestSweepRemovesExpiredOnly() {
	_, _ = s.store.Increment(s.ctx, "old", time.Second)
	s.clock.Advance(600 * time.Millisecond)
	_, _ = s.store.Increment(s.ctx, "new", time.Second)
	s.clock.Advance(500 * time.Millisecond)

	require.Equal(s.T(), 1, s.store.Sweep())
	require.Equal(s.T(), 1, s.store.Len())

	c, err := s.store.Increment(s.ctx, "old", time.Second)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, c.Count)
}

func (s *MemoryLimiterTestSuite) TestConcurrentIncrementsAreCounted() {
	store := NewMemoryStore(time.Millisecond)
	defer store.Close()

	const workers, perWorker = 16, 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := store.Increment(s.ctx, "hot", time.Hour)
				require.NoError(s.T(), err)
			}
		}()
	}
	wg.Wait()

	c, err := store.Increment(s.ctx, "hot", time.Hour)
	require.NoError(s.T(), err)
	require.Equal(s.T(), workers*perWorker+1, c.Count)
}

type brokenStore struct{}

func (brokenStore) Increment(context.Context, string, time.Duration) (Counter, error) {
	return Counter{}, errors.New("connection refused")
}

func (s *MemoryLimiterTestSuite) TestStoreFailureFailsOpen() {
	l := NewLimiter("broken", Rule{Max: 1, Window: time.Minute}, brokenStore{})
	for i := 0; i < 3; i++ {
		res, err := l.Allow(s.ctx, "k")
		require.NoError(s.T(), err)
		require.True(s.T(), res.Allowed)
	}
}

func TestMemoryRegistryDefaults(t *testing.T) {
	r := NewMemoryRegistry(DefaultRules())
	defer r.Close()

	api, err := r.Get("api")
	require.NoError(t, err)
	require.Equal(t, 60, api.Rule().Max)
	require.Equal(t, time.Minute, api.Rule().Window)

	general := r.MustGet("general")
	require.Equal(t, 15*time.Minute, general.Rule().Window)

	_, err = r.Get("missing")
	require.Error(t, err)
}

func TestClientIP(t *testing.T) {
	r := &http.Request{RemoteAddr: "203.0.113.9:51234"}
	require.Equal(t, "203.0.113.9", ClientIP(r))

	r.RemoteAddr = "203.0.113.9"
	require.Equal(t, "203.0.113.9", ClientIP(r))

	r.RemoteAddr = ""
	require.Equal(t, "unknown", ClientIP(r))
}
