package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/memstore"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []model.OutboxEvent
	failWith  error
	failures  int
	// rejects 這些 aggregate 永遠送不出去
	rejects   map[string]bool
	rejected  int
}

func (p *fakePublisher) Publish(_ context.Context, event model.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rejects[event.AggregateID] {
		p.rejected++
		return errors.New("message too large")
	}
	if p.failures > 0 {
		p.failures--
		return p.failWith
	}
	p.published = append(p.published, event)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) Published() []model.OutboxEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.OutboxEvent(nil), p.published...)
}

func sampleOrder(number string) *model.Order {
	coupon := "FEST10"
	return &model.Order{
		OrderNumber:   number,
		UserID:        "user-1",
		PaymentMethod: model.PaymentMethodUPI,
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
		Subtotal:      decimal.NewFromInt(1000),
		ShippingCost:  decimal.NewFromInt(50),
		Discount:      decimal.NewFromInt(100),
		Total:         decimal.NewFromInt(950),
		CouponCode:    &coupon,
		Items: []model.OrderItem{
			{ProductID: "p-1", ProductName: "Silk Lehenga", Quantity: 2, Price: decimal.NewFromInt(500)},
		},
	}
}

type OutboxTestSuite struct {
	suite.Suite
	store     *memstore.Store
	notifier  *OutboxNotifier
	publisher *fakePublisher
	poller    *OutboxPoller
	ctx       context.Context
}

func (s *OutboxTestSuite) SetupTest() {
	s.store = memstore.New()
	s.notifier = NewOutboxNotifier(s.store)
	s.publisher = &fakePublisher{}
	s.poller = NewOutboxPoller(s.store, s.publisher, 10*time.Millisecond, 10, 10)
	s.ctx = context.Background()
}

func TestOutboxSuite(t *testing.T) {
	suite.Run(t, new(OutboxTestSuite))
}

func (s *OutboxTestSuite) TestNotifierWritesOutboxEvents() {
	order := sampleOrder("HOL-A-0001")
	require.NoError(s.T(), s.notifier.OrderConfirmed(s.ctx, order))
	require.NoError(s.T(), s.notifier.OrderShipped(s.ctx, order))
	require.NoError(s.T(), s.notifier.OrderDelivered(s.ctx, order))

	events, err := s.store.ListPendingOutboxEvents(s.ctx, 10, 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), events, 3)

	types := map[model.OutboxEventType]bool{}
	for _, e := range events {
		require.Equal(s.T(), "HOL-A-0001", e.AggregateID)
		types[e.EventType] = true
	}
	require.True(s.T(), types[model.EventOrderConfirmed])
	require.True(s.T(), types[model.EventOrderShipped])
	require.True(s.T(), types[model.EventOrderDelivered])

	var payload OrderEventPayload
	require.NoError(s.T(), json.Unmarshal(events[0].Payload, &payload))
	require.Equal(s.T(), "HOL-A-0001", payload.OrderNumber)
	require.True(s.T(), decimal.NewFromInt(950).Equal(payload.Total))
	require.Len(s.T(), payload.Items, 1)
	require.Equal(s.T(), "FEST10", *payload.CouponCode)
}

func (s *OutboxTestSuite) TestPollerPublishesAndMarks() {
	require.NoError(s.T(), s.notifier.OrderConfirmed(s.ctx, sampleOrder("HOL-A-0001")))
	require.NoError(s.T(), s.notifier.OrderConfirmed(s.ctx, sampleOrder("HOL-A-0002")))

	n, err := s.poller.ProcessOnce(s.ctx)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 2, n)
	require.Len(s.T(), s.publisher.Published(), 2)

	pending, err := s.store.ListPendingOutboxEvents(s.ctx, 10, 10)
	require.NoError(s.T(), err)
	require.Empty(s.T(), pending)

	n, err = s.poller.ProcessOnce(s.ctx)
	require.NoError(s.T(), err)
	require.Zero(s.T(), n, "已發布的事件不可重送")
}

func (s *OutboxTestSuite) TestPollerRecordsFailureAndRetries() {
	s.publisher.failWith = errors.New("leader not available")
	s.publisher.failures = 1
	require.NoError(s.T(), s.notifier.OrderShipped(s.ctx, sampleOrder("HOL-A-0003")))

	n, err := s.poller.ProcessOnce(s.ctx)
	require.NoError(s.T(), err)
	require.Zero(s.T(), n)

	pending, err := s.store.ListPendingOutboxEvents(s.ctx, 10, 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), pending, 1)
	require.Equal(s.T(), 1, pending[0].Attempts)
	require.Contains(s.T(), pending[0].LastError, "leader not available")

	n, err = s.poller.ProcessOnce(s.ctx)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, n)
}

func (s *OutboxTestSuite) TestPoisonEventsDoNotStarveNewer() {
	s.publisher.rejects = map[string]bool{"HOL-P-0001": true, "HOL-P-0002": true}
	poller := NewOutboxPoller(s.store, s.publisher, time.Second, 2, 3)

	require.NoError(s.T(), s.notifier.OrderConfirmed(s.ctx, sampleOrder("HOL-P-0001")))
	require.NoError(s.T(), s.notifier.OrderConfirmed(s.ctx, sampleOrder("HOL-P-0002")))
	require.NoError(s.T(), s.notifier.OrderConfirmed(s.ctx, sampleOrder("HOL-P-0003")))

	for i := 0; i < 10; i++ {
		_, err := poller.ProcessOnce(s.ctx)
		require.NoError(s.T(), err)
	}

	published := s.publisher.Published()
	require.Len(s.T(), published, 1)
	require.Equal(s.T(), "HOL-P-0003", published[0].AggregateID)

	// 兩筆壞事件各試 3 次後停止
	require.Equal(s.T(), 6, s.publisher.rejected)
	pending, err := s.store.ListPendingOutboxEvents(s.ctx, 10, 3)
	require.NoError(s.T(), err)
	require.Empty(s.T(), pending)
	stuck, err := s.store.ListPendingOutboxEvents(s.ctx, 10, 100)
	require.NoError(s.T(), err)
	require.Len(s.T(), stuck, 2)
	for _, e := range stuck {
		require.Equal(s.T(), 3, e.Attempts)
		require.Contains(s.T(), e.LastError, "message too large")
	}
}

func (s *OutboxTestSuite) TestBreakerOpensAndDefersBatch() {
	s.publisher.failWith = errors.New("broker down")
	s.publisher.failures = 100
	breaker := NewBreakerPublisher("outbox", s.publisher, BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Hour})
	poller := NewOutboxPoller(s.store, breaker, time.Second, 10, 10)

	for i := 0; i < 4; i++ {
		require.NoError(s.T(), s.notifier.OrderConfirmed(s.ctx, sampleOrder(fmt.Sprintf("HOL-B-%04d", i))))
	}

	n, err := poller.ProcessOnce(s.ctx)
	require.NoError(s.T(), err)
	require.Zero(s.T(), n)
	require.Equal(s.T(), gobreaker.StateOpen, breaker.State())

	pending, err := s.store.ListPendingOutboxEvents(s.ctx, 10, 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), pending, 4)
	attempts := 0
	for _, e := range pending {
		attempts += e.Attempts
	}
	require.Equal(s.T(), 2, attempts, "breaker 打開後不再計入失敗")

	err = breaker.Publish(s.ctx, pending[0])
	require.ErrorIs(s.T(), err, gobreaker.ErrOpenState)
}

func (s *OutboxTestSuite) TestRunStopsWithContext() {
	require.NoError(s.T(), s.notifier.OrderConfirmed(s.ctx, sampleOrder("HOL-C-0001")))

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- s.poller.Run(ctx) }()

	require.Eventually(s.T(), func() bool {
		return len(s.publisher.Published()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(s.T(), err, context.Canceled)
	case <-time.After(2 * time.Second):
		s.T().Fatal("poller 未在 context 取消後結束")
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherMessageShape(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "order-notifications")

	event := model.OutboxEvent{AggregateID: "HOL-K-0001", EventType: model.EventOrderShipped, Payload: []byte(`{"orderNumber":"HOL-K-0001"}`)}
	event.ID = "evt-1"
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	require.Equal(t, "HOL-K-0001", string(msg.Key), "key 為訂單編號")
	require.JSONEq(t, `{"orderNumber":"HOL-K-0001"}`, string(msg.Value))
	require.Contains(t, msg.Headers, kafka.Header{Key: "event_type", Value: []byte("order.shipped")})
	require.Contains(t, msg.Headers, kafka.Header{Key: "event_id", Value: []byte("evt-1")})

	require.NoError(t, p.Close())
	require.True(t, w.closed)
	require.ErrorIs(t, p.Publish(context.Background(), event), ErrPublisherClosed)
	require.NoError(t, p.Close(), "重複關閉不報錯")
}

func TestKafkaConfigValidate(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "t"})
	require.Error(t, err)
	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)
}
