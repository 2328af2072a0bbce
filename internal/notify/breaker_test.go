package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	mock_notify "github.com/RoyceAzure/lab/storefront/internal/notify/mock"
	"github.com/golang/mock/gomock"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"
)

func TestBreakerStopsCallingOpenPublisher(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	next := mock_notify.NewMockPublisher(ctrl)
	// 只允許打到下游兩次, 之後由 breaker 直接拒絕
	next.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down")).Times(2)
	next.EXPECT().Close().Return(nil)

	p := NewBreakerPublisher("test", next, BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute})
	event := model.OutboxEvent{AggregateID: "HOL-X-0001", EventType: model.EventOrderConfirmed}

	for i := 0; i < 2; i++ {
		require.Error(t, p.Publish(context.Background(), event))
	}
	require.Equal(t, gobreaker.StateOpen, p.State())
	require.ErrorIs(t, p.Publish(context.Background(), event), gobreaker.ErrOpenState)
	require.NoError(t, p.Close())
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	next := mock_notify.NewMockPublisher(ctrl)
	event := model.OutboxEvent{AggregateID: "HOL-X-0002", EventType: model.EventOrderShipped}
	next.EXPECT().Publish(gomock.Any(), event).Return(nil).Times(3)

	p := NewBreakerPublisher("test", next, DefaultBreakerConfig())
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Publish(context.Background(), event))
	}
	require.Equal(t, gobreaker.StateClosed, p.State())
}
