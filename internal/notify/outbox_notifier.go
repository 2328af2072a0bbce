package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/domain/repository"
	"github.com/shopspring/decimal"
)

type OrderEventItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// OrderEventPayload 寫入 outbox 的訊息內容
type OrderEventPayload struct {
	OrderNumber    string              `json:"orderNumber"`
	UserID         string              `json:"userId"`
	Status         model.OrderStatus   `json:"status"`
	PaymentStatus  model.PaymentStatus `json:"paymentStatus"`
	PaymentMethod  model.PaymentMethod `json:"paymentMethod"`
	Subtotal       decimal.Decimal     `json:"subtotal"`
	ShippingCost   decimal.Decimal     `json:"shippingCost"`
	Discount       decimal.Decimal     `json:"discount"`
	Total          decimal.Decimal     `json:"total"`
	CouponCode     *string             `json:"couponCode,omitempty"`
	TrackingNumber *string             `json:"trackingNumber,omitempty"`
	Items          []OrderEventItem    `json:"items"`
	OccurredAt     time.Time           `json:"occurredAt"`
}

func newPayload(o *model.Order, now time.Time) OrderEventPayload {
	items := make([]OrderEventItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderEventItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
		})
	}
	return OrderEventPayload{
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		Status:         o.Status,
		PaymentStatus:  o.PaymentStatus,
		PaymentMethod:  o.PaymentMethod,
		Subtotal:       o.Subtotal,
		ShippingCost:   o.ShippingCost,
		Discount:       o.Discount,
		Total:          o.Total,
		CouponCode:     o.CouponCode,
		TrackingNumber: o.TrackingNumber,
		Items:          items,
		OccurredAt:     now,
	}
}

/*
OutboxNotifier 把訂單通知寫進 outbox, 由 OutboxPoller 非同步送出
只在交易 commit 之後被呼叫
*/
type OutboxNotifier struct {
	store repository.OutboxStore
	now   func() time.Time
}

func NewOutboxNotifier(store repository.OutboxStore) *OutboxNotifier {
	return &OutboxNotifier{store: store, now: time.Now}
}

func (n *OutboxNotifier) OrderConfirmed(ctx context.Context, order *model.Order) error {
	return n.enqueue(ctx, model.EventOrderConfirmed, order)
}

func (n *OutboxNotifier) OrderShipped(ctx context.Context, order *model.Order) error {
	return n.enqueue(ctx, model.EventOrderShipped, order)
}

func (n *OutboxNotifier) OrderDelivered(ctx context.Context, order *model.Order) error {
	return n.enqueue(ctx, model.EventOrderDelivered, order)
}

func (n *OutboxNotifier) enqueue(ctx context.Context, eventType model.OutboxEventType, order *model.Order) error {
	payload, err := json.Marshal(newPayload(order, n.now().UTC()))
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	event := &model.OutboxEvent{
		AggregateID: order.OrderNumber,
		EventType:   eventType,
		Payload:     payload,
	}
	if err := n.store.AddOutboxEvent(ctx, event); err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", eventType, order.OrderNumber, err)
	}
	return nil
}
