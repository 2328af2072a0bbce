package service

import (
	"strings"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/apperr"
)

// 管理端可走的狀態轉換, 未列出的一律拒絕
var orderTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusPending:    {model.OrderStatusConfirmed, model.OrderStatusCancelled},
	model.OrderStatusConfirmed:  {model.OrderStatusProcessing, model.OrderStatusShipped, model.OrderStatusCancelled},
	model.OrderStatusProcessing: {model.OrderStatusShipped, model.OrderStatusCancelled},
	model.OrderStatusShipped:    {model.OrderStatusDelivered},
	model.OrderStatusDelivered:  {model.OrderStatusReturned},
}

var paymentTransitions = map[model.PaymentStatus][]model.PaymentStatus{
	model.PaymentStatusPending: {model.PaymentStatusPaid, model.PaymentStatusFailed},
	model.PaymentStatusFailed:  {model.PaymentStatusPaid},
	model.PaymentStatusPaid:    {model.PaymentStatusRefunded},
}

// 顧客只能取消這兩個狀態的訂單
var customerCancellable = map[model.OrderStatus]bool{
	model.OrderStatusPending:   true,
	model.OrderStatusConfirmed: true,
}

func CanTransition(from, to model.OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CanTransitionPayment(from, to model.PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func moveTo(o *model.Order, to model.OrderStatus) error {
	if !CanTransition(o.Status, to) {
		return apperr.Newf(apperr.InvalidStateTransitionCode, "Order cannot move from %s to %s", o.Status, to)
	}
	o.Status = to
	return nil
}

// OrderCommand 管理端對訂單的單一操作
type OrderCommand interface {
	Name() string
	apply(o *model.Order, now time.Time) error
}

type ConfirmOrder struct{}

func (ConfirmOrder) Name() string { return "confirm" }

func (ConfirmOrder) apply(o *model.Order, _ time.Time) error {
	return moveTo(o, model.OrderStatusConfirmed)
}

type StartProcessing struct{}

func (StartProcessing) Name() string { return "process" }

func (StartProcessing) apply(o *model.Order, _ time.Time) error {
	return moveTo(o, model.OrderStatusProcessing)
}

type MarkShipped struct {
	TrackingNumber string
}

func (MarkShipped) Name() string { return "ship" }

func (c MarkShipped) apply(o *model.Order, now time.Time) error {
	tracking := strings.TrimSpace(c.TrackingNumber)
	if tracking == "" {
		return apperr.New(apperr.InvalidArgumentCode, "trackingNumber is required to ship an order")
	}
	if err := moveTo(o, model.OrderStatusShipped); err != nil {
		return err
	}
	o.TrackingNumber = &tracking
	o.ShippedAt = &now
	return nil
}

type MarkDelivered struct{}

func (MarkDelivered) Name() string { return "deliver" }

func (MarkDelivered) apply(o *model.Order, now time.Time) error {
	if err := moveTo(o, model.OrderStatusDelivered); err != nil {
		return err
	}
	o.DeliveredAt = &now
	return nil
}

// CancelByAdmin 會回補庫存
type CancelByAdmin struct{}

func (CancelByAdmin) Name() string { return "cancel" }

func (CancelByAdmin) apply(o *model.Order, now time.Time) error {
	if err := moveTo(o, model.OrderStatusCancelled); err != nil {
		return err
	}
	o.CancelledAt = &now
	return nil
}

type MarkReturned struct{}

func (MarkReturned) Name() string { return "return" }

func (MarkReturned) apply(o *model.Order, _ time.Time) error {
	return moveTo(o, model.OrderStatusReturned)
}

// SetPaymentStatus 只動付款狀態
type SetPaymentStatus struct {
	Status model.PaymentStatus
}

func (SetPaymentStatus) Name() string { return "payment" }

func (c SetPaymentStatus) apply(o *model.Order, _ time.Time) error {
	if !c.Status.IsValid() {
		return apperr.Newf(apperr.InvalidArgumentCode, "Unsupported payment status %q", c.Status)
	}
	if !CanTransitionPayment(o.PaymentStatus, c.Status) {
		return apperr.Newf(apperr.InvalidStateTransitionCode, "Payment cannot move from %s to %s", o.PaymentStatus, c.Status)
	}
	o.PaymentStatus = c.Status
	return nil
}

// ParseOrderCommand 將 API 的 action 轉成指令
func ParseOrderCommand(action, trackingNumber, paymentStatus string) (OrderCommand, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "confirm":
		return ConfirmOrder{}, nil
	case "process":
		return StartProcessing{}, nil
	case "ship":
		return MarkShipped{TrackingNumber: trackingNumber}, nil
	case "deliver":
		return MarkDelivered{}, nil
	case "cancel":
		return CancelByAdmin{}, nil
	case "return":
		return MarkReturned{}, nil
	case "payment":
		return SetPaymentStatus{Status: model.PaymentStatus(strings.ToUpper(paymentStatus))}, nil
	default:
		return nil, apperr.Newf(apperr.InvalidArgumentCode, "Unknown order action %q", action)
	}
}
