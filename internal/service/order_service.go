package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/RoyceAzure/lab/storefront/internal/constants"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/domain/repository"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/apperr"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/money"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	maxNotesLength        = 500
	notificationTimeout   = 5 * time.Second
	defaultStoreTxTimeout = 10 * time.Second
)

type IOrderService interface {
	PlaceOrder(ctx context.Context, in PlaceOrderInput) (*model.Order, error)
	CancelOrder(ctx context.Context, orderNumber, userID string) (*model.Order, error)
	UpdateStatus(ctx context.Context, orderNumber string, cmd OrderCommand) (*model.Order, error)
	GetOrder(ctx context.Context, orderNumber string, caller model.Identity) (*model.Order, error)
	ListOrders(ctx context.Context, userID string, in ListOrdersInput) (*Page[model.Order], error)
	ListAllOrders(ctx context.Context, in ListOrdersInput) (*Page[model.Order], error)
}

var _ IOrderService = (*OrderService)(nil)

// errCartChanged 鎖定後清除的筆數和讀到的不同, 整筆交易放棄
var errCartChanged = errors.New("cart changed during checkout")

type PlaceOrderInput struct {
	UserID        string
	AddressID     string
	PaymentMethod model.PaymentMethod
	CouponCode    string
	Notes         string
}

type ListOrdersInput struct {
	Status   model.OrderStatus
	Page     int
	PageSize int
}

type ShippingPolicy struct {
	// 小計嚴格大於門檻才免運
	FreeShippingThreshold decimal.Decimal
	FlatFee               decimal.Decimal
}

func (p ShippingPolicy) Cost(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	return p.FlatFee
}

type OrderService struct {
	store          repository.UnitOfWork
	notifier       Notifier
	shipping       atomic.Pointer[ShippingPolicy]
	txTimeout      time.Duration
	now            func() time.Time
	newOrderNumber func(time.Time) string
	inflight       sync.WaitGroup
}

type OrderServiceOption func(*OrderService)

func WithOrderClock(now func() time.Time) OrderServiceOption {
	return func(s *OrderService) {
		s.now = now
	}
}

func WithOrderNumberGenerator(gen func(time.Time) string) OrderServiceOption {
	return func(s *OrderService) {
		s.newOrderNumber = gen
	}
}

func WithTxTimeout(d time.Duration) OrderServiceOption {
	return func(s *OrderService) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

func NewOrderService(store repository.UnitOfWork, notifier Notifier, shipping ShippingPolicy, opts ...OrderServiceOption) *OrderService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	s := &OrderService{
		store:          store,
		notifier:       notifier,
		txTimeout:      defaultStoreTxTimeout,
		now:            time.Now,
		newOrderNumber: GenerateOrderNumber,
	}
	s.shipping.Store(&shipping)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetShippingPolicy 之後的下單套用新的運費, 已成立的訂單不受影響
func (s *OrderService) SetShippingPolicy(p ShippingPolicy) {
	s.shipping.Store(&p)
}

func (s *OrderService) CurrentShipping() ShippingPolicy {
	return *s.shipping.Load()
}

func validatePlaceOrder(in PlaceOrderInput) error {
	if in.UserID == "" {
		return apperr.New(apperr.UnauthenticatedCode, "Authentication required")
	}
	if in.AddressID == "" {
		return apperr.New(apperr.InvalidArgumentCode, "addressId is required")
	}
	if !in.PaymentMethod.IsValid() {
		return apperr.New(apperr.InvalidArgumentCode, "paymentMethod must be one of COD, ONLINE, UPI")
	}
	if utf8.RuneCountInString(in.Notes) > maxNotesLength {
		return apperr.Newf(apperr.InvalidArgumentCode, "notes cannot exceed %d characters", maxNotesLength)
	}
	return nil
}

/*
PlaceOrder 把購物車轉成訂單
驗證全部在異動前完成, 扣庫存 建訂單 清購物車 記優惠券 在同一個交易
商品列以 id 升冪鎖定, 扣庫存本身也是條件式更新, 兩者一起避免超賣
通知在 commit 之後非同步送出
*/
func (s *OrderService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*model.Order, error) {
	if in.PaymentMethod == "" {
		in.PaymentMethod = model.PaymentMethodCOD
	}
	if err := validatePlaceOrder(in); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var order *model.Order
	err := s.store.Transaction(ctx, func(tx repository.Stores) error {
		// 鎖住購物車列, 重複送出的結帳會等前一筆 commit 後讀到空車
		lines, err := tx.LockCartItems(ctx, in.UserID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return apperr.New(apperr.EmptyCartCode, "Cart is empty")
		}

		address, err := tx.FindOwnedAddress(ctx, in.AddressID, in.UserID)
		if err != nil {
			return notFoundOr(err, apperr.New(apperr.AddressNotFoundCode, "Address not found"))
		}

		products, err := tx.LockProducts(ctx, cartProductIDs(lines))
		if err != nil {
			return err
		}
		byID := make(map[string]model.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		subtotal := decimal.Zero
		items := make([]model.OrderItem, 0, len(lines))
		for _, line := range lines {
			p, ok := byID[line.ProductID]
			if !ok {
				return apperr.Newf(apperr.ProductNotFoundCode, "Product %s is no longer available", line.ProductID)
			}
			if p.Stock < line.Quantity {
				return apperr.InsufficientStock(p.ID, p.Name, p.Stock)
			}
			item := model.OrderItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    line.Quantity,
				Price:       p.Price,
			}
			subtotal = subtotal.Add(item.LineTotal())
			items = append(items, item)
		}
		shippingCost := s.CurrentShipping().Cost(subtotal)

		discount := decimal.Zero
		var coupon *model.Coupon
		if strings.TrimSpace(in.CouponCode) != "" {
			coupon, discount, err = evaluateCoupon(ctx, tx, in.CouponCode, subtotal, in.UserID, s.now())
			if err != nil {
				return err
			}
			// 折扣不超過應付金額, total 不會小於 0
			discount = money.Min(discount, subtotal.Add(shippingCost))
		}

		for _, item := range items {
			if err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return s.stockFailure(ctx, tx, item, err)
			}
		}

		order = &model.Order{
			OrderNumber:   s.newOrderNumber(s.now()),
			UserID:        in.UserID,
			AddressID:     address.ID,
			Items:         items,
			PaymentMethod: in.PaymentMethod,
			Notes:         in.Notes,
			Subtotal:      subtotal,
			ShippingCost:  shippingCost,
			Discount:      discount,
			Total:         subtotal.Add(shippingCost).Sub(discount),
			Status:        model.OrderStatusPending,
			PaymentStatus: model.PaymentStatusPending,
		}
		if coupon != nil {
			order.CouponCode = &coupon.Code
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		order.Address = address

		cleared, err := tx.ClearCart(ctx, in.UserID)
		if err != nil {
			return err
		}
		if cleared != int64(len(lines)) {
			return fmt.Errorf("%w: cart of %s changed during checkout, %d of %d lines cleared",
				errCartChanged, in.UserID, cleared, len(lines))
		}
		if coupon != nil {
			if err := redeemCoupon(ctx, tx, coupon, in.UserID, order.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, failure("place order", err)
	}

	log.Info().Str("order_number", order.OrderNumber).Str("user_id", order.UserID).
		Str("total", order.Total.String()).Msg("order placed")
	s.afterCommit("order confirmed", order, s.notifier.OrderConfirmed)
	return order, nil
}

// stockFailure 條件式扣減失敗代表鎖定後仍被別人扣走, 回報目前剩餘數量
func (s *OrderService) stockFailure(ctx context.Context, tx repository.ProductStore, item model.OrderItem, err error) error {
	if !errors.Is(err, repository.ErrStockNotEnough) {
		return err
	}
	available := 0
	if p, getErr := tx.GetProduct(ctx, item.ProductID); getErr == nil {
		available = p.Stock
	}
	return apperr.InsufficientStock(item.ProductID, item.ProductName, available)
}

func cartProductIDs(lines []model.CartItem) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	sort.Strings(ids)
	return ids
}

func restoreStock(ctx context.Context, tx repository.ProductStore, items []model.OrderItem) error {
	for _, item := range items {
		if err := tx.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("restore stock of %s: %w", item.ProductID, err)
		}
	}
	return nil
}

// CancelOrder 顧客取消, 回補庫存, 優惠券使用紀錄保留不退
func (s *OrderService) CancelOrder(ctx context.Context, orderNumber, userID string) (*model.Order, error) {
	if userID == "" {
		return nil, apperr.New(apperr.UnauthenticatedCode, "Authentication required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var order *model.Order
	err := s.store.Transaction(ctx, func(tx repository.Stores) error {
		o, err := tx.LockOrderByNumber(ctx, orderNumber)
		if err != nil {
			return notFoundOr(err, apperr.New(apperr.OrderNotFoundCode, "Order not found"))
		}
		if o.UserID != userID {
			return apperr.New(apperr.UnauthorizedCode, "Unauthorized")
		}
		if !customerCancellable[o.Status] {
			return apperr.New(apperr.InvalidStateTransitionCode, "Order cannot be cancelled at this stage")
		}

		now := s.now()
		o.Status = model.OrderStatusCancelled
		o.CancelledAt = &now
		if err := tx.SaveOrderState(ctx, o); err != nil {
			return err
		}
		if err := restoreStock(ctx, tx, o.Items); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, failure("cancel order", err)
	}

	log.Info().Str("order_number", order.OrderNumber).Str("user_id", userID).Msg("order cancelled")
	return order, nil
}

// UpdateStatus 管理端更新狀態, 出貨與送達會發通知
func (s *OrderService) UpdateStatus(ctx context.Context, orderNumber string, cmd OrderCommand) (*model.Order, error) {
	if cmd == nil {
		return nil, apperr.New(apperr.InvalidArgumentCode, "An order action is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var (
		order    *model.Order
		previous model.OrderStatus
	)
	err := s.store.Transaction(ctx, func(tx repository.Stores) error {
		o, err := tx.LockOrderByNumber(ctx, orderNumber)
		if err != nil {
			return notFoundOr(err, apperr.New(apperr.OrderNotFoundCode, "Order not found"))
		}
		previous = o.Status
		if err := cmd.apply(o, s.now()); err != nil {
			return err
		}
		if err := tx.SaveOrderState(ctx, o); err != nil {
			return err
		}
		if _, ok := cmd.(CancelByAdmin); ok {
			if err := restoreStock(ctx, tx, o.Items); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, failure("update order status", err)
	}

	log.Info().Str("order_number", order.OrderNumber).Str("action", cmd.Name()).
		Str("from", string(previous)).Str("to", string(order.Status)).Msg("order status updated")

	if previous != order.Status {
		switch order.Status {
		case model.OrderStatusShipped:
			s.afterCommit("order shipped", order, s.notifier.OrderShipped)
		case model.OrderStatusDelivered:
			s.afterCommit("order delivered", order, s.notifier.OrderDelivered)
		}
	}
	return order, nil
}

// GetOrder 本人或管理員可查看
func (s *OrderService) GetOrder(ctx context.Context, orderNumber string, caller model.Identity) (*model.Order, error) {
	order, err := s.store.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, failure("get order", notFoundOr(err, apperr.New(apperr.OrderNotFoundCode, "Order not found")))
	}
	if order.UserID != caller.UserID && !caller.IsAdmin() {
		return nil, apperr.New(apperr.UnauthorizedCode, "Unauthorized")
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID string, in ListOrdersInput) (*Page[model.Order], error) {
	if userID == "" {
		return nil, apperr.New(apperr.UnauthenticatedCode, "Authentication required")
	}
	return s.listOrders(ctx, userID, in, constants.DefaultPagingSize)
}

func (s *OrderService) ListAllOrders(ctx context.Context, in ListOrdersInput) (*Page[model.Order], error) {
	return s.listOrders(ctx, "", in, constants.DefaultAdminPagingSize)
}

func (s *OrderService) listOrders(ctx context.Context, userID string, in ListOrdersInput, defaultSize int) (*Page[model.Order], error) {
	if in.Status != "" && !in.Status.IsValid() {
		return nil, apperr.Newf(apperr.InvalidArgumentCode, "Unknown order status %q", in.Status)
	}
	page, pageSize := normalizePaging(in.Page, in.PageSize, defaultSize)
	orders, total, err := s.store.ListOrders(ctx, repository.OrderFilter{
		UserID:   userID,
		Status:   in.Status,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, failure("list orders", err)
	}
	return newPage(orders, page, pageSize, total), nil
}

// afterCommit 通知與請求脫鉤, 用獨立 context, 失敗只記 log
func (s *OrderService) afterCommit(name string, order *model.Order, send func(context.Context, *model.Order) error) {
	snapshot := order.Clone()
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("order_number", snapshot.OrderNumber).Msgf("%s notification panicked", name)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
		defer cancel()
		if err := send(ctx, snapshot); err != nil {
			log.Error().Err(err).Str("order_number", snapshot.OrderNumber).Msgf("failed to dispatch %s notification", name)
		}
	}()
}

// Wait 等待尚未送出的通知, 關機時使用
func (s *OrderService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait notifications: %w", ctx.Err())
	}
}
