package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/domain/repository"
)

/*
記憶體版 UnitOfWork, 給開發模式與測試使用
交易以單一 mutex 序列化, 交易內操作複本, fn 成功才 commit
*/
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

var _ repository.UnitOfWork = (*Store)(nil)

type StoreOption func(*Store)

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

func New(opts ...StoreOption) *Store {
	s := &Store{
		state: newState(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(&txStore{st: work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

// auto 單一操作, 直接作用在目前狀態
func (s *Store) auto() (*txStore, func()) {
	s.mu.Lock()
	return &txStore{st: s.state, now: s.now}, s.mu.Unlock
}

func (s *Store) CreateProduct(ctx context.Context, product *model.Product) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.CreateProduct(ctx, product)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.GetProduct(ctx, id)
}

func (s *Store) LockProducts(ctx context.Context, ids []string) ([]model.Product, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.LockProducts(ctx, ids)
}

func (s *Store) DecrementStock(ctx context.Context, productID string, quantity int) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.DecrementStock(ctx, productID, quantity)
}

func (s *Store) IncrementStock(ctx context.Context, productID string, quantity int) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.IncrementStock(ctx, productID, quantity)
}

func (s *Store) AddCartItem(ctx context.Context, item *model.CartItem) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.AddCartItem(ctx, item)
}

func (s *Store) ListCartItems(ctx context.Context, userID string) ([]model.CartItem, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.ListCartItems(ctx, userID)
}

func (s *Store) LockCartItems(ctx context.Context, userID string) ([]model.CartItem, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.LockCartItems(ctx, userID)
}

func (s *Store) ClearCart(ctx context.Context, userID string) (int64, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.ClearCart(ctx, userID)
}

func (s *Store) CreateAddress(ctx context.Context, address *model.Address) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.CreateAddress(ctx, address)
}

func (s *Store) FindOwnedAddress(ctx context.Context, addressID, userID string) (*model.Address, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.FindOwnedAddress(ctx, addressID, userID)
}

func (s *Store) CreateCoupon(ctx context.Context, coupon *model.Coupon) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.CreateCoupon(ctx, coupon)
}

func (s *Store) GetCoupon(ctx context.Context, id string) (*model.Coupon, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.GetCoupon(ctx, id)
}

func (s *Store) FindCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.FindCouponByCode(ctx, code)
}

func (s *Store) ListCoupons(ctx context.Context, page, pageSize int) ([]model.Coupon, int64, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.ListCoupons(ctx, page, pageSize)
}

func (s *Store) UpdateCoupon(ctx context.Context, coupon *model.Coupon) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.UpdateCoupon(ctx, coupon)
}

func (s *Store) DeleteCoupon(ctx context.Context, id string) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.DeleteCoupon(ctx, id)
}

func (s *Store) CountCouponUsage(ctx context.Context, couponID, userID string) (int64, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.CountCouponUsage(ctx, couponID, userID)
}

func (s *Store) CountCouponUsageTotal(ctx context.Context, couponID string) (int64, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.CountCouponUsageTotal(ctx, couponID)
}

func (s *Store) HasUsageForOrder(ctx context.Context, orderID string) (bool, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.HasUsageForOrder(ctx, orderID)
}

func (s *Store) RecordCouponUsage(ctx context.Context, usage *model.CouponUsage) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.RecordCouponUsage(ctx, usage)
}

func (s *Store) IncrementCouponUsage(ctx context.Context, couponID string) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.IncrementCouponUsage(ctx, couponID)
}

func (s *Store) CreateOrder(ctx context.Context, order *model.Order) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.CreateOrder(ctx, order)
}

func (s *Store) GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.GetOrderByNumber(ctx, orderNumber)
}

func (s *Store) LockOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.LockOrderByNumber(ctx, orderNumber)
}

func (s *Store) SaveOrderState(ctx context.Context, order *model.Order) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.SaveOrderState(ctx, order)
}

func (s *Store) SaveOrderDiscount(ctx context.Context, order *model.Order) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.SaveOrderDiscount(ctx, order)
}

func (s *Store) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.Order, int64, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.ListOrders(ctx, filter)
}

func (s *Store) AddOutboxEvent(ctx context.Context, event *model.OutboxEvent) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.AddOutboxEvent(ctx, event)
}

func (s *Store) ListPendingOutboxEvents(ctx context.Context, limit, maxAttempts int) ([]model.OutboxEvent, error) {
	tx, unlock := s.auto()
	defer unlock()
	return tx.ListPendingOutboxEvents(ctx, limit, maxAttempts)
}

func (s *Store) MarkOutboxEventPublished(ctx context.Context, id string) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.MarkOutboxEventPublished(ctx, id)
}

func (s *Store) MarkOutboxEventFailed(ctx context.Context, id string, cause error) error {
	tx, unlock := s.auto()
	defer unlock()
	return tx.MarkOutboxEventFailed(ctx, id, cause)
}
