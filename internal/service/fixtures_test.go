package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/domain/repository"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/memstore"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/apperr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func intPtr(v int) *int { return &v }

func requireCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, apperr.CodeOf(err), "錯誤代碼不符: %v", err)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (n *recordingNotifier) record(kind string, o *model.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, kind+":"+o.OrderNumber)
	return n.err
}

func (n *recordingNotifier) OrderConfirmed(_ context.Context, o *model.Order) error {
	return n.record("confirmed", o)
}

func (n *recordingNotifier) OrderShipped(_ context.Context, o *model.Order) error {
	return n.record("shipped", o)
}

func (n *recordingNotifier) OrderDelivered(_ context.Context, o *model.Order) error {
	return n.record("delivered", o)
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// failingOrderStores 模擬寫入訂單明細時失敗
type failingOrderStores struct {
	repository.Stores
	err error
}

func (f failingOrderStores) CreateOrder(context.Context, *model.Order) error {
	return f.err
}

type failingOrderUoW struct {
	*memstore.Store
	err error
}

func (f failingOrderUoW) Transaction(ctx context.Context, fn func(tx repository.Stores) error) error {
	return f.Store.Transaction(ctx, func(tx repository.Stores) error {
		return fn(failingOrderStores{Stores: tx, err: f.err})
	})
}

// racedCartStores 模擬鎖定之後購物車仍被別的連線刪掉一部分
type racedCartStores struct {
	repository.Stores
}

func (r racedCartStores) ClearCart(ctx context.Context, userID string) (int64, error) {
	n, err := r.Stores.ClearCart(ctx, userID)
	return n - 1, err
}

type racedCartUoW struct {
	*memstore.Store
}

func (r racedCartUoW) Transaction(ctx context.Context, fn func(tx repository.Stores) error) error {
	return r.Store.Transaction(ctx, func(tx repository.Stores) error {
		return fn(racedCartStores{Stores: tx})
	})
}

type shopFixture struct {
	store   *memstore.Store
	product *model.Product
	address *model.Address
	userID  string
}

func newShopFixture(t *testing.T, stock int) *shopFixture {
	t.Helper()
	ctx := context.Background()
	f := &shopFixture{store: memstore.New(), userID: "user-1"}

	f.product = &model.Product{Name: "Silk Lehenga", Price: dec(500), Stock: stock, IsActive: true}
	require.NoError(t, f.store.CreateProduct(ctx, f.product))

	f.address = f.addAddress(t, f.userID)
	return f
}

func (f *shopFixture) addAddress(t *testing.T, userID string) *model.Address {
	t.Helper()
	addr := &model.Address{UserID: userID, FullName: "Asha", Phone: "9999999999", Line1: "1 MG Road", City: "Jaipur", State: "RJ", PostalCode: "302001"}
	require.NoError(t, f.store.CreateAddress(context.Background(), addr))
	return addr
}

func (f *shopFixture) addToCart(t *testing.T, userID, productID string, qty int) {
	t.Helper()
	require.NoError(t, f.store.AddCartItem(context.Background(), &model.CartItem{UserID: userID, ProductID: productID, Quantity: qty}))
}

func (f *shopFixture) stock(t *testing.T) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), f.product.ID)
	require.NoError(t, err)
	return p.Stock
}

func (f *shopFixture) addCoupon(t *testing.T, c *model.Coupon) *model.Coupon {
	t.Helper()
	if c.ValidFrom.IsZero() {
		c.ValidFrom = testNow.Add(-24 * time.Hour)
	}
	if c.ValidTo.IsZero() {
		c.ValidTo = testNow.Add(24 * time.Hour)
	}
	if c.PerUserLimit == 0 {
		c.PerUserLimit = 1
	}
	require.NoError(t, f.store.CreateCoupon(context.Background(), c))
	return c
}
