package repository

import (
	"context"
	"errors"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
)

var (
	// ErrNotFound 查無資料
	ErrNotFound = errors.New("record not found")
	// ErrStockNotEnough 庫存不足, 扣減後會小於 0
	ErrStockNotEnough = errors.New("product stock not enough")
	// ErrDuplicate 違反唯一限制
	ErrDuplicate = errors.New("duplicate record")
	// ErrLimitReached 優惠券已達總使用上限
	ErrLimitReached = errors.New("usage limit reached")
)

type ProductStore interface {
	CreateProduct(ctx context.Context, product *model.Product) error
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	// LockProducts 在交易內以 id 升冪鎖定, 不存在的 id 不會出現在結果
	LockProducts(ctx context.Context, ids []string) ([]model.Product, error)
	// DecrementStock 條件式扣減, 不足回 ErrStockNotEnough
	DecrementStock(ctx context.Context, productID string, quantity int) error
	IncrementStock(ctx context.Context, productID string, quantity int) error
}

type CartStore interface {
	AddCartItem(ctx context.Context, item *model.CartItem) error
	ListCartItems(ctx context.Context, userID string) ([]model.CartItem, error)
	// LockCartItems 在交易內鎖定購物車列, 已被其他交易刪除的列不會出現
	LockCartItems(ctx context.Context, userID string) ([]model.CartItem, error)
	// ClearCart 回傳刪除筆數
	ClearCart(ctx context.Context, userID string) (int64, error)
}

type AddressStore interface {
	CreateAddress(ctx context.Context, address *model.Address) error
	// FindOwnedAddress 地址不屬於 userID 時一樣回 ErrNotFound
	FindOwnedAddress(ctx context.Context, addressID, userID string) (*model.Address, error)
}

type CouponStore interface {
	CreateCoupon(ctx context.Context, coupon *model.Coupon) error
	GetCoupon(ctx context.Context, id string) (*model.Coupon, error)
	FindCouponByCode(ctx context.Context, code string) (*model.Coupon, error)
	ListCoupons(ctx context.Context, page, pageSize int) ([]model.Coupon, int64, error)
	UpdateCoupon(ctx context.Context, coupon *model.Coupon) error
	DeleteCoupon(ctx context.Context, id string) error
	CountCouponUsage(ctx context.Context, couponID, userID string) (int64, error)
	CountCouponUsageTotal(ctx context.Context, couponID string) (int64, error)
	HasUsageForOrder(ctx context.Context, orderID string) (bool, error)
	RecordCouponUsage(ctx context.Context, usage *model.CouponUsage) error
	// IncrementCouponUsage 條件式累加, 已達 UsageLimit 回 ErrLimitReached
	IncrementCouponUsage(ctx context.Context, couponID string) error
}

type OrderFilter struct {
	UserID   string
	Status   model.OrderStatus
	Page     int
	PageSize int
}

type OrderStore interface {
	// CreateOrder 連同明細一起寫入
	CreateOrder(ctx context.Context, order *model.Order) error
	GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error)
	// LockOrderByNumber 在交易內鎖定訂單列並帶出明細
	LockOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error)
	// SaveOrderState 只更新狀態相關欄位
	SaveOrderState(ctx context.Context, order *model.Order) error
	// SaveOrderDiscount 補套優惠券後更新 coupon_code, discount, total
	SaveOrderDiscount(ctx context.Context, order *model.Order) error
	// ListOrders 依建立時間新到舊
	ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, int64, error)
}

type OutboxStore interface {
	AddOutboxEvent(ctx context.Context, event *model.OutboxEvent) error
	// ListPendingOutboxEvents 只取 attempts < maxAttempts 的事件, 失敗次數少的優先
	ListPendingOutboxEvents(ctx context.Context, limit, maxAttempts int) ([]model.OutboxEvent, error)
	MarkOutboxEventPublished(ctx context.Context, id string) error
	MarkOutboxEventFailed(ctx context.Context, id string, cause error) error
}

// Stores 所有 repository 的集合, 交易內外使用同一組介面
type Stores interface {
	ProductStore
	CartStore
	AddressStore
	CouponStore
	OrderStore
	OutboxStore
}

type UnitOfWork interface {
	Stores
	// Transaction fn 回傳 error 時全部 rollback
	Transaction(ctx context.Context, fn func(tx Stores) error) error
}
