package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/domain/repository"
)

type txStore struct {
	st  *state
	now func() time.Time
}

var _ repository.Stores = (*txStore)(nil)

func (t *txStore) stamp(b *model.BaseModel) {
	b.EnsureID()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = t.now()
	}
	b.UpdatedAt = t.now()
}

func paginate(total, page, pageSize int) (int, int) {
	if page < 1 || pageSize < 1 {
		return 0, total
	}
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return start, end
}

// product

func (t *txStore) CreateProduct(ctx context.Context, product *model.Product) error {
	t.stamp(&product.BaseModel)
	if _, ok := t.st.products[product.ID]; ok {
		return fmt.Errorf("%w: product %s", repository.ErrDuplicate, product.ID)
	}
	t.st.products[product.ID] = *product
	return nil
}

func (t *txStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", repository.ErrNotFound, id)
	}
	return &p, nil
}

func (t *txStore) LockProducts(ctx context.Context, ids []string) ([]model.Product, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	products := make([]model.Product, 0, len(sorted))
	for _, id := range sorted {
		if p, ok := t.st.products[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

func (t *txStore) DecrementStock(ctx context.Context, productID string, quantity int) error {
	p, ok := t.st.products[productID]
	if !ok {
		return fmt.Errorf("%w: product %s", repository.ErrNotFound, productID)
	}
	if p.Stock < quantity {
		return fmt.Errorf("%w: product %s has %d", repository.ErrStockNotEnough, productID, p.Stock)
	}
	p.Stock -= quantity
	p.UpdatedAt = t.now()
	t.st.products[productID] = p
	return nil
}

func (t *txStore) IncrementStock(ctx context.Context, productID string, quantity int) error {
	p, ok := t.st.products[productID]
	if !ok {
		return fmt.Errorf("%w: product %s", repository.ErrNotFound, productID)
	}
	p.Stock += quantity
	p.UpdatedAt = t.now()
	t.st.products[productID] = p
	return nil
}

// cart

func (t *txStore) AddCartItem(ctx context.Context, item *model.CartItem) error {
	for id, existing := range t.st.cart {
		if existing.UserID == item.UserID && existing.ProductID == item.ProductID {
			existing.Quantity += item.Quantity
			existing.UpdatedAt = t.now()
			t.st.cart[id] = existing
			*item = existing
			return nil
		}
	}
	t.stamp(&item.BaseModel)
	stored := *item
	stored.Product = nil
	t.st.cart[item.ID] = stored
	return nil
}

func (t *txStore) ListCartItems(ctx context.Context, userID string) ([]model.CartItem, error) {
	items := []model.CartItem{}
	for _, item := range t.st.cart {
		if item.UserID != userID {
			continue
		}
		if p, ok := t.st.products[item.ProductID]; ok {
			item.Product = &p
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// LockCartItems 交易本身已序列化, 不帶商品
func (t *txStore) LockCartItems(ctx context.Context, userID string) ([]model.CartItem, error) {
	items, err := t.ListCartItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Product = nil
	}
	return items, nil
}

func (t *txStore) ClearCart(ctx context.Context, userID string) (int64, error) {
	var n int64
	for id, item := range t.st.cart {
		if item.UserID == userID {
			delete(t.st.cart, id)
			n++
		}
	}
	return n, nil
}

// address

func (t *txStore) CreateAddress(ctx context.Context, address *model.Address) error {
	t.stamp(&address.BaseModel)
	t.st.addresses[address.ID] = *address
	return nil
}

func (t *txStore) FindOwnedAddress(ctx context.Context, addressID, userID string) (*model.Address, error) {
	a, ok := t.st.addresses[addressID]
	if !ok || a.UserID != userID {
		return nil, fmt.Errorf("%w: address %s", repository.ErrNotFound, addressID)
	}
	return &a, nil
}

// coupon

func (t *txStore) CreateCoupon(ctx context.Context, coupon *model.Coupon) error {
	for _, c := range t.st.coupons {
		if c.Code == coupon.Code {
			return fmt.Errorf("%w: coupon code %s", repository.ErrDuplicate, coupon.Code)
		}
	}
	t.stamp(&coupon.BaseModel)
	t.st.coupons[coupon.ID] = *coupon
	return nil
}

func (t *txStore) GetCoupon(ctx context.Context, id string) (*model.Coupon, error) {
	c, ok := t.st.coupons[id]
	if !ok {
		return nil, fmt.Errorf("%w: coupon %s", repository.ErrNotFound, id)
	}
	return &c, nil
}

func (t *txStore) FindCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	for _, c := range t.st.coupons {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: coupon code %s", repository.ErrNotFound, code)
}

func (t *txStore) ListCoupons(ctx context.Context, page, pageSize int) ([]model.Coupon, int64, error) {
	coupons := make([]model.Coupon, 0, len(t.st.coupons))
	for _, c := range t.st.coupons {
		coupons = append(coupons, c)
	}
	sort.Slice(coupons, func(i, j int) bool {
		return coupons[i].CreatedAt.After(coupons[j].CreatedAt)
	})
	start, end := paginate(len(coupons), page, pageSize)
	return coupons[start:end], int64(len(coupons)), nil
}

func (t *txStore) UpdateCoupon(ctx context.Context, coupon *model.Coupon) error {
	if _, ok := t.st.coupons[coupon.ID]; !ok {
		return fmt.Errorf("%w: coupon %s", repository.ErrNotFound, coupon.ID)
	}
	coupon.UpdatedAt = t.now()
	t.st.coupons[coupon.ID] = *coupon
	return nil
}

func (t *txStore) DeleteCoupon(ctx context.Context, id string) error {
	if _, ok := t.st.coupons[id]; !ok {
		return fmt.Errorf("%w: coupon %s", repository.ErrNotFound, id)
	}
	delete(t.st.coupons, id)
	return nil
}

func (t *txStore) CountCouponUsage(ctx context.Context, couponID, userID string) (int64, error) {
	var n int64
	for _, u := range t.st.usages {
		if u.CouponID == couponID && u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (t *txStore) CountCouponUsageTotal(ctx context.Context, couponID string) (int64, error) {
	var n int64
	for _, u := range t.st.usages {
		if u.CouponID == couponID {
			n++
		}
	}
	return n, nil
}

func (t *txStore) HasUsageForOrder(ctx context.Context, orderID string) (bool, error) {
	for _, u := range t.st.usages {
		if u.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (t *txStore) RecordCouponUsage(ctx context.Context, usage *model.CouponUsage) error {
	for _, u := range t.st.usages {
		if u.OrderID == usage.OrderID {
			return fmt.Errorf("%w: usage for order %s", repository.ErrDuplicate, usage.OrderID)
		}
	}
	t.stamp(&usage.BaseModel)
	t.st.usages[usage.ID] = *usage
	return nil
}

func (t *txStore) IncrementCouponUsage(ctx context.Context, couponID string) error {
	c, ok := t.st.coupons[couponID]
	if !ok {
		return fmt.Errorf("%w: coupon %s", repository.ErrNotFound, couponID)
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return fmt.Errorf("%w: coupon %s", repository.ErrLimitReached, couponID)
	}
	c.UsageCount++
	c.UpdatedAt = t.now()
	t.st.coupons[couponID] = c
	return nil
}

// order

func (t *txStore) CreateOrder(ctx context.Context, order *model.Order) error {
	for _, o := range t.st.orders {
		if o.OrderNumber == order.OrderNumber {
			return fmt.Errorf("%w: order number %s", repository.ErrDuplicate, order.OrderNumber)
		}
	}
	t.stamp(&order.BaseModel)
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		t.stamp(&order.Items[i].BaseModel)
	}
	stored := order.Clone()
	stored.Address = nil
	t.st.orders[order.ID] = stored
	t.st.seq++
	t.st.orderSeq[order.ID] = t.st.seq
	return nil
}

func (t *txStore) findOrder(orderNumber string) (*model.Order, error) {
	for _, o := range t.st.orders {
		if o.OrderNumber == orderNumber {
			found := o.Clone()
			if a, ok := t.st.addresses[found.AddressID]; ok {
				found.Address = &a
			}
			return found, nil
		}
	}
	return nil, fmt.Errorf("%w: order %s", repository.ErrNotFound, orderNumber)
}

func (t *txStore) GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	return t.findOrder(orderNumber)
}

func (t *txStore) LockOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	return t.findOrder(orderNumber)
}

func (t *txStore) SaveOrderState(ctx context.Context, order *model.Order) error {
	stored, ok := t.st.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: order %s", repository.ErrNotFound, order.ID)
	}
	stored.Status = order.Status
	stored.PaymentStatus = order.PaymentStatus
	stored.TrackingNumber = order.TrackingNumber
	stored.CancelledAt = order.CancelledAt
	stored.ShippedAt = order.ShippedAt
	stored.DeliveredAt = order.DeliveredAt
	stored.UpdatedAt = t.now()
	return nil
}

func (t *txStore) SaveOrderDiscount(ctx context.Context, order *model.Order) error {
	stored, ok := t.st.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: order %s", repository.ErrNotFound, order.ID)
	}
	stored.CouponCode = order.CouponCode
	stored.Discount = order.Discount
	stored.Total = order.Total
	stored.UpdatedAt = t.now()
	return nil
}

func (t *txStore) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.Order, int64, error) {
	orders := []model.Order{}
	for _, o := range t.st.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		c := o.Clone()
		if a, ok := t.st.addresses[c.AddressID]; ok {
			c.Address = &a
		}
		orders = append(orders, *c)
	}
	sort.Slice(orders, func(i, j int) bool {
		return t.st.orderSeq[orders[i].ID] > t.st.orderSeq[orders[j].ID]
	})
	start, end := paginate(len(orders), filter.Page, filter.PageSize)
	return orders[start:end], int64(len(orders)), nil
}

// outbox

func (t *txStore) AddOutboxEvent(ctx context.Context, event *model.OutboxEvent) error {
	t.stamp(&event.BaseModel)
	t.st.outbox[event.ID] = *event
	return nil
}

func (t *txStore) ListPendingOutboxEvents(ctx context.Context, limit, maxAttempts int) ([]model.OutboxEvent, error) {
	events := []model.OutboxEvent{}
	for _, e := range t.st.outbox {
		if e.PublishedAt == nil && e.Attempts < maxAttempts {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Attempts != events[j].Attempts {
			return events[i].Attempts < events[j].Attempts
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (t *txStore) MarkOutboxEventPublished(ctx context.Context, id string) error {
	e, ok := t.st.outbox[id]
	if !ok {
		return fmt.Errorf("%w: outbox event %s", repository.ErrNotFound, id)
	}
	now := t.now()
	e.PublishedAt = &now
	e.Attempts++
	e.LastError = ""
	t.st.outbox[id] = e
	return nil
}

func (t *txStore) MarkOutboxEventFailed(ctx context.Context, id string, cause error) error {
	e, ok := t.st.outbox[id]
	if !ok {
		return fmt.Errorf("%w: outbox event %s", repository.ErrNotFound, id)
	}
	e.Attempts++
	if cause != nil {
		e.LastError = cause.Error()
	}
	t.st.outbox[id] = e
	return nil
}
