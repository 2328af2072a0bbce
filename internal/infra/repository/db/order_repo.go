package db

import (
	"context"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/domain/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateOrder 明細透過 association 一起寫入, address 不會被重寫
func (d *DbDao) CreateOrder(ctx context.Context, order *model.Order) error {
	return translate(d.conn(ctx).Omit("Address").Create(order).Error, "create order %s", order.OrderNumber)
}

func (d *DbDao) GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	var order model.Order
	err := d.conn(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		Preload("Address").
		Where("order_number = ?", orderNumber).
		First(&order).Error
	if err != nil {
		return nil, translate(err, "order %s", orderNumber)
	}
	return &order, nil
}

func (d *DbDao) LockOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	var order model.Order
	err := d.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_number = ?", orderNumber).
		First(&order).Error
	if err != nil {
		return nil, translate(err, "lock order %s", orderNumber)
	}
	if err := d.conn(ctx).Where("order_id = ?", order.ID).Order("created_at, id").Find(&order.Items).Error; err != nil {
		return nil, translate(err, "items of order %s", orderNumber)
	}
	return &order, nil
}

func (d *DbDao) SaveOrderState(ctx context.Context, order *model.Order) error {
	res := d.conn(ctx).Model(&model.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"status":          order.Status,
			"payment_status":  order.PaymentStatus,
			"tracking_number": order.TrackingNumber,
			"cancelled_at":    order.CancelledAt,
			"shipped_at":      order.ShippedAt,
			"delivered_at":    order.DeliveredAt,
		})
	if res.Error != nil {
		return translate(res.Error, "save order %s", order.OrderNumber)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "order %s", order.OrderNumber)
	}
	return nil
}

func (d *DbDao) SaveOrderDiscount(ctx context.Context, order *model.Order) error {
	res := d.conn(ctx).Model(&model.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"coupon_code": order.CouponCode,
			"discount":    order.Discount,
			"total":       order.Total,
		})
	if res.Error != nil {
		return translate(res.Error, "save discount of order %s", order.OrderNumber)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "order %s", order.OrderNumber)
	}
	return nil
}

func (d *DbDao) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.Order, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		if filter.UserID != "" {
			db = db.Where("user_id = ?", filter.UserID)
		}
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		return db
	}

	var total int64
	if err := d.conn(ctx).Model(&model.Order{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, translate(err, "count orders")
	}

	orders := []model.Order{}
	err := d.conn(ctx).
		Scopes(scope).
		Preload("Items").
		Preload("Address").
		Order("created_at DESC, id DESC").
		Offset(offset(filter.Page, filter.PageSize)).
		Limit(filter.PageSize).
		Find(&orders).Error
	if err != nil {
		return nil, 0, translate(err, "list orders")
	}
	return orders, total, nil
}
