package db

import (
	"context"
	"fmt"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/domain/repository"
	"gorm.io/gorm"
)

func (d *DbDao) CreateCoupon(ctx context.Context, coupon *model.Coupon) error {
	return translate(d.conn(ctx).Create(coupon).Error, "create coupon %s", coupon.Code)
}

func (d *DbDao) GetCoupon(ctx context.Context, id string) (*model.Coupon, error) {
	var coupon model.Coupon
	if err := d.conn(ctx).Where("id = ?", id).First(&coupon).Error; err != nil {
		return nil, translate(err, "get coupon %s", id)
	}
	return &coupon, nil
}

func (d *DbDao) FindCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	if err := d.conn(ctx).Where("code = ?", code).First(&coupon).Error; err != nil {
		return nil, translate(err, "coupon code %s", code)
	}
	return &coupon, nil
}

func (d *DbDao) ListCoupons(ctx context.Context, page, pageSize int) ([]model.Coupon, int64, error) {
	var total int64
	if err := d.conn(ctx).Model(&model.Coupon{}).Count(&total).Error; err != nil {
		return nil, 0, translate(err, "count coupons")
	}
	coupons := []model.Coupon{}
	err := d.conn(ctx).
		Order("created_at DESC, id").
		Offset(offset(page, pageSize)).
		Limit(pageSize).
		Find(&coupons).Error
	if err != nil {
		return nil, 0, translate(err, "list coupons")
	}
	return coupons, total, nil
}

// UpdateCoupon code 與 usage_count 不會被覆寫
func (d *DbDao) UpdateCoupon(ctx context.Context, coupon *model.Coupon) error {
	res := d.conn(ctx).Model(coupon).
		Select("*").
		Omit("id", "code", "usage_count", "created_at").
		Updates(coupon)
	if res.Error != nil {
		return translate(res.Error, "update coupon %s", coupon.ID)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "coupon %s", coupon.ID)
	}
	return nil
}

func (d *DbDao) DeleteCoupon(ctx context.Context, id string) error {
	res := d.conn(ctx).Where("id = ?", id).Delete(&model.Coupon{})
	if res.Error != nil {
		return translate(res.Error, "delete coupon %s", id)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "coupon %s", id)
	}
	return nil
}

func (d *DbDao) CountCouponUsage(ctx context.Context, couponID, userID string) (int64, error) {
	var n int64
	err := d.conn(ctx).Model(&model.CouponUsage{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&n).Error
	return n, translate(err, "count usage of %s", couponID)
}

func (d *DbDao) CountCouponUsageTotal(ctx context.Context, couponID string) (int64, error) {
	var n int64
	err := d.conn(ctx).Model(&model.CouponUsage{}).Where("coupon_id = ?", couponID).Count(&n).Error
	return n, translate(err, "count usage of %s", couponID)
}

func (d *DbDao) HasUsageForOrder(ctx context.Context, orderID string) (bool, error) {
	var n int64
	err := d.conn(ctx).Model(&model.CouponUsage{}).Where("order_id = ?", orderID).Count(&n).Error
	if err != nil {
		return false, translate(err, "usage of order %s", orderID)
	}
	return n > 0, nil
}

// RecordCouponUsage order_id 有 unique index, 同一張訂單第二筆會回 ErrDuplicate
func (d *DbDao) RecordCouponUsage(ctx context.Context, usage *model.CouponUsage) error {
	return translate(d.conn(ctx).Create(usage).Error, "record usage for order %s", usage.OrderID)
}

func (d *DbDao) IncrementCouponUsage(ctx context.Context, couponID string) error {
	res := d.conn(ctx).Model(&model.Coupon{}).
		Where("id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", couponID).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return translate(res.Error, "increment usage of %s", couponID)
	}
	if res.RowsAffected == 0 {
		if _, err := d.GetCoupon(ctx, couponID); err != nil {
			return err
		}
		return fmt.Errorf("%w: coupon %s", repository.ErrLimitReached, couponID)
	}
	return nil
}
