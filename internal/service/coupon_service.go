package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/constants"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/domain/repository"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/apperr"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/money"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type ICouponService interface {
	ValidateCoupon(ctx context.Context, code string, subtotal decimal.Decimal, callerUserID string) (*CouponQuote, error)
	ApplyCoupon(ctx context.Context, userID, code, orderNumber string) (*model.Order, error)
	CreateCoupon(ctx context.Context, in CreateCouponInput) (*model.Coupon, error)
	ListCoupons(ctx context.Context, page, pageSize int) (*Page[model.Coupon], error)
	UpdateCoupon(ctx context.Context, id string, in UpdateCouponInput) (*model.Coupon, error)
	DeleteCoupon(ctx context.Context, id string) error
}

var _ ICouponService = (*CouponService)(nil)

// CouponSummary 給顧客看的優惠券資訊, 不含使用次數
type CouponSummary struct {
	Code           string             `json:"code"`
	Description    string             `json:"description,omitempty"`
	DiscountType   model.DiscountType `json:"discountType"`
	DiscountValue  decimal.Decimal    `json:"discountValue"`
	MaxDiscount    *decimal.Decimal   `json:"maxDiscount,omitempty"`
	MinOrderAmount *decimal.Decimal   `json:"minOrderAmount,omitempty"`
}

type CouponQuote struct {
	Coupon         CouponSummary   `json:"coupon"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

type CreateCouponInput struct {
	Code           string
	Description    string
	DiscountType   model.DiscountType
	DiscountValue  decimal.Decimal
	MinOrderAmount *decimal.Decimal
	MaxDiscount    *decimal.Decimal
	UsageLimit     *int
	PerUserLimit   *int
	IsActive       *bool
	ValidFrom      *time.Time
	ValidTo        *time.Time
}

// UpdateCouponInput nil 代表不更新, Code 與 UsageCount 不可修改
type UpdateCouponInput struct {
	Description    *string
	DiscountType   *model.DiscountType
	DiscountValue  *decimal.Decimal
	MinOrderAmount *decimal.Decimal
	MaxDiscount    *decimal.Decimal
	UsageLimit     *int
	PerUserLimit   *int
	IsActive       *bool
	ValidFrom      *time.Time
	ValidTo        *time.Time
}

type CouponService struct {
	store repository.UnitOfWork
	now   func() time.Time
}

type CouponServiceOption func(*CouponService)

func WithCouponClock(now func() time.Time) CouponServiceOption {
	return func(s *CouponService) {
		s.now = now
	}
}

func NewCouponService(store repository.UnitOfWork, opts ...CouponServiceOption) *CouponService {
	s := &CouponService{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func summarize(c *model.Coupon) CouponSummary {
	return CouponSummary{
		Code:           c.Code,
		Description:    c.Description,
		DiscountType:   c.DiscountType,
		DiscountValue:  c.DiscountValue,
		MaxDiscount:    c.MaxDiscount,
		MinOrderAmount: c.MinOrderAmount,
	}
}

/*
依序檢查: 存在 -> 啟用 -> 生效 -> 過期 -> 總次數 -> 個人次數 -> 最低金額
userID 為空代表匿名, 跳過個人次數檢查
不寫入任何資料
*/
func evaluateCoupon(ctx context.Context, store repository.CouponStore, code string, subtotal decimal.Decimal, userID string, now time.Time) (*model.Coupon, decimal.Decimal, error) {
	coupon, err := store.FindCouponByCode(ctx, NormalizeCouponCode(code))
	if err != nil {
		return nil, decimal.Zero, notFoundOr(err, apperr.New(apperr.CouponNotFoundCode, "Invalid coupon code"))
	}

	if !coupon.IsActive {
		return nil, decimal.Zero, apperr.New(apperr.CouponInactiveCode, "This coupon is no longer active")
	}
	if now.Before(coupon.ValidFrom) {
		return nil, decimal.Zero, apperr.New(apperr.CouponNotYetValidCode, "This coupon is not yet valid")
	}
	if now.After(coupon.ValidTo) {
		return nil, decimal.Zero, apperr.New(apperr.CouponExpiredCode, "This coupon has expired")
	}
	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return nil, decimal.Zero, apperr.New(apperr.UsageLimitReachedCode, "This coupon has reached its usage limit")
	}
	if userID != "" {
		used, err := store.CountCouponUsage(ctx, coupon.ID, userID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if used >= int64(coupon.PerUserLimit) {
			return nil, decimal.Zero, apperr.New(apperr.PerUserLimitReachedCode, "You have already used this coupon")
		}
	}
	if coupon.MinOrderAmount != nil && subtotal.LessThan(*coupon.MinOrderAmount) {
		return nil, decimal.Zero, apperr.Newf(apperr.BelowMinimumOrderCode,
			"Minimum order amount of %s required for this coupon", money.FormatINR(*coupon.MinOrderAmount))
	}

	return coupon, CouponDiscount(coupon, subtotal), nil
}

// CouponDiscount PERCENTAGE 受 MaxDiscount 上限限制, FIXED 直接取面額且不與 subtotal 比較
func CouponDiscount(coupon *model.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	if coupon.DiscountType == model.DiscountTypeFixed {
		return coupon.DiscountValue
	}
	discount := money.Percent(subtotal, coupon.DiscountValue)
	if coupon.MaxDiscount != nil && discount.GreaterThan(*coupon.MaxDiscount) {
		discount = *coupon.MaxDiscount
	}
	return discount
}

func (s *CouponService) ValidateCoupon(ctx context.Context, code string, subtotal decimal.Decimal, callerUserID string) (*CouponQuote, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperr.New(apperr.InvalidArgumentCode, "Coupon code is required")
	}
	coupon, discount, err := evaluateCoupon(ctx, s.store, code, subtotal, callerUserID, s.now())
	if err != nil {
		return nil, failure("validate coupon", err)
	}
	return &CouponQuote{Coupon: summarize(coupon), DiscountAmount: discount}, nil
}

// couponApplicable 出貨前的訂單才能補套優惠券
var couponApplicable = map[model.OrderStatus]bool{
	model.OrderStatusPending:   true,
	model.OrderStatusConfirmed: true,
}

/*
ApplyCoupon 為已成立但尚未套用優惠券的訂單補套一張券
檢查規則與下單時相同 (以訂單小計計算), 折扣同樣不超過應付金額
訂單金額與使用紀錄在同一筆交易內更新
*/
func (s *CouponService) ApplyCoupon(ctx context.Context, userID, code, orderNumber string) (*model.Order, error) {
	if strings.TrimSpace(code) == "" || orderNumber == "" {
		return nil, apperr.New(apperr.InvalidArgumentCode, "Coupon code and order number are required")
	}

	var order *model.Order
	err := s.store.Transaction(ctx, func(tx repository.Stores) error {
		o, err := tx.LockOrderByNumber(ctx, orderNumber)
		if err != nil {
			return notFoundOr(err, apperr.New(apperr.OrderNotFoundCode, "Order not found"))
		}
		if o.UserID != userID {
			return apperr.New(apperr.UnauthorizedCode, "Unauthorized")
		}
		if !couponApplicable[o.Status] {
			return apperr.Newf(apperr.InvalidStateTransitionCode, "Cannot apply a coupon to an order with status %s", o.Status)
		}
		applied, err := tx.HasUsageForOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if o.CouponCode != nil || applied {
			return apperr.New(apperr.CouponAlreadyAppliedCode, "A coupon has already been applied to this order")
		}

		coupon, discount, err := evaluateCoupon(ctx, tx, code, o.Subtotal, userID, s.now())
		if err != nil {
			return err
		}
		payable := o.Subtotal.Add(o.ShippingCost)
		discount = money.Min(discount, payable)

		o.CouponCode = &coupon.Code
		o.Discount = discount
		o.Total = payable.Sub(discount)
		if err := tx.SaveOrderDiscount(ctx, o); err != nil {
			return err
		}
		if err := redeemCoupon(ctx, tx, coupon, userID, o.ID); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, failure("apply coupon", err)
	}
	return order, nil
}

// redeemCoupon 寫入使用紀錄並累加次數, 必須在交易內呼叫
func redeemCoupon(ctx context.Context, tx repository.CouponStore, coupon *model.Coupon, userID, orderID string) error {
	err := tx.RecordCouponUsage(ctx, &model.CouponUsage{CouponID: coupon.ID, UserID: userID, OrderID: orderID})
	if errors.Is(err, repository.ErrDuplicate) {
		return apperr.New(apperr.CouponAlreadyAppliedCode, "A coupon has already been applied to this order")
	}
	if err != nil {
		return err
	}
	err = tx.IncrementCouponUsage(ctx, coupon.ID)
	if errors.Is(err, repository.ErrLimitReached) {
		return apperr.New(apperr.UsageLimitReachedCode, "This coupon has reached its usage limit")
	}
	return err
}

func validateCouponRules(c *model.Coupon) error {
	if !c.DiscountType.IsValid() {
		return apperr.Newf(apperr.InvalidArgumentCode, "Unsupported discount type %q", c.DiscountType)
	}
	if !c.DiscountValue.IsPositive() {
		return apperr.New(apperr.InvalidArgumentCode, "discountValue must be greater than 0")
	}
	if c.DiscountType == model.DiscountTypePercentage && c.DiscountValue.GreaterThan(hundred) {
		return apperr.New(apperr.InvalidArgumentCode, "Percentage discount cannot exceed 100")
	}
	if c.MinOrderAmount != nil && c.MinOrderAmount.IsNegative() {
		return apperr.New(apperr.InvalidArgumentCode, "minOrderAmount cannot be negative")
	}
	if c.MaxDiscount != nil && !c.MaxDiscount.IsPositive() {
		return apperr.New(apperr.InvalidArgumentCode, "maxDiscount must be greater than 0")
	}
	if c.UsageLimit != nil && *c.UsageLimit < 1 {
		return apperr.New(apperr.InvalidArgumentCode, "usageLimit must be at least 1")
	}
	if c.UsageLimit != nil && *c.UsageLimit < c.UsageCount {
		return apperr.Newf(apperr.InvalidArgumentCode, "usageLimit cannot be lower than the current usage count %d", c.UsageCount)
	}
	if c.PerUserLimit < 1 {
		return apperr.New(apperr.InvalidArgumentCode, "perUserLimit must be at least 1")
	}
	if !c.ValidTo.After(c.ValidFrom) {
		return apperr.New(apperr.InvalidArgumentCode, "validTo must be after validFrom")
	}
	return nil
}

func (s *CouponService) CreateCoupon(ctx context.Context, in CreateCouponInput) (*model.Coupon, error) {
	code := NormalizeCouponCode(in.Code)
	if code == "" || in.DiscountValue.IsZero() || in.ValidTo == nil {
		return nil, apperr.New(apperr.InvalidArgumentCode, "Code, discountValue, and validTo are required")
	}

	coupon := &model.Coupon{
		Code:           code,
		Description:    in.Description,
		DiscountType:   in.DiscountType,
		DiscountValue:  in.DiscountValue,
		MinOrderAmount: in.MinOrderAmount,
		MaxDiscount:    in.MaxDiscount,
		UsageLimit:     in.UsageLimit,
		PerUserLimit:   1,
		IsActive:       true,
		ValidFrom:      s.now(),
		ValidTo:        *in.ValidTo,
	}
	if coupon.DiscountType == "" {
		coupon.DiscountType = model.DiscountTypePercentage
	}
	if in.PerUserLimit != nil {
		coupon.PerUserLimit = *in.PerUserLimit
	}
	if in.IsActive != nil {
		coupon.IsActive = *in.IsActive
	}
	if in.ValidFrom != nil {
		coupon.ValidFrom = *in.ValidFrom
	}
	if err := validateCouponRules(coupon); err != nil {
		return nil, err
	}

	err := s.store.CreateCoupon(ctx, coupon)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.New(apperr.CouponCodeExistsCode, "Coupon code already exists")
	}
	if err != nil {
		return nil, failure("create coupon", err)
	}
	return coupon, nil
}

func (s *CouponService) ListCoupons(ctx context.Context, page, pageSize int) (*Page[model.Coupon], error) {
	page, pageSize = normalizePaging(page, pageSize, constants.DefaultAdminPagingSize)
	coupons, total, err := s.store.ListCoupons(ctx, page, pageSize)
	if err != nil {
		return nil, failure("list coupons", err)
	}
	return newPage(coupons, page, pageSize, total), nil
}

func (s *CouponService) UpdateCoupon(ctx context.Context, id string, in UpdateCouponInput) (*model.Coupon, error) {
	var updated *model.Coupon
	err := s.store.Transaction(ctx, func(tx repository.Stores) error {
		coupon, err := tx.GetCoupon(ctx, id)
		if err != nil {
			return notFoundOr(err, apperr.New(apperr.CouponNotFoundCode, "Coupon not found"))
		}
		if in.Description != nil {
			coupon.Description = *in.Description
		}
		if in.DiscountType != nil {
			coupon.DiscountType = *in.DiscountType
		}
		if in.DiscountValue != nil {
			coupon.DiscountValue = *in.DiscountValue
		}
		if in.MinOrderAmount != nil {
			coupon.MinOrderAmount = in.MinOrderAmount
		}
		if in.MaxDiscount != nil {
			coupon.MaxDiscount = in.MaxDiscount
		}
		if in.UsageLimit != nil {
			coupon.UsageLimit = in.UsageLimit
		}
		if in.PerUserLimit != nil {
			coupon.PerUserLimit = *in.PerUserLimit
		}
		if in.IsActive != nil {
			coupon.IsActive = *in.IsActive
		}
		if in.ValidFrom != nil {
			coupon.ValidFrom = *in.ValidFrom
		}
		if in.ValidTo != nil {
			coupon.ValidTo = *in.ValidTo
		}
		if err := validateCouponRules(coupon); err != nil {
			return err
		}
		if err := tx.UpdateCoupon(ctx, coupon); err != nil {
			return err
		}
		updated = coupon
		return nil
	})
	if err != nil {
		return nil, failure("update coupon", err)
	}
	return updated, nil
}

// DeleteCoupon 已有使用紀錄的優惠券不可刪除, 只能停用
func (s *CouponService) DeleteCoupon(ctx context.Context, id string) error {
	err := s.store.Transaction(ctx, func(tx repository.Stores) error {
		if _, err := tx.GetCoupon(ctx, id); err != nil {
			return notFoundOr(err, apperr.New(apperr.CouponNotFoundCode, "Coupon not found"))
		}
		used, err := tx.CountCouponUsageTotal(ctx, id)
		if err != nil {
			return err
		}
		if used > 0 {
			return apperr.New(apperr.CouponInUseCode,
				fmt.Sprintf("Coupon has been redeemed %d times and cannot be deleted, deactivate it instead", used))
		}
		return tx.DeleteCoupon(ctx, id)
	})
	if err != nil {
		return failure("delete coupon", err)
	}
	return nil
}
