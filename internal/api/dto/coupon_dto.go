package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type ValidateCouponRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type ApplyCouponRequest struct {
	Code        string `json:"code"`
	OrderNumber string `json:"orderNumber"`
}

type ApplyCouponResponse struct {
	Code        string          `json:"code"`
	OrderNumber string          `json:"orderNumber"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

type CreateCouponRequest struct {
	Code           string           `json:"code"`
	Description    string           `json:"description"`
	DiscountType   string           `json:"discountType"`
	DiscountValue  decimal.Decimal  `json:"discountValue"`
	MinOrderAmount *decimal.Decimal `json:"minOrderAmount"`
	MaxDiscount    *decimal.Decimal `json:"maxDiscount"`
	UsageLimit     *int             `json:"usageLimit"`
	PerUserLimit   *int             `json:"perUserLimit"`
	IsActive       *bool            `json:"isActive"`
	ValidFrom      *time.Time       `json:"validFrom"`
	ValidTo        *time.Time       `json:"validTo"`
}

// UpdateCouponRequest 沒帶的欄位不更新, code 與 usageCount 不可修改
type UpdateCouponRequest struct {
	Description    *string          `json:"description"`
	DiscountType   *string          `json:"discountType"`
	DiscountValue  *decimal.Decimal `json:"discountValue"`
	MinOrderAmount *decimal.Decimal `json:"minOrderAmount"`
	MaxDiscount    *decimal.Decimal `json:"maxDiscount"`
	UsageLimit     *int             `json:"usageLimit"`
	PerUserLimit   *int             `json:"perUserLimit"`
	IsActive       *bool            `json:"isActive"`
	ValidFrom      *time.Time       `json:"validFrom"`
	ValidTo        *time.Time       `json:"validTo"`
}
