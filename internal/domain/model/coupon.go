package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "PERCENTAGE"
	DiscountTypeFixed      DiscountType = "FIXED"
)

func (t DiscountType) IsValid() bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixed
}

/*
Code 一律存大寫
MaxDiscount 只對 PERCENTAGE 有效
UsageLimit 為 nil 代表不限總次數
*/
type Coupon struct {
	BaseModel
	Code           string           `gorm:"not null;type:varchar(50);uniqueIndex" json:"code"`
	Description    string           `gorm:"type:varchar(255)" json:"description,omitempty"`
	DiscountType   DiscountType     `gorm:"not null;type:varchar(16);default:'PERCENTAGE'" json:"discountType"`
	DiscountValue  decimal.Decimal  `gorm:"not null;type:decimal(12,2)" json:"discountValue"`
	MinOrderAmount *decimal.Decimal `gorm:"type:decimal(12,2)" json:"minOrderAmount,omitempty"`
	MaxDiscount    *decimal.Decimal `gorm:"type:decimal(12,2)" json:"maxDiscount,omitempty"`
	UsageLimit     *int             `gorm:"type:int" json:"usageLimit,omitempty"`
	PerUserLimit   int              `gorm:"not null;type:int;default:1" json:"perUserLimit"`
	UsageCount     int              `gorm:"not null;type:int;default:0" json:"usageCount"`
	IsActive       bool             `gorm:"not null;default:true" json:"isActive"`
	ValidFrom      time.Time        `gorm:"not null" json:"validFrom"`
	ValidTo        time.Time        `gorm:"not null" json:"validTo"`
}

// CouponUsage 每次成功折抵一筆, 一張訂單最多一筆
type CouponUsage struct {
	BaseModel
	CouponID string `gorm:"not null;type:varchar(36);index:idx_usage_coupon_user" json:"couponId"`
	UserID   string `gorm:"not null;type:varchar(36);index:idx_usage_coupon_user" json:"userId"`
	OrderID  string `gorm:"not null;type:varchar(36);uniqueIndex" json:"orderId"`
}
