package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"    // 待處理
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"  // 已確認
	OrderStatusProcessing OrderStatus = "PROCESSING" // 處理中
	OrderStatusShipped    OrderStatus = "SHIPPED"    // 已出貨
	OrderStatusDelivered  OrderStatus = "DELIVERED"  // 已送達
	OrderStatusCancelled  OrderStatus = "CANCELLED"  // 已取消
	OrderStatusReturned   OrderStatus = "RETURNED"   // 已退貨
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// PaymentStatus 與訂單狀態互相獨立
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "COD"
	PaymentMethodOnline PaymentMethod = "ONLINE"
	PaymentMethodUPI    PaymentMethod = "UPI"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodOnline, PaymentMethodUPI:
		return true
	}
	return false
}

/*
Total 恆等於 Subtotal + ShippingCost - Discount
明細的 Price 是下單當下的價格, 之後商品改價不影響
*/
type Order struct {
	BaseModel
	OrderNumber    string          `gorm:"not null;type:varchar(32);uniqueIndex" json:"orderNumber"`
	UserID         string          `gorm:"not null;type:varchar(36);index" json:"userId"`
	AddressID      string          `gorm:"not null;type:varchar(36)" json:"addressId"`
	Address        *Address        `gorm:"foreignKey:AddressID" json:"shippingAddress,omitempty"`
	Items          []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	PaymentMethod  PaymentMethod   `gorm:"not null;type:varchar(16)" json:"paymentMethod"`
	Notes          string          `gorm:"type:varchar(500)" json:"notes,omitempty"`
	Subtotal       decimal.Decimal `gorm:"not null;type:decimal(12,2)" json:"subtotal"`
	ShippingCost   decimal.Decimal `gorm:"not null;type:decimal(12,2)" json:"shippingCost"`
	Discount       decimal.Decimal `gorm:"not null;type:decimal(12,2)" json:"discount"`
	Total          decimal.Decimal `gorm:"not null;type:decimal(12,2)" json:"total"`
	CouponCode     *string         `gorm:"type:varchar(50)" json:"couponCode,omitempty"`
	Status         OrderStatus     `gorm:"not null;type:varchar(16);index;default:'PENDING'" json:"status"`
	PaymentStatus  PaymentStatus   `gorm:"not null;type:varchar(16);default:'PENDING'" json:"paymentStatus"`
	TrackingNumber *string         `gorm:"type:varchar(100)" json:"trackingNumber,omitempty"`
	CancelledAt    *time.Time      `json:"cancelledAt,omitempty"`
	ShippedAt      *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt    *time.Time      `json:"deliveredAt,omitempty"`
}

type OrderItem struct {
	BaseModel
	OrderID     string          `gorm:"not null;type:varchar(36);index" json:"orderId"`
	ProductID   string          `gorm:"not null;type:varchar(36);index" json:"productId"`
	ProductName string          `gorm:"not null;type:varchar(200)" json:"productName"`
	Quantity    int             `gorm:"not null;type:int" json:"quantity"`
	Price       decimal.Decimal `gorm:"not null;type:decimal(12,2)" json:"price"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Clone 深拷貝, 給 memstore 使用
func (o *Order) Clone() *Order {
	c := *o
	if o.Items != nil {
		c.Items = append([]OrderItem(nil), o.Items...)
	}
	if o.Address != nil {
		addr := *o.Address
		c.Address = &addr
	}
	return &c
}
