package model

import "github.com/shopspring/decimal"

type Product struct {
	BaseModel
	Name     string          `gorm:"not null;type:varchar(200)" json:"name"`
	Price    decimal.Decimal `gorm:"not null;type:decimal(12,2)" json:"price"`
	Stock    int             `gorm:"not null;type:int;check:stock >= 0" json:"stock"`
	IsActive bool            `gorm:"not null;default:true" json:"isActive"`
}
