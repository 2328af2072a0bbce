package model

// CartItem 購物車明細, 下單成功後整批刪除
type CartItem struct {
	BaseModel
	UserID    string   `gorm:"not null;type:varchar(36);index;uniqueIndex:idx_cart_user_product" json:"userId"`
	ProductID string   `gorm:"not null;type:varchar(36);uniqueIndex:idx_cart_user_product" json:"productId"`
	Quantity  int      `gorm:"not null;type:int" json:"quantity"`
	Product   *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}
