package db

import (
	"context"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddCartItem 同一商品已在購物車時累加數量
func (d *DbDao) AddCartItem(ctx context.Context, item *model.CartItem) error {
	err := d.conn(ctx).
		Omit("Product").
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   gorm.Expr("cart_items.quantity + EXCLUDED.quantity"),
				"updated_at": gorm.Expr("now()"),
			}),
		}).
		Create(item).Error
	return translate(err, "add cart item %s", item.ProductID)
}

func (d *DbDao) ListCartItems(ctx context.Context, userID string) ([]model.CartItem, error) {
	items := []model.CartItem{}
	err := d.conn(ctx).
		Preload("Product").
		Where("user_id = ?", userID).
		Order("created_at, id").
		Find(&items).Error
	if err != nil {
		return nil, translate(err, "list cart of %s", userID)
	}
	return items, nil
}

// LockCartItems SELECT ... FOR UPDATE, 同一使用者的結帳在這裡排隊
func (d *DbDao) LockCartItems(ctx context.Context, userID string) ([]model.CartItem, error) {
	items := []model.CartItem{}
	err := d.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Order("created_at, id").
		Find(&items).Error
	if err != nil {
		return nil, translate(err, "lock cart of %s", userID)
	}
	return items, nil
}

func (d *DbDao) ClearCart(ctx context.Context, userID string) (int64, error) {
	res := d.conn(ctx).Where("user_id = ?", userID).Delete(&model.CartItem{})
	if res.Error != nil {
		return 0, translate(res.Error, "clear cart of %s", userID)
	}
	return res.RowsAffected, nil
}
