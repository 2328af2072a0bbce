package db

import (
	"context"
	"fmt"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/domain/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (d *DbDao) CreateProduct(ctx context.Context, product *model.Product) error {
	return translate(d.conn(ctx).Create(product).Error, "create product %s", product.Name)
}

func (d *DbDao) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var product model.Product
	if err := d.conn(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, translate(err, "get product %s", id)
	}
	return &product, nil
}

// LockProducts SELECT ... FOR UPDATE, 依 id 排序取得鎖避免 deadlock
func (d *DbDao) LockProducts(ctx context.Context, ids []string) ([]model.Product, error) {
	products := []model.Product{}
	if len(ids) == 0 {
		return products, nil
	}
	err := d.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, translate(err, "lock products")
	}
	return products, nil
}

func (d *DbDao) DecrementStock(ctx context.Context, productID string, quantity int) error {
	res := d.conn(ctx).Model(&model.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return translate(res.Error, "decrement stock of %s", productID)
	}
	if res.RowsAffected == 0 {
		if _, err := d.GetProduct(ctx, productID); err != nil {
			return err
		}
		return fmt.Errorf("%w: product %s", repository.ErrStockNotEnough, productID)
	}
	return nil
}

func (d *DbDao) IncrementStock(ctx context.Context, productID string, quantity int) error {
	res := d.conn(ctx).Model(&model.Product{}).
		Where("id = ?", productID).
		Update("stock", gorm.Expr("stock + ?", quantity))
	if res.Error != nil {
		return translate(res.Error, "increment stock of %s", productID)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "product %s", productID)
	}
	return nil
}
