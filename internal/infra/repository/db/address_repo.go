package db

import (
	"context"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
)

func (d *DbDao) CreateAddress(ctx context.Context, address *model.Address) error {
	return translate(d.conn(ctx).Create(address).Error, "create address")
}

func (d *DbDao) FindOwnedAddress(ctx context.Context, addressID, userID string) (*model.Address, error) {
	var address model.Address
	err := d.conn(ctx).Where("id = ? AND user_id = ?", addressID, userID).First(&address).Error
	if err != nil {
		return nil, translate(err, "address %s", addressID)
	}
	return &address, nil
}
