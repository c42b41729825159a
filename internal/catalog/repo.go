package catalog

import (
	"context"

	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads menu items used to price orders.
type Repository interface {
	GetItems(ctx context.Context, itemIDs []uuid.UUID) ([]models.MenuItem, error)
	GetOutlet(ctx context.Context, outletID uuid.UUID) (*models.Outlet, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// GetItems returns the records for exactly the requested ids. Missing ids are
// simply absent from the result; outlet and availability are left to callers.
func (r *repository) GetItems(ctx context.Context, itemIDs []uuid.UUID) ([]models.MenuItem, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	var items []models.MenuItem
	err := r.db.WithContext(ctx).
		Where("id IN ?", itemIDs).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) GetOutlet(ctx context.Context, outletID uuid.UUID) (*models.Outlet, error) {
	var outlet models.Outlet
	if err := r.db.WithContext(ctx).Where("id = ?", outletID).First(&outlet).Error; err != nil {
		return nil, err
	}
	return &outlet, nil
}
