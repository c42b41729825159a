package models

import (
	"time"

	"github.com/google/uuid"
)

// MenuItem is the catalog record orders are priced from.
type MenuItem struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OutletID    uuid.UUID `gorm:"column:outlet_id;type:uuid;not null;index"`
	Name        string    `gorm:"column:name;not null"`
	PriceMinor  int64     `gorm:"column:price_minor;not null"`
	IsAvailable bool      `gorm:"column:is_available;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (MenuItem) TableName() string { return "menu_items" }
