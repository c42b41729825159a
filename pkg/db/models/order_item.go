package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem snapshots a menu item at the price charged when the order was placed.
type OrderItem struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	MenuItemID        uuid.UUID `gorm:"column:menu_item_id;type:uuid;not null"`
	ItemName          string    `gorm:"column:item_name;not null"`
	ItemPriceMinor    int64     `gorm:"column:item_price_minor;not null"`
	Quantity          int       `gorm:"column:quantity;not null"`
	LineSubtotalMinor int64     `gorm:"column:line_subtotal_minor;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OrderItem) TableName() string { return "order_items" }
