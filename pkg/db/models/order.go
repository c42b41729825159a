package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pickup-orders/pkg/enums"
)

// Order is a pickup order placed against a single outlet.
type Order struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID              uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	OutletID            uuid.UUID           `gorm:"column:outlet_id;type:uuid;not null"`
	CustomerName        string              `gorm:"column:customer_name;not null"`
	CustomerPhone       string              `gorm:"column:customer_phone;not null"`
	SpecialInstructions *string             `gorm:"column:special_instructions"`
	PaymentMethod       enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	SubtotalMinor       int64               `gorm:"column:subtotal_minor;not null"`
	TaxMinor            int64               `gorm:"column:tax_minor;not null"`
	TotalMinor          int64               `gorm:"column:total_minor;not null"`
	Currency            enums.Currency      `gorm:"column:currency;type:text;not null"`
	Status              enums.OrderStatus   `gorm:"column:status;type:text;not null"`
	PaymentStatus       enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`
	PaymentIntentID     *string             `gorm:"column:payment_intent_id;uniqueIndex"`
	GatewayPaymentID    *string             `gorm:"column:gateway_payment_id"`
	ScheduledPickupAt   time.Time           `gorm:"column:scheduled_pickup_at;not null"`
	PlacedAt            *time.Time          `gorm:"column:placed_at"`
	PreparingAt         *time.Time          `gorm:"column:preparing_at"`
	ReadyAt             *time.Time          `gorm:"column:ready_at"`
	CompletedAt         *time.Time          `gorm:"column:completed_at"`
	CancelledAt         *time.Time          `gorm:"column:cancelled_at"`
	Items               []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }
