package payloads

import (
	"time"

	"github.com/angelmondragon/pickup-orders/pkg/enums"
	"github.com/google/uuid"
)

// OrderCreatedEvent is emitted in the same transaction that inserts an order.
type OrderCreatedEvent struct {
	OrderID           uuid.UUID           `json:"order_id"`
	UserID            uuid.UUID           `json:"user_id"`
	OutletID          uuid.UUID           `json:"outlet_id"`
	Status            enums.OrderStatus   `json:"status"`
	PaymentStatus     enums.PaymentStatus `json:"payment_status"`
	PaymentMethod     enums.PaymentMethod `json:"payment_method"`
	TotalMinor        int64               `json:"total_minor"`
	ScheduledPickupAt time.Time           `json:"scheduled_pickup_at"`
}

// OrderStatusChangedEvent records a guarded status transition.
type OrderStatusChangedEvent struct {
	OrderID  uuid.UUID         `json:"order_id"`
	OutletID uuid.UUID         `json:"outlet_id"`
	From     enums.OrderStatus `json:"from"`
	To       enums.OrderStatus `json:"to"`
}

// OrderPaymentUpdatedEvent records a payment_status change that left the order status alone.
type OrderPaymentUpdatedEvent struct {
	OrderID          uuid.UUID           `json:"order_id"`
	OutletID         uuid.UUID           `json:"outlet_id"`
	PaymentStatus    enums.PaymentStatus `json:"payment_status"`
	GatewayPaymentID *string             `json:"gateway_payment_id,omitempty"`
}
