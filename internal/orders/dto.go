package orders

import (
	"time"

	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/angelmondragon/pickup-orders/pkg/enums"
	"github.com/google/uuid"
)

// ListFilter narrows a listing. Scope fields are set by the service from the caller's role.
type ListFilter struct {
	UserID   *uuid.UUID
	OutletID *uuid.UUID
	Status   *enums.OrderStatus
}

// OrderList is a page of orders.
type OrderList struct {
	Orders     []models.Order
	NextCursor string
}

// OrderView is the client-facing shape of an order.
type OrderView struct {
	ID                  uuid.UUID           `json:"order_id"`
	UserID              uuid.UUID           `json:"user_id"`
	OutletID            uuid.UUID           `json:"outlet_id"`
	CustomerName        string              `json:"customer_name"`
	CustomerPhone       string              `json:"customer_phone"`
	SpecialInstructions *string             `json:"special_instructions,omitempty"`
	Status              enums.OrderStatus   `json:"status"`
	PaymentStatus       enums.PaymentStatus `json:"payment_status"`
	PaymentMethod       enums.PaymentMethod `json:"payment_method"`
	PaymentIntentID     *string             `json:"intent_id,omitempty"`
	Subtotal            int64               `json:"subtotal"`
	Tax                 int64               `json:"tax"`
	Total               int64               `json:"total"`
	Currency            enums.Currency      `json:"currency"`
	ScheduledPickupAt   time.Time           `json:"scheduled_pickup_at"`
	PlacedAt            *time.Time          `json:"placed_at,omitempty"`
	PreparingAt         *time.Time          `json:"preparing_at,omitempty"`
	ReadyAt             *time.Time          `json:"ready_at,omitempty"`
	CompletedAt         *time.Time          `json:"completed_at,omitempty"`
	CancelledAt         *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
	Items               []OrderItemView     `json:"items,omitempty"`
}

type OrderItemView struct {
	MenuItemID   uuid.UUID `json:"menu_item_id"`
	Name         string    `json:"name"`
	UnitPrice    int64     `json:"unit_price"`
	Quantity     int       `json:"quantity"`
	LineSubtotal int64     `json:"line_subtotal"`
}

// OrderListView is a page of order views.
type OrderListView struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// NewOrderView maps a stored order to its response shape.
func NewOrderView(order *models.Order) OrderView {
	view := OrderView{
		ID:                  order.ID,
		UserID:              order.UserID,
		OutletID:            order.OutletID,
		CustomerName:        order.CustomerName,
		CustomerPhone:       order.CustomerPhone,
		SpecialInstructions: order.SpecialInstructions,
		Status:              order.Status,
		PaymentStatus:       order.PaymentStatus,
		PaymentMethod:       order.PaymentMethod,
		PaymentIntentID:     order.PaymentIntentID,
		Subtotal:            order.SubtotalMinor,
		Tax:                 order.TaxMinor,
		Total:               order.TotalMinor,
		Currency:            order.Currency,
		ScheduledPickupAt:   order.ScheduledPickupAt,
		PlacedAt:            order.PlacedAt,
		PreparingAt:         order.PreparingAt,
		ReadyAt:             order.ReadyAt,
		CompletedAt:         order.CompletedAt,
		CancelledAt:         order.CancelledAt,
		CreatedAt:           order.CreatedAt,
		UpdatedAt:           order.UpdatedAt,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, OrderItemView{
			MenuItemID:   item.MenuItemID,
			Name:         item.ItemName,
			UnitPrice:    item.ItemPriceMinor,
			Quantity:     item.Quantity,
			LineSubtotal: item.LineSubtotalMinor,
		})
	}
	return view
}

// NewOrderListView maps a page of stored orders.
func NewOrderListView(list *OrderList) OrderListView {
	view := OrderListView{Orders: []OrderView{}}
	if list == nil {
		return view
	}
	for i := range list.Orders {
		view.Orders = append(view.Orders, NewOrderView(&list.Orders[i]))
	}
	view.NextCursor = list.NextCursor
	return view
}
