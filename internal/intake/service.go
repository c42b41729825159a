package intake

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/angelmondragon/pickup-orders/internal/orders"
	"github.com/angelmondragon/pickup-orders/internal/payments"
	"github.com/angelmondragon/pickup-orders/internal/pickup"
	"github.com/angelmondragon/pickup-orders/internal/pricing"
	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/angelmondragon/pickup-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
	"github.com/angelmondragon/pickup-orders/pkg/logger"
	"github.com/angelmondragon/pickup-orders/pkg/metrics"
	"github.com/angelmondragon/pickup-orders/pkg/outbox"
	"github.com/angelmondragon/pickup-orders/pkg/outbox/payloads"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type quoter interface {
	Validate(ctx context.Context, outletID uuid.UUID, lines []pricing.LineRequest) (*pricing.Quote, error)
}

type scheduler interface {
	Schedule(ctx context.Context, outletID uuid.UUID, itemCount int) pickup.Schedule
}

// PlaceOrderInput is the customer's cart plus contact details.
type PlaceOrderInput struct {
	OutletID            uuid.UUID   `json:"outlet_id" validate:"required"`
	CustomerName        string      `json:"customer_name" validate:"required,max=120"`
	CustomerPhone       string      `json:"customer_phone" validate:"required,max=20"`
	SpecialInstructions *string     `json:"special_instructions,omitempty" validate:"omitempty,max=500"`
	PaymentMethod       string      `json:"payment_method,omitempty"`
	Items               []ItemInput `json:"items" validate:"required,min=1,max=50,dive"`
}

type ItemInput struct {
	ItemID   uuid.UUID `json:"item_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"min=1,max=99"`
}

// PlaceOrderResult is returned to the client after a successful placement.
type PlaceOrderResult struct {
	OrderID           uuid.UUID           `json:"order_id"`
	Status            enums.OrderStatus   `json:"status"`
	PaymentStatus     enums.PaymentStatus `json:"payment_status"`
	PaymentMethod     enums.PaymentMethod `json:"payment_method"`
	ScheduledPickupAt time.Time           `json:"scheduled_pickup_at"`
	Subtotal          int64               `json:"subtotal"`
	Tax               int64               `json:"tax"`
	Total             int64               `json:"total"`
	Currency          enums.Currency      `json:"currency"`
	IntentID          string              `json:"intent_id,omitempty"`
	KeyID             string              `json:"key_id,omitempty"`
	Amount            int64               `json:"amount,omitempty"`
}

// ServiceParams wires the intake orchestrator.
type ServiceParams struct {
	Tx        txRunner
	Orders    orders.Repository
	Pricing   quoter
	Scheduler scheduler
	Gateway   payments.Gateway
	Outbox    outbox.Emitter
	Metrics   *metrics.OrderMetrics
	Logger    *logger.Logger
}

// Service turns a validated cart into a persisted order.
type Service struct {
	tx        txRunner
	orders    orders.Repository
	pricing   quoter
	scheduler scheduler
	gateway   payments.Gateway
	outbox    outbox.Emitter
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
	validate  *validator.Validate
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Pricing == nil {
		return nil, fmt.Errorf("pricing validator required")
	}
	if params.Scheduler == nil {
		return nil, fmt.Errorf("pickup scheduler required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		tx:        params.Tx,
		orders:    params.Orders,
		pricing:   params.Pricing,
		scheduler: params.Scheduler,
		gateway:   params.Gateway,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      params.Logger,
		validate:  newValidator(),
		now:       time.Now,
	}, nil
}

// PlaceOrder prices the cart, picks a pickup slot, opens a gateway intent when
// needed, and persists the order with its created event. If persistence fails
// after an intent exists the caller must not retry blindly.
func (s *Service) PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*PlaceOrderResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	method, err := enums.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
	}

	lines := make([]pricing.LineRequest, 0, len(input.Items))
	for _, item := range input.Items {
		lines = append(lines, pricing.LineRequest{ItemID: item.ItemID, Quantity: item.Quantity})
	}
	quote, err := s.pricing.Validate(ctx, input.OutletID, lines)
	if err != nil {
		return nil, err
	}

	schedule := s.scheduler.Schedule(ctx, input.OutletID, quote.ItemCount)
	orderID := uuid.New()
	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	logCtx = s.logg.WithOutletID(logCtx, input.OutletID.String())

	var intent *payments.Intent
	if method == enums.PaymentMethodGateway {
		intent, err = s.gateway.CreateIntent(ctx, payments.IntentRequest{
			AmountMinor: quote.TotalMinor,
			Currency:    string(enums.CurrencyINR),
			Receipt:     orderID.String(),
			Notes: map[string]string{
				"order_id":  orderID.String(),
				"user_id":   userID.String(),
				"outlet_id": input.OutletID.String(),
			},
		})
		if err != nil {
			s.logg.Error(logCtx, "payment intent creation failed", err)
			return nil, asGatewayError(err)
		}
	}

	order := s.buildOrder(orderID, userID, input, method, quote, schedule, intent)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.orders.WithTx(tx).CreateOrder(ctx, order); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: &userID, Role: string(orders.ActorCustomer)},
			OccurredAt:    s.now().UTC(),
			Data: payloads.OrderCreatedEvent{
				OrderID:           order.ID,
				UserID:            order.UserID,
				OutletID:          order.OutletID,
				Status:            order.Status,
				PaymentStatus:     order.PaymentStatus,
				PaymentMethod:     order.PaymentMethod,
				TotalMinor:        order.TotalMinor,
				ScheduledPickupAt: order.ScheduledPickupAt,
			},
		})
	})
	if err != nil {
		return nil, s.compensate(logCtx, orderID, intent, err)
	}

	s.metrics.IncPlaced(string(method))
	s.logg.Info(logCtx, "order placed")

	result := &PlaceOrderResult{
		OrderID:           order.ID,
		Status:            order.Status,
		PaymentStatus:     order.PaymentStatus,
		PaymentMethod:     order.PaymentMethod,
		ScheduledPickupAt: order.ScheduledPickupAt,
		Subtotal:          order.SubtotalMinor,
		Tax:               order.TaxMinor,
		Total:             order.TotalMinor,
		Currency:          order.Currency,
	}
	if intent != nil {
		result.IntentID = intent.ID
		result.KeyID = s.gateway.KeyID()
		result.Amount = order.TotalMinor
	}
	return result, nil
}

func (s *Service) buildOrder(orderID, userID uuid.UUID, input PlaceOrderInput, method enums.PaymentMethod, quote *pricing.Quote, schedule pickup.Schedule, intent *payments.Intent) *models.Order {
	now := s.now().UTC()
	order := &models.Order{
		ID:                  orderID,
		UserID:              userID,
		OutletID:            input.OutletID,
		CustomerName:        strings.TrimSpace(input.CustomerName),
		CustomerPhone:       strings.TrimSpace(input.CustomerPhone),
		SpecialInstructions: input.SpecialInstructions,
		PaymentMethod:       method,
		SubtotalMinor:       quote.SubtotalMinor,
		TaxMinor:            quote.TaxMinor,
		TotalMinor:          quote.TotalMinor,
		Currency:            enums.CurrencyINR,
		ScheduledPickupAt:   schedule.PickupAt,
	}
	if method == enums.PaymentMethodCashOnPickup {
		order.Status = enums.OrderStatusPlaced
		order.PaymentStatus = enums.PaymentStatusCashOnPickup
		order.PlacedAt = &now
	} else {
		order.Status = enums.OrderStatusPendingPayment
		order.PaymentStatus = enums.PaymentStatusPending
		intentID := intent.ID
		order.PaymentIntentID = &intentID
	}

	for _, line := range quote.Lines {
		order.Items = append(order.Items, models.OrderItem{
			ID:                uuid.New(),
			OrderID:           orderID,
			MenuItemID:        line.MenuItemID,
			ItemName:          line.Name,
			ItemPriceMinor:    line.UnitPriceMinor,
			Quantity:          line.Quantity,
			LineSubtotalMinor: line.LineSubtotalMinor,
		})
	}
	return order
}

// compensate removes any partially written order and reports whether money may
// already be collectable against the intent.
func (s *Service) compensate(ctx context.Context, orderID uuid.UUID, intent *payments.Intent, cause error) error {
	if err := s.orders.DeleteOrder(ctx, orderID); err != nil {
		s.logg.Error(ctx, "compensating order delete failed", err)
	}
	if intent == nil {
		s.logg.Error(ctx, "order persist failed", cause)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, cause, "failed to persist order")
	}
	logCtx := s.logg.WithPayment(ctx, intent.ID, "")
	s.logg.Error(logCtx, "order persist failed after intent creation", cause)
	return pkgerrors.Wrap(pkgerrors.CodeOrderPersist, cause, "failed to persist order").
		WithDetails(map[string]any{"intent_id": intent.ID, "retry_safe": false})
}

func (s *Service) validateInput(input PlaceOrderInput) error {
	if err := s.validate.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := map[string]string{}
			for _, fe := range fieldErrs {
				details[fe.Namespace()] = fe.Tag()
			}
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid order request").WithDetails(details)
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order request")
	}
	if strings.TrimSpace(input.CustomerName) == "" || strings.TrimSpace(input.CustomerPhone) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer name and phone are required")
	}
	return nil
}

func asGatewayError(err error) error {
	if pkgerrors.HasCode(err, pkgerrors.CodeGatewayConfig) || pkgerrors.HasCode(err, pkgerrors.CodeGatewayUnavailable) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "payment gateway error")
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}
