package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/pickup-orders/internal/accounts"
	pkgdb "github.com/angelmondragon/pickup-orders/pkg/db"
	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/angelmondragon/pickup-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
	"github.com/angelmondragon/pickup-orders/pkg/logger"
	"github.com/angelmondragon/pickup-orders/pkg/metrics"
	"github.com/angelmondragon/pickup-orders/pkg/outbox"
	"github.com/angelmondragon/pickup-orders/pkg/outbox/payloads"
	"github.com/angelmondragon/pickup-orders/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the order status service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Accounts accounts.Store
	Outbox   outbox.Emitter
	Guard    *Guard
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
}

// Service owns reads and guarded status changes of existing orders.
type Service struct {
	repo     Repository
	tx       txRunner
	accounts accounts.Store
	outbox   outbox.Emitter
	guard    *Guard
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("account store required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	guard := params.Guard
	if guard == nil {
		guard = NewGuard(DefaultCancellationGrace)
	}
	return &Service{
		repo:     params.Repo,
		tx:       params.Tx,
		accounts: params.Accounts,
		outbox:   params.Outbox,
		guard:    guard,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

// ResolveCaller loads the caller's role binding from the account store.
func (s *Service) ResolveCaller(ctx context.Context, userID uuid.UUID) (Caller, error) {
	if userID == uuid.Nil {
		return Caller{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	binding, err := s.accounts.GetRole(ctx, userID)
	if err != nil {
		return Caller{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve caller role")
	}
	actor, err := ActorForRole(binding.Role)
	if err != nil {
		return Caller{}, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "caller role not recognised")
	}
	return Caller{UserID: userID, Actor: actor, OutletID: binding.OutletID}, nil
}

// UpdateOrderStatus moves an order to requested on behalf of callerID.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, requested enums.OrderStatus, callerID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	caller, err := s.ResolveCaller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(order, caller, requested, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.applyTransition(ctx, order, caller, requested, nil); err != nil {
		return nil, err
	}
	return s.loadOrder(ctx, orderID)
}

// ConfirmPayment moves a pending_payment order to placed after a verified capture.
// It reports false when the order was no longer pending_payment.
func (s *Service) ConfirmPayment(ctx context.Context, order *models.Order, gatewayPaymentID string) (bool, error) {
	if err := s.guard.Authorize(order, SystemCaller, enums.OrderStatusPlaced, s.now().UTC()); err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			return false, nil
		}
		return false, err
	}
	extra := map[string]any{
		"payment_status":     enums.PaymentStatusCompleted,
		"gateway_payment_id": gatewayPaymentID,
	}
	err := s.applyTransition(ctx, order, SystemCaller, enums.OrderStatusPlaced, extra)
	if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		return false, nil
	}
	return err == nil, err
}

// ExpirePayment cancels an order whose payment window elapsed. It reports false
// when the order had already moved on.
func (s *Service) ExpirePayment(ctx context.Context, order *models.Order) (bool, error) {
	if err := s.guard.Authorize(order, SystemCaller, enums.OrderStatusCancelled, s.now().UTC()); err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			return false, nil
		}
		return false, err
	}
	err := s.applyTransition(ctx, order, SystemCaller, enums.OrderStatusCancelled, nil)
	if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		return false, nil
	}
	return err == nil, err
}

// RecordLateCapture stores a capture for an order that was already cancelled.
// The order stays cancelled and is left for the refund workflow.
func (s *Service) RecordLateCapture(ctx context.Context, order *models.Order, gatewayPaymentID string) (bool, error) {
	var applied bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).RecordPaymentOnCancelled(ctx, order.ID, gatewayPaymentID)
		if err != nil || !ok {
			return err
		}
		applied = true
		return s.emitPaymentUpdate(ctx, tx, order, enums.PaymentStatusCompleted, &gatewayPaymentID)
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record late capture")
	}
	return applied, nil
}

// MarkPaymentFailed sets payment_status=failed unless the payment already completed.
func (s *Service) MarkPaymentFailed(ctx context.Context, order *models.Order) (bool, error) {
	var applied bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).MarkPaymentFailed(ctx, order.ID)
		if err != nil || !ok {
			return err
		}
		applied = true
		return s.emitPaymentUpdate(ctx, tx, order, enums.PaymentStatusFailed, nil)
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
	}
	return applied, nil
}

// FindByIntentID looks up the order created for a gateway intent.
func (s *Service) FindByIntentID(ctx context.Context, intentID string) (*models.Order, error) {
	order, err := s.repo.FindByIntentID(ctx, intentID)
	if pkgdb.IsNotFound(err) {
		return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "no order for payment intent")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by intent")
	}
	return order, nil
}

// GetOrder returns the order when the caller may see it. Invisible orders are
// reported as not found.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID, callerID uuid.UUID) (*models.Order, error) {
	caller, err := s.ResolveCaller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanView(caller, order) {
		return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
	}
	return order, nil
}

// ListOrders returns the caller's view: own orders for customers, the bound
// outlet for staff, everything (optionally by outlet) for admins.
func (s *Service) ListOrders(ctx context.Context, callerID uuid.UUID, filter ListFilter, params pagination.Params) (*OrderList, error) {
	caller, err := s.ResolveCaller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	scoped := ListFilter{Status: filter.Status}
	switch caller.Actor {
	case ActorCustomer:
		scoped.UserID = &caller.UserID
	case ActorVendorStaff:
		if caller.OutletID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff is not bound to an outlet")
		}
		if filter.OutletID != nil && *filter.OutletID != *caller.OutletID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff may only list their own outlet")
		}
		scoped.OutletID = caller.OutletID
	case ActorAdmin:
		scoped.OutletID = filter.OutletID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "caller may not list orders")
	}

	list, err := s.repo.List(ctx, scoped, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

// CanView applies the role-scoped visibility rule.
func CanView(caller Caller, order *models.Order) bool {
	switch caller.Actor {
	case ActorAdmin, ActorSystem:
		return true
	case ActorVendorStaff:
		return caller.OutletID != nil && *caller.OutletID == order.OutletID
	case ActorCustomer:
		return caller.UserID == order.UserID
	}
	return false
}

func (s *Service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if pkgdb.IsNotFound(err) {
		return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// applyTransition performs the conditional update and its outbox row in one transaction.
func (s *Service) applyTransition(ctx context.Context, order *models.Order, caller Caller, to enums.OrderStatus, extra map[string]any) error {
	now := s.now().UTC()
	updates := map[string]any{}
	for k, v := range extra {
		updates[k] = v
	}
	if column := TimestampColumn(to); column != "" {
		updates[column] = now
	}

	var applied bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).TransitionStatus(ctx, order.ID, order.Status, to, updates)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		applied = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(caller),
			OccurredAt:    now,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:  order.ID,
				OutletID: order.OutletID,
				From:     order.Status,
				To:       to,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply order transition")
	}
	if !applied {
		return conflict(order.Status, to)
	}

	s.metrics.IncTransition(string(caller.Actor), string(to))
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"from":  order.Status,
		"to":    to,
		"actor": caller.Actor,
	})
	s.logg.Info(logCtx, "order status changed")
	return nil
}

func (s *Service) emitPaymentUpdate(ctx context.Context, tx *gorm.DB, order *models.Order, status enums.PaymentStatus, gatewayPaymentID *string) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaymentUpdated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(SystemCaller),
		OccurredAt:    s.now().UTC(),
		Data: payloads.OrderPaymentUpdatedEvent{
			OrderID:          order.ID,
			OutletID:         order.OutletID,
			PaymentStatus:    status,
			GatewayPaymentID: gatewayPaymentID,
		},
	})
}

func actorRef(caller Caller) *outbox.ActorRef {
	ref := &outbox.ActorRef{Role: string(caller.Actor)}
	if caller.UserID != uuid.Nil {
		id := caller.UserID
		ref.UserID = &id
	}
	return ref
}
