package orders

import (
	"fmt"
	"time"

	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/angelmondragon/pickup-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
	"github.com/google/uuid"
)

// DefaultCancellationGrace is how long after preparing_at a customer may still cancel.
const DefaultCancellationGrace = 60 * time.Second

// Actor is the closed set of parties that may request a transition.
type Actor string

const (
	ActorSystem      Actor = "system"
	ActorCustomer    Actor = "customer"
	ActorVendorStaff Actor = "vendor_staff"
	ActorAdmin       Actor = "admin"
)

// ActorForRole maps an account role onto its transition actor.
func ActorForRole(role enums.Role) (Actor, error) {
	switch role {
	case enums.RoleCustomer:
		return ActorCustomer, nil
	case enums.RoleVendorStaff:
		return ActorVendorStaff, nil
	case enums.RoleAdmin:
		return ActorAdmin, nil
	default:
		return "", fmt.Errorf("no actor for role %q", role)
	}
}

// Caller is the resolved identity behind a transition request.
type Caller struct {
	UserID   uuid.UUID
	Actor    Actor
	OutletID *uuid.UUID
}

// SystemCaller is used by the webhook reconciler and scheduled jobs.
var SystemCaller = Caller{Actor: ActorSystem}

// staffFlow is the kitchen progression, keyed by source status.
var staffFlow = map[enums.OrderStatus]enums.OrderStatus{
	enums.OrderStatusPlaced:    enums.OrderStatusPreparing,
	enums.OrderStatusPreparing: enums.OrderStatusReady,
	enums.OrderStatusReady:     enums.OrderStatusCompleted,
}

var cancellableFrom = map[enums.OrderStatus]bool{
	enums.OrderStatusPendingPayment: true,
	enums.OrderStatusPlaced:         true,
	enums.OrderStatusPreparing:      true,
}

// targetsByActor lists every status each actor can ever request.
var targetsByActor = map[Actor]map[enums.OrderStatus]bool{
	ActorSystem: {
		enums.OrderStatusPlaced:    true,
		enums.OrderStatusCancelled: true,
	},
	ActorVendorStaff: {
		enums.OrderStatusPreparing: true,
		enums.OrderStatusReady:     true,
		enums.OrderStatusCompleted: true,
	},
	ActorAdmin: {
		enums.OrderStatusPreparing: true,
		enums.OrderStatusReady:     true,
		enums.OrderStatusCompleted: true,
		enums.OrderStatusCancelled: true,
	},
	ActorCustomer: {
		enums.OrderStatusCancelled: true,
	},
}

// Guard decides whether a caller may move an order to a target status.
type Guard struct {
	cancellationGrace time.Duration
}

func NewGuard(cancellationGrace time.Duration) *Guard {
	if cancellationGrace < 0 {
		cancellationGrace = 0
	}
	return &Guard{cancellationGrace: cancellationGrace}
}

// Authorize returns Forbidden when the caller can never request target on this
// order, and StateConflict when the current status is not a valid source.
func (g *Guard) Authorize(order *models.Order, caller Caller, target enums.OrderStatus, now time.Time) error {
	if !target.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown target status").
			WithDetails(map[string]any{"status": string(target)})
	}
	if !targetsByActor[caller.Actor][target] {
		return forbidden(caller, target)
	}

	switch caller.Actor {
	case ActorSystem:
		if order.Status != enums.OrderStatusPendingPayment {
			return conflict(order.Status, target)
		}
		return nil

	case ActorVendorStaff:
		if caller.OutletID == nil || *caller.OutletID != order.OutletID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "staff is not bound to this outlet")
		}
		if staffFlow[order.Status] != target {
			return conflict(order.Status, target)
		}
		return nil

	case ActorAdmin:
		if target == enums.OrderStatusCancelled {
			if !cancellableFrom[order.Status] {
				return conflict(order.Status, target)
			}
			return nil
		}
		if staffFlow[order.Status] != target {
			return conflict(order.Status, target)
		}
		return nil

	case ActorCustomer:
		if caller.UserID != order.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
		}
		switch order.Status {
		case enums.OrderStatusPendingPayment, enums.OrderStatusPlaced:
			return nil
		case enums.OrderStatusPreparing:
			if order.PreparingAt != nil && now.Sub(*order.PreparingAt) <= g.cancellationGrace {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cancellation window has closed").
				WithDetails(map[string]any{"from": string(order.Status), "to": string(target)})
		default:
			return conflict(order.Status, target)
		}
	}
	return forbidden(caller, target)
}

// TimestampColumn names the *_at column written when an order enters status.
func TimestampColumn(status enums.OrderStatus) string {
	switch status {
	case enums.OrderStatusPlaced:
		return "placed_at"
	case enums.OrderStatusPreparing:
		return "preparing_at"
	case enums.OrderStatusReady:
		return "ready_at"
	case enums.OrderStatusCompleted:
		return "completed_at"
	case enums.OrderStatusCancelled:
		return "cancelled_at"
	}
	return ""
}

func forbidden(caller Caller, target enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("%s may not move orders to %s", caller.Actor, target))
}

func conflict(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}
