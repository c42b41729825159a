package orders

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/angelmondragon/pickup-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
)

func TestGuardAuthorize(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	owner := uuid.New()
	outlet := uuid.New()
	otherOutlet := uuid.New()

	customer := Caller{UserID: owner, Actor: ActorCustomer}
	stranger := Caller{UserID: uuid.New(), Actor: ActorCustomer}
	staff := Caller{UserID: uuid.New(), Actor: ActorVendorStaff, OutletID: &outlet}
	foreignStaff := Caller{UserID: uuid.New(), Actor: ActorVendorStaff, OutletID: &otherOutlet}
	admin := Caller{UserID: uuid.New(), Actor: ActorAdmin}

	preparedAt := func(ago time.Duration) *time.Time {
		ts := now.Add(-ago)
		return &ts
	}

	cases := []struct {
		name        string
		status      enums.OrderStatus
		preparingAt *time.Time
		caller      Caller
		target      enums.OrderStatus
		wantCode    pkgerrors.Code
	}{
		{name: "system confirms pending", status: enums.OrderStatusPendingPayment, caller: SystemCaller, target: enums.OrderStatusPlaced},
		{name: "system confirm on placed conflicts", status: enums.OrderStatusPlaced, caller: SystemCaller, target: enums.OrderStatusPlaced, wantCode: pkgerrors.CodeStateConflict},
		{name: "system may not prepare", status: enums.OrderStatusPlaced, caller: SystemCaller, target: enums.OrderStatusPreparing, wantCode: pkgerrors.CodeForbidden},
		{name: "staff prepares placed", status: enums.OrderStatusPlaced, caller: staff, target: enums.OrderStatusPreparing},
		{name: "staff readies preparing", status: enums.OrderStatusPreparing, caller: staff, target: enums.OrderStatusReady},
		{name: "staff completes ready", status: enums.OrderStatusReady, caller: staff, target: enums.OrderStatusCompleted},
		{name: "staff skipping ahead conflicts", status: enums.OrderStatusPlaced, caller: staff, target: enums.OrderStatusReady, wantCode: pkgerrors.CodeStateConflict},
		{name: "staff cannot prepare unpaid", status: enums.OrderStatusPendingPayment, caller: staff, target: enums.OrderStatusPreparing, wantCode: pkgerrors.CodeStateConflict},
		{name: "staff cannot cancel", status: enums.OrderStatusPlaced, caller: staff, target: enums.OrderStatusCancelled, wantCode: pkgerrors.CodeForbidden},
		{name: "staff of another outlet", status: enums.OrderStatusPlaced, caller: foreignStaff, target: enums.OrderStatusPreparing, wantCode: pkgerrors.CodeForbidden},
		{name: "customer cancels pending", status: enums.OrderStatusPendingPayment, caller: customer, target: enums.OrderStatusCancelled},
		{name: "customer cancels placed", status: enums.OrderStatusPlaced, caller: customer, target: enums.OrderStatusCancelled},
		{name: "customer cancels inside grace", status: enums.OrderStatusPreparing, preparingAt: preparedAt(30 * time.Second), caller: customer, target: enums.OrderStatusCancelled},
		{name: "customer cancel after grace", status: enums.OrderStatusPreparing, preparingAt: preparedAt(61 * time.Second), caller: customer, target: enums.OrderStatusCancelled, wantCode: pkgerrors.CodeStateConflict},
		{name: "customer cancel ready", status: enums.OrderStatusReady, caller: customer, target: enums.OrderStatusCancelled, wantCode: pkgerrors.CodeStateConflict},
		{name: "customer cannot advance", status: enums.OrderStatusPlaced, caller: customer, target: enums.OrderStatusPreparing, wantCode: pkgerrors.CodeForbidden},
		{name: "other customer", status: enums.OrderStatusPlaced, caller: stranger, target: enums.OrderStatusCancelled, wantCode: pkgerrors.CodeForbidden},
		{name: "admin prepares", status: enums.OrderStatusPlaced, caller: admin, target: enums.OrderStatusPreparing},
		{name: "admin cancels preparing", status: enums.OrderStatusPreparing, preparingAt: preparedAt(time.Hour), caller: admin, target: enums.OrderStatusCancelled},
		{name: "admin cannot cancel completed", status: enums.OrderStatusCompleted, caller: admin, target: enums.OrderStatusCancelled, wantCode: pkgerrors.CodeStateConflict},
		{name: "admin cannot place", status: enums.OrderStatusPendingPayment, caller: admin, target: enums.OrderStatusPlaced, wantCode: pkgerrors.CodeForbidden},
		{name: "unknown target", status: enums.OrderStatusPlaced, caller: admin, target: enums.OrderStatus("shipped"), wantCode: pkgerrors.CodeValidation},
	}

	guard := NewGuard(DefaultCancellationGrace)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := &models.Order{
				ID:          uuid.New(),
				UserID:      owner,
				OutletID:    outlet,
				Status:      tc.status,
				PreparingAt: tc.preparingAt,
			}
			err := guard.Authorize(order, tc.caller, tc.target, now)
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("expected transition to be allowed, got %v", err)
				}
				return
			}
			if !pkgerrors.HasCode(err, tc.wantCode) {
				t.Fatalf("expected %s, got %v", tc.wantCode, err)
			}
		})
	}
}

func TestTimestampColumn(t *testing.T) {
	if got := TimestampColumn(enums.OrderStatusPreparing); got != "preparing_at" {
		t.Fatalf("unexpected column %q", got)
	}
	if got := TimestampColumn(enums.OrderStatusPendingPayment); got != "" {
		t.Fatalf("pending_payment has no timestamp column, got %q", got)
	}
}

func TestActorForRole(t *testing.T) {
	actor, err := ActorForRole(enums.RoleVendorStaff)
	if err != nil || actor != ActorVendorStaff {
		t.Fatalf("unexpected mapping %q %v", actor, err)
	}
	if _, err := ActorForRole(enums.Role("owner")); err == nil {
		t.Fatal("expected error for unknown role")
	}
}
