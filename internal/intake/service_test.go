package intake

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/pickup-orders/internal/orders"
	"github.com/angelmondragon/pickup-orders/internal/payments"
	"github.com/angelmondragon/pickup-orders/internal/pickup"
	"github.com/angelmondragon/pickup-orders/internal/pricing"
	"github.com/angelmondragon/pickup-orders/pkg/db"
	"github.com/angelmondragon/pickup-orders/pkg/db/dbtest"
	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/angelmondragon/pickup-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
	"github.com/angelmondragon/pickup-orders/pkg/logger"
	"github.com/angelmondragon/pickup-orders/pkg/outbox"
)

type stubCatalog struct {
	items map[uuid.UUID]models.MenuItem
}

func (s stubCatalog) GetItems(ctx context.Context, ids []uuid.UUID) ([]models.MenuItem, error) {
	out := []models.MenuItem{}
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

type stubScheduler struct {
	at time.Time
}

func (s stubScheduler) Schedule(ctx context.Context, outletID uuid.UUID, itemCount int) pickup.Schedule {
	return pickup.Schedule{PickupAt: s.at}
}

type stubGateway struct {
	calls  int
	intent *payments.Intent
	err    error
}

func (g *stubGateway) CreateIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	intent := *g.intent
	intent.AmountMinor = req.AmountMinor
	return &intent, nil
}

func (g *stubGateway) KeyID() string { return "rzp_test_key" }

// failingRepo fails every insert and records compensating deletes.
type failingRepo struct {
	orders.Repository
	deleted []uuid.UUID
}

func (f *failingRepo) WithTx(tx *gorm.DB) orders.Repository { return f }

func (f *failingRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	return errors.New("insert failed")
}

func (f *failingRepo) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	f.deleted = append(f.deleted, orderID)
	return nil
}

type harness struct {
	conn    *gorm.DB
	svc     *Service
	gateway *stubGateway
	outlet  uuid.UUID
	dosa    uuid.UUID
	foreign uuid.UUID
}

func newHarness(t *testing.T, repo orders.Repository) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	outlet := uuid.New()
	dosa := uuid.New()
	foreign := uuid.New()
	catalog := stubCatalog{items: map[uuid.UUID]models.MenuItem{
		dosa:    {ID: dosa, OutletID: outlet, Name: "Masala Dosa", PriceMinor: 14900, IsAvailable: true},
		foreign: {ID: foreign, OutletID: uuid.New(), Name: "Pav Bhaji", PriceMinor: 12000, IsAvailable: true},
	}}
	validator, err := pricing.NewValidator(catalog, decimal.RequireFromString("0.05"))
	require.NoError(t, err)

	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: &bytes.Buffer{}})
	if repo == nil {
		repo = orders.NewRepository(conn)
	}
	gateway := &stubGateway{intent: &payments.Intent{ID: "order_intent_1", Currency: "INR", Status: "created"}}
	svc, err := NewService(ServiceParams{
		Tx:        db.NewFromGorm(conn),
		Orders:    repo,
		Pricing:   validator,
		Scheduler: stubScheduler{at: time.Now().UTC().Add(25 * time.Minute)},
		Gateway:   gateway,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:    logg,
	})
	require.NoError(t, err)
	return &harness{conn: conn, svc: svc, gateway: gateway, outlet: outlet, dosa: dosa, foreign: foreign}
}

func (h *harness) input(method string) PlaceOrderInput {
	return PlaceOrderInput{
		OutletID:      h.outlet,
		CustomerName:  "Asha",
		CustomerPhone: "+919800000000",
		PaymentMethod: method,
		Items:         []ItemInput{{ItemID: h.dosa, Quantity: 2}},
	}
}

func TestPlaceOrderGatewayPath(t *testing.T) {
	h := newHarness(t, nil)
	userID := uuid.New()

	result, err := h.svc.PlaceOrder(context.Background(), userID, h.input(""))
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPendingPayment, result.Status)
	assert.Equal(t, enums.PaymentStatusPending, result.PaymentStatus)
	assert.Equal(t, int64(29800), result.Subtotal)
	assert.Equal(t, int64(1490), result.Tax)
	assert.Equal(t, int64(31290), result.Total)
	assert.Equal(t, "order_intent_1", result.IntentID)
	assert.Equal(t, "rzp_test_key", result.KeyID)
	assert.Equal(t, int64(31290), result.Amount)

	stored, err := orders.NewRepository(h.conn).FindByIntentID(context.Background(), "order_intent_1")
	require.NoError(t, err)
	assert.Equal(t, result.OrderID, stored.ID)
	assert.Equal(t, userID, stored.UserID)

	var items int64
	require.NoError(t, h.conn.Model(&models.OrderItem{}).Where("order_id = ?", stored.ID).Count(&items).Error)
	assert.Equal(t, int64(1), items)

	var events []models.OutboxEvent
	require.NoError(t, h.conn.Where("aggregate_id = ?", stored.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)
}

func TestPlaceOrderCashPathSkipsGateway(t *testing.T) {
	h := newHarness(t, nil)

	result, err := h.svc.PlaceOrder(context.Background(), uuid.New(), h.input("cash_on_pickup"))
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPlaced, result.Status)
	assert.Equal(t, enums.PaymentStatusCashOnPickup, result.PaymentStatus)
	assert.Empty(t, result.IntentID)
	assert.Zero(t, h.gateway.calls)

	stored, err := orders.NewRepository(h.conn).FindByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.NotNil(t, stored.PlacedAt)
	assert.Nil(t, stored.PaymentIntentID)
}

func TestPlaceOrderRejectsBadInput(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.PlaceOrder(ctx, uuid.Nil, h.input(""))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))

	empty := h.input("")
	empty.Items = nil
	_, err = h.svc.PlaceOrder(ctx, uuid.New(), empty)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	zero := h.input("")
	zero.Items[0].Quantity = 0
	_, err = h.svc.PlaceOrder(ctx, uuid.New(), zero)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.PlaceOrder(ctx, uuid.New(), h.input("bitcoin"))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	missing := h.input("")
	missing.Items = []ItemInput{{ItemID: uuid.New(), Quantity: 1}}
	_, err = h.svc.PlaceOrder(ctx, uuid.New(), missing)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeItemNotFound))

	assert.Zero(t, h.gateway.calls)
}

func TestPlaceOrderForeignOutletItemCreatesNothing(t *testing.T) {
	h := newHarness(t, nil)

	input := h.input("")
	input.Items = append(input.Items, ItemInput{ItemID: h.foreign, Quantity: 1})
	result, err := h.svc.PlaceOrder(context.Background(), uuid.New(), input)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeItemUnavailable))
	assert.Zero(t, h.gateway.calls)

	var count int64
	require.NoError(t, h.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPlaceOrderRejectsOversizedQuantity(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	huge := h.input("")
	huge.Items[0].Quantity = 1 << 50
	_, err := h.svc.PlaceOrder(ctx, uuid.New(), huge)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	// two lines within the per-line bound that merge past it
	split := h.input("")
	split.Items = []ItemInput{{ItemID: h.dosa, Quantity: 60}, {ItemID: h.dosa, Quantity: 60}}
	_, err = h.svc.PlaceOrder(ctx, uuid.New(), split)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	assert.Zero(t, h.gateway.calls)
	var count int64
	require.NoError(t, h.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPlaceOrderGatewayFailureCreatesNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.gateway.err = pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "gateway down")

	_, err := h.svc.PlaceOrder(context.Background(), uuid.New(), h.input(""))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeGatewayUnavailable))

	var count int64
	require.NoError(t, h.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPlaceOrderPersistFailureCompensates(t *testing.T) {
	repo := &failingRepo{}
	h := newHarness(t, repo)

	_, err := h.svc.PlaceOrder(context.Background(), uuid.New(), h.input(""))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeOrderPersist))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "order_intent_1", details["intent_id"])
	assert.Equal(t, false, details["retry_safe"])
	assert.Len(t, repo.deleted, 1)

	_, err = h.svc.PlaceOrder(context.Background(), uuid.New(), h.input("cash_on_pickup"))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInternal))
	assert.Len(t, repo.deleted, 2)
}
