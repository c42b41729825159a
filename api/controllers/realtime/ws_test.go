package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalorders "github.com/angelmondragon/pickup-orders/internal/orders"
	rt "github.com/angelmondragon/pickup-orders/internal/realtime"
	pkgAuth "github.com/angelmondragon/pickup-orders/pkg/auth"
	"github.com/angelmondragon/pickup-orders/pkg/config"
	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/angelmondragon/pickup-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
)

var jwtCfg = config.JWTConfig{Secret: "secret", Issuer: "pickup-orders", ExpirationMinutes: 60}

type stubAuthorizer struct {
	caller internalorders.Caller
	orders map[uuid.UUID]*models.Order
}

func (s stubAuthorizer) ResolveCaller(ctx context.Context, userID uuid.UUID) (internalorders.Caller, error) {
	caller := s.caller
	caller.UserID = userID
	return caller, nil
}

func (s stubAuthorizer) GetOrder(ctx context.Context, orderID, callerID uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[orderID]
	if !ok || order.UserID != callerID {
		return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
	}
	return order, nil
}

func mint(t *testing.T, userID uuid.UUID, role enums.Role) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(jwtCfg, time.Now(), pkgAuth.AccessTokenPayload{UserID: userID, Role: role})
	require.NoError(t, err)
	return token
}

func startHub(t *testing.T) *rt.Hub {
	t.Helper()
	hub := rt.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()
	t.Cleanup(cancel)
	return hub
}

func TestSubscribeRejectsMissingToken(t *testing.T) {
	handler := Subscribe(jwtCfg, startHub(t), stubAuthorizer{}, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/realtime/ws?scope=user", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubscribeHidesOtherCustomersOrders(t *testing.T) {
	orderID := uuid.New()
	authz := stubAuthorizer{
		caller: internalorders.Caller{Actor: internalorders.ActorCustomer},
		orders: map[uuid.UUID]*models.Order{orderID: {ID: orderID, UserID: uuid.New()}},
	}
	handler := Subscribe(jwtCfg, startHub(t), authz, nil)

	token := mint(t, uuid.New(), enums.RoleCustomer)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/realtime/ws?order_id="+orderID.String()+"&token="+token, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscribeRequiresScope(t *testing.T) {
	handler := Subscribe(jwtCfg, startHub(t), stubAuthorizer{caller: internalorders.Caller{Actor: internalorders.ActorCustomer}}, nil)
	token := mint(t, uuid.New(), enums.RoleCustomer)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/realtime/ws?token="+token, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOutletRoomScoping(t *testing.T) {
	bound := uuid.New()
	other := uuid.New()

	cases := []struct {
		name      string
		caller    internalorders.Caller
		requested *uuid.UUID
		room      string
		code      pkgerrors.Code
	}{
		{"staff default outlet", internalorders.Caller{Actor: internalorders.ActorVendorStaff, OutletID: &bound}, nil, rt.OutletRoom(bound), ""},
		{"staff own outlet", internalorders.Caller{Actor: internalorders.ActorVendorStaff, OutletID: &bound}, &bound, rt.OutletRoom(bound), ""},
		{"staff other outlet", internalorders.Caller{Actor: internalorders.ActorVendorStaff, OutletID: &bound}, &other, "", pkgerrors.CodeForbidden},
		{"unbound staff", internalorders.Caller{Actor: internalorders.ActorVendorStaff}, nil, "", pkgerrors.CodeForbidden},
		{"admin any outlet", internalorders.Caller{Actor: internalorders.ActorAdmin}, &other, rt.OutletRoom(other), ""},
		{"admin without outlet", internalorders.Caller{Actor: internalorders.ActorAdmin}, nil, "", pkgerrors.CodeValidation},
		{"customer", internalorders.Caller{Actor: internalorders.ActorCustomer}, &bound, "", pkgerrors.CodeForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			room, err := outletRoom(tc.caller, tc.requested)
			if tc.code != "" {
				require.Error(t, err)
				assert.True(t, pkgerrors.HasCode(err, tc.code))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.room, room)
		})
	}
}

func TestSubscribeStreamsOrderEvents(t *testing.T) {
	hub := startHub(t)
	userID := uuid.New()
	orderID := uuid.New()
	authz := stubAuthorizer{
		caller: internalorders.Caller{Actor: internalorders.ActorCustomer},
		orders: map[uuid.UUID]*models.Order{orderID: {ID: orderID, UserID: userID}},
	}
	srv := httptest.NewServer(Subscribe(jwtCfg, hub, authz, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?order_id=" + orderID.String() + "&token=" + mint(t, userID, enums.RoleCustomer)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.RoomSize(rt.OrderRoom(orderID)) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Broadcast(context.Background(), []string{rt.OrderRoom(orderID)}, rt.Event{
		Type:    "order.status_changed",
		Payload: json.RawMessage(`{"status":"ready"}`),
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var event rt.Event
	require.NoError(t, json.Unmarshal(msg, &event))
	assert.Equal(t, "order.status_changed", event.Type)
	assert.JSONEq(t, `{"status":"ready"}`, string(event.Payload))
}
