package realtime

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/pickup-orders/api/responses"
	"github.com/angelmondragon/pickup-orders/api/validators"
	internalorders "github.com/angelmondragon/pickup-orders/internal/orders"
	rt "github.com/angelmondragon/pickup-orders/internal/realtime"
	pkgAuth "github.com/angelmondragon/pickup-orders/pkg/auth"
	"github.com/angelmondragon/pickup-orders/pkg/config"
	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
	"github.com/angelmondragon/pickup-orders/pkg/logger"
)

const (
	scopeUser   = "user"
	scopeOutlet = "outlet"
)

// SubscriptionAuthorizer resolves which rooms a caller may join.
type SubscriptionAuthorizer interface {
	ResolveCaller(ctx context.Context, userID uuid.UUID) (internalorders.Caller, error)
	GetOrder(ctx context.Context, orderID, callerID uuid.UUID) (*models.Order, error)
}

// Subscribe upgrades to a websocket bound to one room: a single order, the
// caller's own orders, or an outlet's orders for staff and admins. Browsers
// cannot set headers on websocket requests, so the token may come in the query.
func Subscribe(jwtCfg config.JWTConfig, hub *rt.Hub, authz SubscriptionAuthorizer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if hub == nil || authz == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "realtime unavailable"))
			return
		}

		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" {
			token = validators.BearerToken(r.Header.Get("Authorization"))
		}
		if token == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing token"))
			return
		}
		claims, err := pkgAuth.ParseAccessToken(jwtCfg, token)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
			return
		}
		if logg != nil {
			ctx = logg.WithUserID(ctx, claims.UserID.String())
		}

		room, err := resolveRoom(ctx, r, authz, claims.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		conn, err := rt.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			// the upgrader has already written the HTTP error
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "room", room), "websocket upgrade failed: "+err.Error())
			}
			return
		}

		client := rt.NewClient(hub, conn, room, logg)
		client.Serve(context.WithoutCancel(ctx))
		if logg != nil {
			logg.Debug(logg.WithField(ctx, "room", room), "websocket subscribed")
		}
	}
}

func resolveRoom(ctx context.Context, r *http.Request, authz SubscriptionAuthorizer, userID uuid.UUID) (string, error) {
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("order_id")); raw != "" {
		orderID, err := validators.ParseUUIDParam(raw, "order_id")
		if err != nil {
			return "", err
		}
		if _, err := authz.GetOrder(ctx, orderID, userID); err != nil {
			return "", err
		}
		return rt.OrderRoom(orderID), nil
	}

	switch strings.TrimSpace(query.Get("scope")) {
	case scopeUser:
		if _, err := authz.ResolveCaller(ctx, userID); err != nil {
			return "", err
		}
		return rt.UserRoom(userID), nil
	case scopeOutlet:
		caller, err := authz.ResolveCaller(ctx, userID)
		if err != nil {
			return "", err
		}
		requested, err := validators.ParseOptionalUUIDQuery(r, "outlet_id")
		if err != nil {
			return "", err
		}
		return outletRoom(caller, requested)
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "order_id or scope is required").WithDetails(map[string]any{"field": "scope"})
}

func outletRoom(caller internalorders.Caller, requested *uuid.UUID) (string, error) {
	switch caller.Actor {
	case internalorders.ActorVendorStaff:
		if caller.OutletID == nil {
			return "", pkgerrors.New(pkgerrors.CodeForbidden, "staff is not bound to an outlet")
		}
		if requested != nil && *requested != *caller.OutletID {
			return "", pkgerrors.New(pkgerrors.CodeForbidden, "outlet access denied")
		}
		return rt.OutletRoom(*caller.OutletID), nil
	case internalorders.ActorAdmin:
		if requested == nil {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "outlet_id is required").WithDetails(map[string]any{"field": "outlet_id"})
		}
		return rt.OutletRoom(*requested), nil
	}
	return "", pkgerrors.New(pkgerrors.CodeForbidden, "outlet feed requires a staff or admin role")
}
