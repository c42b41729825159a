package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/pickup-orders/api/middleware"
	"github.com/angelmondragon/pickup-orders/api/responses"
	"github.com/angelmondragon/pickup-orders/api/validators"
	"github.com/angelmondragon/pickup-orders/internal/intake"
	internalorders "github.com/angelmondragon/pickup-orders/internal/orders"
	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/angelmondragon/pickup-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
	"github.com/angelmondragon/pickup-orders/pkg/logger"
	"github.com/angelmondragon/pickup-orders/pkg/pagination"
)

const (
	maxNameLength         = 120
	maxInstructionsLength = 500
)

type orderPlacer interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, input intake.PlaceOrderInput) (*intake.PlaceOrderResult, error)
}

// OrderService is the read and transition surface used by the order routes.
type OrderService interface {
	GetOrder(ctx context.Context, orderID, callerID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, callerID uuid.UUID, filter internalorders.ListFilter, params pagination.Params) (*internalorders.OrderList, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, requested enums.OrderStatus, callerID uuid.UUID) (*models.Order, error)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// Place validates the cart and places a pickup order for the caller.
func Place(svc orderPlacer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order intake unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input intake.PlaceOrderInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.CustomerName = validators.SanitizeString(input.CustomerName, maxNameLength)
		input.CustomerPhone = validators.SanitizeString(input.CustomerPhone, 0)
		if input.SpecialInstructions != nil {
			trimmed := validators.SanitizeString(*input.SpecialInstructions, maxInstructionsLength)
			input.SpecialInstructions = &trimmed
		}

		result, err := svc.PlaceOrder(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// List returns the caller's role-scoped page of orders.
func List(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := buildFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		list, err := svc.ListOrders(r.Context(), userID, filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderListView(list))
	}
}

// Detail returns one order when the caller may see it.
func Detail(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderId"), "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

// UpdateStatus applies a guarded status transition.
func UpdateStatus(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderId"), "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").WithDetails(map[string]any{"field": "status"}))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		order, err := svc.UpdateOrderStatus(ctx, orderID, status, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

func buildFilter(r *http.Request) (internalorders.ListFilter, error) {
	var filter internalorders.ListFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").WithDetails(map[string]any{"field": "status"})
		}
		filter.Status = &status
	}
	outletID, err := validators.ParseOptionalUUIDQuery(r, "outlet_id")
	if err != nil {
		return filter, err
	}
	filter.OutletID = outletID
	return filter, nil
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user context")
	}
	return id, nil
}
