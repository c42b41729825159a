package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/pickup-orders/api/controllers"
	ordercontrollers "github.com/angelmondragon/pickup-orders/api/controllers/orders"
	realtimecontrollers "github.com/angelmondragon/pickup-orders/api/controllers/realtime"
	webhookcontrollers "github.com/angelmondragon/pickup-orders/api/controllers/webhooks"
	"github.com/angelmondragon/pickup-orders/api/middleware"
	"github.com/angelmondragon/pickup-orders/internal/intake"
	"github.com/angelmondragon/pickup-orders/internal/realtime"
	gatewaywebhook "github.com/angelmondragon/pickup-orders/internal/webhooks/gateway"
	"github.com/angelmondragon/pickup-orders/pkg/config"
	"github.com/angelmondragon/pickup-orders/pkg/logger"
	"github.com/angelmondragon/pickup-orders/pkg/redis"
	"github.com/google/uuid"
)

// RedisStore is the redis surface the HTTP layer needs.
type RedisStore interface {
	redis.IdempotencyStore
	redis.Pinger
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope, subject string) string
}

type orderPlacer interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, input intake.PlaceOrderInput) (*intake.PlaceOrderResult, error)
}

// OrderService backs the order routes and websocket authorization.
type OrderService interface {
	ordercontrollers.OrderService
	realtimecontrollers.SubscriptionAuthorizer
}

type webhookHandler interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (gatewaywebhook.Outcome, error)
}

// Deps carries everything the router wires into handlers.
type Deps struct {
	DB             controllers.Pinger
	Redis          RedisStore
	Intake         orderPlacer
	Orders         OrderService
	Webhooks       webhookHandler
	Hub            *realtime.Hub
	MetricsHandler http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var redisPinger controllers.Pinger
	var idemStore redis.IdempotencyStore
	if deps.Redis != nil {
		redisPinger = deps.Redis
		idemStore = deps.Redis
	}
	idempotency := middleware.Idempotency(idemStore, cfg.Orders.PlaceIdempotencyTTL, logg)
	placePolicy := middleware.NewRateLimitPolicy("place_order", cfg.Orders.PlaceRateWindow, cfg.Orders.PlaceRateLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, redisPinger))
	})
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/gateway", webhookcontrollers.GatewayWebhook(deps.Webhooks, logg))
		r.Get("/realtime/ws", realtimecontrollers.Subscribe(cfg.JWT, deps.Hub, deps.Orders, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.With(middleware.RateLimit(placePolicy, deps.Redis, logg), idempotency).Post("/orders", ordercontrollers.Place(deps.Intake, logg))
			r.Get("/orders", ordercontrollers.List(deps.Orders, logg))
			r.Get("/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.With(idempotency).Post("/orders/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
		})
	})

	return r
}
