package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/pickup-orders/api/routes"
	"github.com/angelmondragon/pickup-orders/internal/accounts"
	"github.com/angelmondragon/pickup-orders/internal/catalog"
	"github.com/angelmondragon/pickup-orders/internal/intake"
	"github.com/angelmondragon/pickup-orders/internal/orders"
	"github.com/angelmondragon/pickup-orders/internal/payments"
	"github.com/angelmondragon/pickup-orders/internal/pickup"
	"github.com/angelmondragon/pickup-orders/internal/pricing"
	"github.com/angelmondragon/pickup-orders/internal/realtime"
	gatewaywebhook "github.com/angelmondragon/pickup-orders/internal/webhooks/gateway"
	"github.com/angelmondragon/pickup-orders/pkg/config"
	"github.com/angelmondragon/pickup-orders/pkg/db"
	"github.com/angelmondragon/pickup-orders/pkg/logger"
	"github.com/angelmondragon/pickup-orders/pkg/metrics"
	"github.com/angelmondragon/pickup-orders/pkg/migrate"
	"github.com/angelmondragon/pickup-orders/pkg/outbox"
	"github.com/angelmondragon/pickup-orders/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", multierr.Append(err, dbClient.Close()))
		os.Exit(1)
	}
	defer func() {
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing connections", err)
		}
	}()

	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outboxRepo, logg)
	ordersRepo := orders.NewRepository(dbClient.DB())

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     ordersRepo,
		Tx:       dbClient,
		Accounts: accounts.NewRepository(dbClient.DB()),
		Outbox:   outboxSvc,
		Guard:    orders.NewGuard(cfg.Orders.CancellationGrace),
		Metrics:  orderMetrics,
		Logger:   logg,
	})
	exitOnErr(logg, "failed to create orders service", err)

	taxRate, err := cfg.Pricing.Rate()
	exitOnErr(logg, "invalid tax rate", err)
	validator, err := pricing.NewValidator(catalog.NewRepository(dbClient.DB()), taxRate)
	exitOnErr(logg, "failed to create pricing validator", err)
	validator.WithMaxTotal(cfg.Pricing.MaxTotalMinor)

	scheduler, err := pickup.NewScheduler(pickup.NewQueueEstimator(dbClient.DB()), cfg.Orders.PickupFallback, logg)
	exitOnErr(logg, "failed to create pickup scheduler", err)

	intakeSvc, err := intake.NewService(intake.ServiceParams{
		Tx:        dbClient,
		Orders:    ordersRepo,
		Pricing:   validator,
		Scheduler: scheduler,
		Gateway:   payments.NewBroker(cfg.Gateway, payments.WithMetrics(orderMetrics)),
		Outbox:    outboxSvc,
		Metrics:   orderMetrics,
		Logger:    logg,
	})
	exitOnErr(logg, "failed to create intake service", err)

	replayGuard, err := gatewaywebhook.NewReplayGuard(redisClient, cfg.Webhook.ReplayTTL)
	exitOnErr(logg, "failed to create webhook replay guard", err)
	webhookSvc, err := gatewaywebhook.NewService(gatewaywebhook.ServiceParams{
		Orders:        ordersSvc,
		Guard:         replayGuard,
		SigningSecret: cfg.Gateway.WebhookSecret,
		AmountEpsilon: cfg.Orders.AmountEpsilonMinor,
		Metrics:       orderMetrics,
		Logger:        logg,
	})
	exitOnErr(logg, "failed to create webhook service", err)

	hub := realtime.NewHub(logg)
	fanout, err := realtime.NewFanout(redisClient, hub, redisClient.ChannelName(cfg.Realtime.Channel), logg)
	exitOnErr(logg, "failed to create realtime fanout", err)
	relay, err := realtime.NewRelay(realtime.RelayParams{
		Outbox:       outboxRepo,
		Orders:       ordersRepo,
		Hub:          fanout,
		Decoders:     outbox.OrderDecoders(),
		Logger:       logg,
		BatchSize:    cfg.Realtime.BatchSize,
		PollInterval: cfg.Realtime.PollInterval,
	})
	exitOnErr(logg, "failed to create realtime relay", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			DB:             dbClient,
			Redis:          redisClient,
			Intake:         intakeSvc,
			Orders:         ordersSvc,
			Webhooks:       webhookSvc,
			Hub:            hub,
			MetricsHandler: promhttp.Handler(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return hub.Run(groupCtx)
	})
	group.Go(func() error {
		return fanout.Run(groupCtx)
	})
	group.Go(func() error {
		return relay.Run(groupCtx)
	})
	group.Go(func() error {
		logg.Info(groupCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

func exitOnErr(logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
