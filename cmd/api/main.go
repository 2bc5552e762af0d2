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

	"github.com/angelmondragon/stkpush-backend/api/routes"
	"github.com/angelmondragon/stkpush-backend/internal/entitlements"
	"github.com/angelmondragon/stkpush-backend/internal/intents"
	"github.com/angelmondragon/stkpush-backend/internal/payments"
	"github.com/angelmondragon/stkpush-backend/internal/users"
	mpesawebhook "github.com/angelmondragon/stkpush-backend/internal/webhooks/mpesa"
	"github.com/angelmondragon/stkpush-backend/pkg/config"
	"github.com/angelmondragon/stkpush-backend/pkg/db"
	"github.com/angelmondragon/stkpush-backend/pkg/env"
	"github.com/angelmondragon/stkpush-backend/pkg/instance"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
	"github.com/angelmondragon/stkpush-backend/pkg/metrics"
	"github.com/angelmondragon/stkpush-backend/pkg/migrate"
	"github.com/angelmondragon/stkpush-backend/pkg/mpesa"
	"github.com/angelmondragon/stkpush-backend/pkg/observability"
	"github.com/angelmondragon/stkpush-backend/pkg/redis"
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
	})

	shutdownTracing, err := observability.Setup(context.Background(), cfg.OTel, "api")
	if err != nil {
		logg.Error(context.Background(), "failed to set up tracing", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logg.Error(context.Background(), "error flushing traces", err)
		}
	}()

	dbClient, err := db.New(context.Background(), cfg.DB, logg,
		db.WithSQLite(cfg.FeatureFlags.UseSQLite),
		db.WithTracing(cfg.OTel.Enabled),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	mpesaClient, err := mpesa.NewClient(cfg.MPesa)
	if err != nil {
		logg.Error(context.Background(), "failed to create mpesa client", err)
		os.Exit(1)
	}

	intentRepo := intents.NewRepository(dbClient.DB())
	callbackRepo := intents.NewCallbackRepository(dbClient.DB())
	grantor, err := entitlements.NewGrantor(users.NewRepository(dbClient.DB()), intentRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement grantor", err)
		os.Exit(1)
	}

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	observer := payments.NewLogObserver(logg, paymentMetrics)

	reconciler, err := payments.NewReconciler(payments.ReconcilerParams{
		Intents:   intentRepo,
		Callbacks: callbackRepo,
		Granter:   grantor,
		Observer:  observer,
		Logger:    logg,
		Metrics:   paymentMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}

	initiator, err := payments.NewInitiator(payments.InitiatorParams{
		Intents:    intentRepo,
		Gateway:    mpesaClient,
		Reconciler: reconciler,
		Observer:   observer,
		Logger:     logg,
		Metrics:    paymentMetrics,
		MaxAmount:  cfg.MPesa.MaxAmount,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment initiator", err)
		os.Exit(1)
	}

	statusParams := payments.StatusResolverParams{
		Intents:         intentRepo,
		ProcessingAfter: cfg.Payments.ProcessingAfter,
		Logger:          logg,
	}
	if !cfg.App.IsProd() && cfg.Simulator.Enabled {
		simulator, err := payments.NewDevCallbackSimulator(reconciler, cfg.Simulator.ConfirmAfter)
		if err != nil {
			logg.Error(context.Background(), "failed to create callback simulator", err)
			os.Exit(1)
		}
		statusParams.Simulator = simulator
		logg.Warn(context.Background(), "dev callback simulator enabled; pending intents will auto-confirm")
	}
	statusResolver, err := payments.NewStatusResolver(statusParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create status resolver", err)
		os.Exit(1)
	}

	routerParams := routes.RouterParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Store:      redisClient,
		Initiator:  initiator,
		Status:     statusResolver,
		Reconciler: reconciler,
		Gatherer:   prometheus.DefaultGatherer,
	}
	if cfg.Payments.CallbackReplayTTL > 0 {
		guard, err := mpesawebhook.NewReplayGuard(redisClient, cfg.Payments.CallbackReplayTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create callback replay guard", err)
			os.Exit(1)
		}
		routerParams.ReplayGuard = guard
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"mpesa_env": cfg.MPesa.Env,
		"simulator": statusParams.Simulator != nil,
		"otel":      cfg.OTel.Enabled,
		"instance":  instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(routerParams),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
