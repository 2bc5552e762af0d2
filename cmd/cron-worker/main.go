package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stkpush-backend/internal/cron"
	"github.com/angelmondragon/stkpush-backend/internal/entitlements"
	"github.com/angelmondragon/stkpush-backend/internal/intents"
	"github.com/angelmondragon/stkpush-backend/internal/payments"
	"github.com/angelmondragon/stkpush-backend/internal/users"
	"github.com/angelmondragon/stkpush-backend/pkg/config"
	"github.com/angelmondragon/stkpush-backend/pkg/db"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
	"github.com/angelmondragon/stkpush-backend/pkg/metrics"
	"github.com/angelmondragon/stkpush-backend/pkg/migrate"
	"github.com/angelmondragon/stkpush-backend/pkg/mpesa"
	"github.com/angelmondragon/stkpush-backend/pkg/observability"
	"github.com/angelmondragon/stkpush-backend/pkg/redis"
)

const lockKeyFormat = cron.DefaultLockKey + ":%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	shutdownTracing, err := observability.Setup(context.Background(), cfg.OTel, "cron-worker")
	if err != nil {
		logg.Error(context.Background(), "failed to set up tracing", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
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
	reconciler, err := payments.NewReconciler(payments.ReconcilerParams{
		Intents:   intentRepo,
		Callbacks: callbackRepo,
		Granter:   grantor,
		Observer:  payments.NewLogObserver(logg, paymentMetrics),
		Logger:    logg,
		Metrics:   paymentMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}

	regrantJob, err := cron.NewEntitlementRegrantJob(cron.EntitlementRegrantJobParams{
		Logger:  logg,
		Intents: intentRepo,
		Granter: grantor,
		Batch:   cfg.Cron.RegrantBatch,
	})
	exitOnJobError(logg, "entitlement-regrant", err)

	pendingJob, err := cron.NewPendingQueryJob(cron.PendingQueryJobParams{
		Logger:  logg,
		Intents: intentRepo,
		Gateway: mpesaClient,
		Applier: reconciler,
		After:   cfg.Cron.PendingQueryAfter,
		Batch:   cfg.Cron.PendingQueryBatch,
	})
	exitOnJobError(logg, "pending-intent-query", err)

	retentionJob, err := cron.NewCallbackRetentionJob(cron.CallbackRetentionJobParams{
		Logger:     logg,
		Repository: callbackRepo,
		Retention:  cfg.Cron.CallbackRetention,
	})
	exitOnJobError(logg, "callback-inbox-retention", err)

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(pendingJob, regrantJob, retentionJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func exitOnJobError(logg *logger.Logger, job string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(context.Background(), "job", job), "failed to create cron job", err)
	os.Exit(1)
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
