package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stkpush-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/stkpush-backend/api/controllers/webhooks"
	"github.com/angelmondragon/stkpush-backend/api/middleware"
	"github.com/angelmondragon/stkpush-backend/internal/payments"
	"github.com/angelmondragon/stkpush-backend/pkg/config"
	"github.com/angelmondragon/stkpush-backend/pkg/db"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
	"github.com/angelmondragon/stkpush-backend/pkg/redis"
)

// Store backs idempotent replay and rate limiting.
type Store interface {
	redis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type PaymentInitiator interface {
	Initiate(ctx context.Context, in payments.InitiateInput) (*payments.InitiateResult, error)
}

type PaymentStatusResolver interface {
	Status(ctx context.Context, intentID uuid.UUID) (*payments.StatusView, error)
}

type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          db.Pinger
	Redis       redis.Pinger
	Store       Store
	Initiator   PaymentInitiator
	Status      PaymentStatusResolver
	Reconciler  webhookcontrollers.MPesaCallbackService
	ReplayGuard webhookcontrollers.MPesaReplayGuard
	Gatherer    prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	initiatePolicy := middleware.NewRateLimitPolicy(
		"stk-push",
		cfg.Payments.InitiateRateWindow,
		cfg.Payments.InitiateIPLimit,
		cfg.Payments.InitiatePhoneLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Redis))
	})

	gatherer := params.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mpesa", webhookcontrollers.MPesaCallback(params.Reconciler, params.ReplayGuard, cfg.MPesa.CallbackToken, logg))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))

		r.With(
			middleware.Idempotency(params.Store, logg),
			middleware.RateLimit(initiatePolicy, params.Store, logg),
		).Post("/stk-push", controllers.InitiatePayment(params.Initiator, logg))
		r.Get("/{intentID}/status", controllers.PaymentStatus(params.Status, logg))
	})

	return r
}
