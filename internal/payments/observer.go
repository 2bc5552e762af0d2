package payments

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/stkpush-backend/internal/entitlements"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
	"github.com/angelmondragon/stkpush-backend/pkg/metrics"
)

// Side effects reported to a SideEffectObserver.
const (
	EffectDedupDelete  = "dedup_delete"
	EffectGrant        = "entitlement_grant"
	EffectDrainParked  = "drain_parked"
	EffectFailedMark   = "gateway_failure_mark"
	EffectInboxRecord  = "inbox_record"
	EffectInboxResolve = "inbox_resolve"
)

// SideEffectObserver receives failures of secondary effects that must not fail
// the primary payment operation.
type SideEffectObserver interface {
	SideEffectFailed(ctx context.Context, effect string, intentID uuid.UUID, err error)
	GrantCompleted(ctx context.Context, intentID uuid.UUID, result entitlements.GrantResult)
	AmountMismatch(ctx context.Context, intentID uuid.UUID, recorded int64, confirmed string)
}

// LogObserver reports side effects through the structured logger and Prometheus.
type LogObserver struct {
	logg    *logger.Logger
	metrics *metrics.PaymentMetrics
}

func NewLogObserver(logg *logger.Logger, m *metrics.PaymentMetrics) *LogObserver {
	return &LogObserver{logg: logg, metrics: m}
}

func (o *LogObserver) SideEffectFailed(ctx context.Context, effect string, intentID uuid.UUID, err error) {
	o.metrics.IncSideEffectFailure(effect)
	if o.logg == nil {
		return
	}
	ctx = o.logg.WithFields(ctx, map[string]any{"effect": effect, "intent_id": intentID.String()})
	o.logg.Error(ctx, "payment side effect failed", err)
}

func (o *LogObserver) GrantCompleted(ctx context.Context, intentID uuid.UUID, result entitlements.GrantResult) {
	switch {
	case result.Skipped:
		o.metrics.IncGrant("skipped")
	case result.Granted && result.Err == nil:
		o.metrics.IncGrant("granted")
	default:
		o.metrics.IncGrant("failed")
	}
	if o.logg == nil {
		return
	}
	ctx = o.logg.WithFields(ctx, map[string]any{
		"intent_id": intentID.String(),
		"tier":      result.Tier.String(),
		"upgraded":  result.Upgraded,
	})
	if result.Err != nil {
		o.metrics.IncSideEffectFailure(EffectGrant)
		o.logg.Error(ctx, "entitlement grant failed", result.Err)
		return
	}
	if result.Granted {
		o.logg.Info(ctx, "entitlement granted")
	}
}

func (o *LogObserver) AmountMismatch(ctx context.Context, intentID uuid.UUID, recorded int64, confirmed string) {
	o.metrics.IncAmountMismatch()
	if o.logg == nil {
		return
	}
	ctx = o.logg.WithFields(ctx, map[string]any{
		"intent_id":        intentID.String(),
		"recorded_amount":  recorded,
		"confirmed_amount": confirmed,
	})
	o.logg.Warn(ctx, "confirmed amount differs from intent amount")
}

type nopObserver struct{}

func (nopObserver) SideEffectFailed(context.Context, string, uuid.UUID, error) {}
func (nopObserver) GrantCompleted(context.Context, uuid.UUID, entitlements.GrantResult) {}
func (nopObserver) AmountMismatch(context.Context, uuid.UUID, int64, string) {}
