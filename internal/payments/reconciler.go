package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/angelmondragon/stkpush-backend/internal/entitlements"
	"github.com/angelmondragon/stkpush-backend/internal/intents"
	"github.com/angelmondragon/stkpush-backend/pkg/db/models"
	"github.com/angelmondragon/stkpush-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stkpush-backend/pkg/errors"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
	"github.com/angelmondragon/stkpush-backend/pkg/metrics"
	"github.com/angelmondragon/stkpush-backend/pkg/mpesa"
)

// Sources label where a terminal outcome came from.
const (
	SourceCallback  = "callback"
	SourceDrain     = "drain"
	SourceQuery     = "query"
	SourceSimulator = "simulator"
)

// Granter grants the entitlement an intent paid for.
type Granter interface {
	GrantForIntent(ctx context.Context, intent *models.PaymentIntent) entitlements.GrantResult
}

// CallbackOutcome is a provider result to apply to an intent, whichever path produced it.
type CallbackOutcome struct {
	ResultCode      int
	ResultDesc      string
	Amount          *decimal.Decimal
	Receipt         string
	Phone           string
	TransactionDate *time.Time
	Raw             []byte
	Source          string
}

// Succeeded reports whether the outcome confirms payment.
func (o CallbackOutcome) Succeeded() bool {
	return o.ResultCode == 0
}

// OutcomeFromCallback converts a parsed gateway callback.
func OutcomeFromCallback(cb *mpesa.Callback, raw []byte, source string) CallbackOutcome {
	return CallbackOutcome{
		ResultCode:      cb.ResultCode,
		ResultDesc:      cb.ResultDesc,
		Amount:          cb.Amount,
		Receipt:         cb.ReceiptNumber,
		Phone:           cb.PhoneNumber,
		TransactionDate: cb.TransactionDate,
		Raw:             raw,
		Source:          source,
	}
}

// ReconcileResult reports what a callback or applied outcome did.
type ReconcileResult struct {
	Outcome  enums.CallbackOutcome
	IntentID *uuid.UUID
	Status   enums.PaymentStatus
	Grant    *entitlements.GrantResult
}

type ReconcilerParams struct {
	Intents   intents.Repository
	Callbacks intents.CallbackRepository
	Granter   Granter
	Observer  SideEffectObserver
	Logger    *logger.Logger
	Metrics   *metrics.PaymentMetrics
}

// Reconciler applies provider results to intents exactly once.
type Reconciler struct {
	intents   intents.Repository
	callbacks intents.CallbackRepository
	granter   Granter
	observer  SideEffectObserver
	logg      *logger.Logger
	metrics   *metrics.PaymentMetrics
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "intent repository required")
	}
	if params.Callbacks == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "callback repository required")
	}
	if params.Granter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "granter required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	observer := params.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Reconciler{
		intents:   params.Intents,
		callbacks: params.Callbacks,
		granter:   params.Granter,
		observer:  observer,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// Reconcile handles one callback delivery. Only an unparseable payload returns a
// CodeValidation error; every other outcome is meant to be acknowledged.
//
// The delivery is written to the inbox before the intent lookup. The initiator
// attaches correlation ids before draining the inbox, so a delivery that misses
// the attach is always visible to the drain.
func (r *Reconciler) Reconcile(ctx context.Context, raw []byte) (*ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "payments.Reconcile")
	defer span.End()

	cb, err := mpesa.ParseCallback(raw)
	if err != nil {
		r.metrics.IncCallback("malformed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stk callback payload")
	}
	span.SetAttributes(
		attribute.String("mpesa.checkout_request_id", cb.CheckoutRequestID),
		attribute.Int("mpesa.result_code", cb.ResultCode),
	)
	ctx = r.logg.WithFields(ctx, map[string]any{
		"checkout_request_id": cb.CheckoutRequestID,
		"merchant_request_id": cb.MerchantRequestID,
		"result_code":         cb.ResultCode,
	})

	record, recordErr := r.callbacks.Record(ctx, &models.PaymentCallback{
		MerchantRequestID: optional(cb.MerchantRequestID),
		CheckoutRequestID: optional(cb.CheckoutRequestID),
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
		Payload:           raw,
	})
	if recordErr != nil {
		r.observer.SideEffectFailed(ctx, EffectInboxRecord, uuid.Nil, recordErr)
	}

	intent, err := r.intents.FindByCorrelation(ctx, cb.CheckoutRequestID, cb.MerchantRequestID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			r.metrics.IncCallback("error")
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup intent for callback")
		}
		if recordErr != nil {
			// neither parked nor applied; the caller must let a redelivery through
			r.metrics.IncCallback("error")
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, recordErr, "park unmatched callback")
		}
		r.resolve(ctx, record, nil, enums.CallbackOutcomeParked)
		r.metrics.IncCallback(enums.CallbackOutcomeParked.String())
		r.logg.Warn(ctx, "callback for unknown correlation id parked")
		return &ReconcileResult{Outcome: enums.CallbackOutcomeParked}, nil
	}

	result, err := r.ApplyOutcome(ctx, intent, OutcomeFromCallback(cb, raw, SourceCallback))
	if err != nil {
		r.metrics.IncCallback("error")
		return nil, err
	}
	r.resolve(ctx, record, &intent.ID, result.Outcome)
	r.metrics.IncCallback(result.Outcome.String())
	return result, nil
}

// ApplyOutcome moves a pending intent to its terminal state through the
// compare-and-set update. Terminal intents and lost races report duplicate.
// The grant runs only for the caller whose update performed a PAID transition.
func (r *Reconciler) ApplyOutcome(ctx context.Context, intent *models.PaymentIntent, outcome CallbackOutcome) (*ReconcileResult, error) {
	if intent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "intent required")
	}
	ctx = r.logg.WithIntentID(ctx, intent.ID.String())
	id := intent.ID

	if intent.Status.IsTerminal() {
		r.logg.Debug(ctx, "intent already terminal; outcome ignored")
		return &ReconcileResult{Outcome: enums.CallbackOutcomeDuplicate, IntentID: &id, Status: intent.Status}, nil
	}

	status := enums.PaymentStatusFailed
	if outcome.Succeeded() {
		status = enums.PaymentStatusPaid
		if outcome.Amount != nil && !outcome.Amount.Equal(decimal.NewFromInt(intent.Amount)) {
			r.observer.AmountMismatch(ctx, intent.ID, intent.Amount, outcome.Amount.String())
		}
	}

	transition := intents.Transition{
		Status:              status,
		ResultCode:          outcome.ResultCode,
		ResultDesc:          outcome.ResultDesc,
		RawCallback:         outcome.Raw,
		MpesaReceipt:        outcome.Receipt,
		PayerPhoneConfirmed: outcome.Phone,
	}
	if status == enums.PaymentStatusPaid {
		transition.PaidAt = time.Now().UTC()
	}

	won, err := r.intents.MarkTerminal(ctx, intent.ID, transition)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply terminal transition")
	}
	if !won {
		current := intent.Status
		if fresh, err := r.intents.FindByID(ctx, intent.ID); err == nil {
			current = fresh.Status
		}
		r.logg.Debug(ctx, "terminal transition lost to a concurrent writer")
		return &ReconcileResult{Outcome: enums.CallbackOutcomeDuplicate, IntentID: &id, Status: current}, nil
	}

	r.metrics.IncTransition(status.String(), outcome.Source)
	ctx = r.logg.WithFields(ctx, map[string]any{"status": status.String(), "source": outcome.Source})
	r.logg.Info(ctx, "payment intent reached terminal state")

	result := &ReconcileResult{Outcome: enums.CallbackOutcomeApplied, IntentID: &id, Status: status}
	if status != enums.PaymentStatusPaid {
		return result, nil
	}

	paid := *intent
	paid.Status = status
	paid.PaidAt = &transition.PaidAt
	grant := r.granter.GrantForIntent(ctx, &paid)
	r.observer.GrantCompleted(ctx, intent.ID, grant)
	result.Grant = &grant
	return result, nil
}

// DrainParked applies inbox deliveries that arrived before intent's correlation
// ids were attached.
func (r *Reconciler) DrainParked(ctx context.Context, intent *models.PaymentIntent) (int, error) {
	if intent == nil || intent.CheckoutRequestID == nil {
		return 0, nil
	}
	merchantID := ""
	if intent.MerchantRequestID != nil {
		merchantID = *intent.MerchantRequestID
	}

	parked, err := r.callbacks.ListParked(ctx, *intent.CheckoutRequestID, merchantID)
	if err != nil {
		return 0, fmt.Errorf("list parked callbacks: %w", err)
	}

	applied := 0
	current := intent
	for i := range parked {
		delivery := parked[i]
		cb, err := mpesa.ParseCallback(delivery.Payload)
		if err != nil {
			r.resolve(ctx, &delivery, &intent.ID, enums.CallbackOutcomeDuplicate)
			continue
		}
		result, err := r.ApplyOutcome(ctx, current, OutcomeFromCallback(cb, delivery.Payload, SourceDrain))
		if err != nil {
			return applied, err
		}
		if result.Outcome != enums.CallbackOutcomeApplied {
			// a received row belongs to an in-flight Reconcile call, which resolves it
			if delivery.Outcome == enums.CallbackOutcomeParked {
				r.resolve(ctx, &delivery, &intent.ID, enums.CallbackOutcomeDuplicate)
			}
			continue
		}
		applied++
		terminal := *current
		terminal.Status = result.Status
		current = &terminal
		r.resolve(ctx, &delivery, &intent.ID, enums.CallbackOutcomeDrained)
		r.metrics.IncCallback(enums.CallbackOutcomeDrained.String())
	}
	return applied, nil
}

func (r *Reconciler) resolve(ctx context.Context, record *models.PaymentCallback, intentID *uuid.UUID, outcome enums.CallbackOutcome) {
	if record == nil {
		return
	}
	if err := r.callbacks.Resolve(ctx, record.ID, intentID, outcome); err != nil {
		id := uuid.Nil
		if intentID != nil {
			id = *intentID
		}
		r.observer.SideEffectFailed(ctx, EffectInboxResolve, id, err)
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
