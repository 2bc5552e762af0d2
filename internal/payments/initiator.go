package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/angelmondragon/stkpush-backend/internal/intents"
	"github.com/angelmondragon/stkpush-backend/pkg/db/models"
	"github.com/angelmondragon/stkpush-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stkpush-backend/pkg/errors"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
	"github.com/angelmondragon/stkpush-backend/pkg/metrics"
	"github.com/angelmondragon/stkpush-backend/pkg/mpesa"
	"github.com/angelmondragon/stkpush-backend/pkg/phone"
)

const (
	defaultDescription = "Subscription"

	// gatewayFailureCode marks intents failed by the charge request rather than a callback.
	gatewayFailureCode = -1

	// Amounts outside these bounds are rejected before any decimal rescaling.
	maxAmountExponent = 9
	maxAmountDigits   = 12
)

// Gateway sends the STK push charge.
type Gateway interface {
	STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
}

// InitiateInput is the caller's charge request. Amount keeps the caller's text so
// fractional and non-numeric values are rejected rather than rounded.
type InitiateInput struct {
	Amount      string
	Phone       string
	Tier        string
	UserID      *uuid.UUID
	ProductID   *uuid.UUID
	AccountRef  string
	Description string
	ChargeMode  string
}

// InitiateResult carries the canonical intent id the caller should poll.
type InitiateResult struct {
	IntentID          uuid.UUID
	CheckoutRequestID string
	MerchantRequestID string
	ProviderMessage   string
}

type InitiatorParams struct {
	Intents    intents.Repository
	Gateway    Gateway
	Reconciler *Reconciler
	Observer   SideEffectObserver
	Logger     *logger.Logger
	Metrics    *metrics.PaymentMetrics
	MaxAmount  int64
}

// Initiator pre-creates an intent, pushes the charge and attaches correlation ids.
type Initiator struct {
	intents    intents.Repository
	gateway    Gateway
	reconciler *Reconciler
	observer   SideEffectObserver
	logg       *logger.Logger
	metrics    *metrics.PaymentMetrics
	maxAmount  decimal.Decimal
}

func NewInitiator(params InitiatorParams) (*Initiator, error) {
	if params.Intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "intent repository required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway required")
	}
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.MaxAmount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "max amount must be positive")
	}
	observer := params.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Initiator{
		intents:    params.Intents,
		gateway:    params.Gateway,
		reconciler: params.Reconciler,
		observer:   observer,
		logg:       params.Logger,
		metrics:    params.Metrics,
		maxAmount:  decimal.NewFromInt(params.MaxAmount),
	}, nil
}

type validatedInput struct {
	amount      int64
	phone       string
	tier        enums.SubscriptionTier
	accountRef  string
	description string
	mode        enums.ChargeMode
}

func (i *Initiator) validate(in InitiateInput) (*validatedInput, error) {
	raw := strings.TrimSpace(in.Amount)
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a number")
	}
	exp := int(amount.Exponent())
	if exp > maxAmountExponent || exp < -maxAmountExponent || amount.NumDigits()+exp > maxAmountDigits {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount must not exceed %s", i.maxAmount))
	}
	if !amount.IsInteger() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a whole number")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if amount.GreaterThan(i.maxAmount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount must not exceed %s", i.maxAmount))
	}

	normalized, err := phone.Normalize(in.Phone)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	tier, err := enums.ParseSubscriptionTier(in.Tier)
	if err != nil || !tier.IsPurchasable() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier must be one of basic, premium, pro")
	}

	mode, err := enums.ParseChargeMode(in.ChargeMode)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "chargeMode must be paybill or till")
	}

	accountRef := strings.TrimSpace(in.AccountRef)
	if accountRef == "" {
		accountRef = tier.String()
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = defaultDescription
	}

	return &validatedInput{
		amount:      amount.IntPart(),
		phone:       normalized,
		tier:        tier,
		accountRef:  mpesa.Truncate(accountRef, mpesa.MaxAccountRefLen),
		description: mpesa.Truncate(description, mpesa.MaxDescriptionLen),
		mode:        mode,
	}, nil
}

// Initiate validates the request, records a pending intent and pushes the charge.
// A gateway failure marks the intent failed and returns a CodeGateway error.
func (i *Initiator) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	ctx, span := tracer.Start(ctx, "payments.Initiate")
	defer span.End()

	v, err := i.validate(in)
	if err != nil {
		i.metrics.IncInitiated("validation")
		return nil, err
	}

	tier := v.tier.String()
	pre, err := i.intents.Create(ctx, &models.PaymentIntent{
		Status:      enums.PaymentStatusPending,
		Method:      enums.PaymentMethodMPesaSTK,
		Currency:    enums.CurrencyKES,
		Amount:      v.amount,
		PayerPhone:  v.phone,
		AccountRef:  v.accountRef,
		Description: v.description,
		TargetTier:  &tier,
		ChargeMode:  v.mode,
		UserID:      in.UserID,
		ProductID:   in.ProductID,
	})
	if err != nil {
		i.metrics.IncInitiated("error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}
	ctx = i.logg.WithIntentID(ctx, pre.ID.String())
	span.SetAttributes(attribute.String("payment.intent_id", pre.ID.String()))

	resp, err := i.gateway.STKPush(ctx, mpesa.STKPushRequest{
		Amount:      v.amount,
		Phone:       v.phone,
		AccountRef:  v.accountRef,
		Description: v.description,
		Mode:        v.mode,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stk push failed")
		return nil, i.failPreCreated(ctx, pre.ID, err)
	}

	ctx = i.logg.WithCheckoutRequestID(ctx, resp.CheckoutRequestID)
	canonical, err := i.intents.AttachCorrelation(ctx, pre.ID, resp.CheckoutRequestID, resp.MerchantRequestID)
	if err != nil {
		i.metrics.IncInitiated("error")
		i.logg.Error(ctx, "attach correlation ids failed after stk push accepted", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach correlation ids")
	}

	if canonical.ID != pre.ID {
		ctx = i.logg.WithField(ctx, "pre_created_intent_id", pre.ID.String())
		i.logg.Warn(ctx, "checkout request id already held by another intent; using it as canonical")
		if err := i.intents.Delete(ctx, pre.ID); err != nil {
			i.observer.SideEffectFailed(ctx, EffectDedupDelete, pre.ID, err)
		}
	}

	if _, err := i.reconciler.DrainParked(ctx, canonical); err != nil {
		i.observer.SideEffectFailed(ctx, EffectDrainParked, canonical.ID, err)
	}

	i.metrics.IncInitiated("accepted")
	i.logg.Info(ctx, "stk push accepted")
	return &InitiateResult{
		IntentID:          canonical.ID,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		ProviderMessage:   resp.CustomerMessage,
	}, nil
}

func (i *Initiator) failPreCreated(ctx context.Context, id uuid.UUID, gatewayErr error) error {
	i.metrics.IncInitiated("gateway")
	desc := describeError(gatewayErr)
	if _, err := i.intents.MarkTerminal(ctx, id, intents.Transition{
		Status:     enums.PaymentStatusFailed,
		ResultCode: gatewayFailureCode,
		ResultDesc: desc,
	}); err != nil {
		i.observer.SideEffectFailed(ctx, EffectFailedMark, id, err)
	} else {
		i.metrics.IncTransition(enums.PaymentStatusFailed.String(), "gateway")
	}
	i.logg.Error(ctx, "stk push failed", gatewayErr)

	if typed := pkgerrors.As(gatewayErr); typed != nil && typed.Code() == pkgerrors.CodeGateway {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, gatewayErr, "stk push failed")
}

// describeError flattens a wrapped error chain into text suitable for result_desc.
func describeError(err error) string {
	if err == nil {
		return ""
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return err.Error()
	}
	desc := typed.Message()
	if cause := typed.Unwrap(); cause != nil {
		desc = desc + ": " + cause.Error()
	}
	return desc
}
