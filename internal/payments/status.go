package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stkpush-backend/internal/intents"
	"github.com/angelmondragon/stkpush-backend/pkg/db/models"
	"github.com/angelmondragon/stkpush-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stkpush-backend/pkg/errors"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
)

const (
	messagePending    = "Waiting for the payer to confirm the M-Pesa prompt"
	messageProcessing = "Payment is being processed"
	messageSuccess    = "Payment received"
	messageFailed     = "Payment failed"
	messageNotSent    = "Payment request could not be sent to M-Pesa. Please try again"
)

// CallbackSimulator confirms stale pending intents outside production.
type CallbackSimulator interface {
	MaybeConfirm(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentIntent, error)
}

// StatusView is the client-facing status of an intent.
type StatusView struct {
	IntentID          uuid.UUID
	Status            enums.ClientPaymentStatus
	Message           string
	CheckoutRequestID *string
	Receipt           *string
	PaidAt            *time.Time
}

type StatusResolverParams struct {
	Intents         intents.Repository
	Simulator       CallbackSimulator
	ProcessingAfter time.Duration
	Logger          *logger.Logger
}

// StatusResolver maps stored intent state to client status.
type StatusResolver struct {
	intents         intents.Repository
	simulator       CallbackSimulator
	processingAfter time.Duration
	logg            *logger.Logger
	now             func() time.Time
}

func NewStatusResolver(params StatusResolverParams) (*StatusResolver, error) {
	if params.Intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "intent repository required")
	}
	if params.ProcessingAfter <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "processing threshold must be positive")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &StatusResolver{
		intents:         params.Intents,
		simulator:       params.Simulator,
		processingAfter: params.ProcessingAfter,
		logg:            params.Logger,
		now:             time.Now,
	}, nil
}

// Status returns the mapped status. It only writes when a simulator is wired.
func (s *StatusResolver) Status(ctx context.Context, intentID uuid.UUID) (*StatusView, error) {
	intent, err := s.intents.FindByID(ctx, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}

	if intent.Status == enums.PaymentStatusPending && s.simulator != nil {
		confirmed, err := s.simulator.MaybeConfirm(ctx, intent)
		if err != nil {
			s.logg.Error(s.logg.WithIntentID(ctx, intent.ID.String()), "simulated confirmation failed", err)
		} else if confirmed != nil {
			intent = confirmed
		}
	}

	return s.view(intent), nil
}

func (s *StatusResolver) view(intent *models.PaymentIntent) *StatusView {
	v := &StatusView{
		IntentID:          intent.ID,
		CheckoutRequestID: intent.CheckoutRequestID,
		Receipt:           intent.MpesaReceipt,
		PaidAt:            intent.PaidAt,
	}
	switch intent.Status {
	case enums.PaymentStatusPaid:
		v.Status = enums.ClientPaymentStatusSuccess
		v.Message = messageSuccess
	case enums.PaymentStatusFailed:
		v.Status = enums.ClientPaymentStatusFailed
		v.Message = messageFailed
		switch {
		case intent.ResultCode != nil && *intent.ResultCode == gatewayFailureCode:
			// result_desc holds transport detail kept for audit only
			v.Message = messageNotSent
		case intent.ResultDesc != nil && *intent.ResultDesc != "":
			v.Message = *intent.ResultDesc
		}
	default:
		v.Status = enums.ClientPaymentStatusPending
		v.Message = messagePending
		if s.now().Sub(intent.CreatedAt) >= s.processingAfter {
			v.Status = enums.ClientPaymentStatusProcessing
			v.Message = messageProcessing
		}
	}
	return v
}
