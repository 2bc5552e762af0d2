package payments

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stkpush-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stkpush-backend/pkg/errors"
)

const simulatedResultDesc = "Simulated confirmation (non-production)"

// DevCallbackSimulator confirms pending intents older than a threshold as if the
// provider had called back with success. Composition wires it only outside production.
type DevCallbackSimulator struct {
	reconciler   *Reconciler
	confirmAfter time.Duration
	now          func() time.Time
}

func NewDevCallbackSimulator(reconciler *Reconciler, confirmAfter time.Duration) (*DevCallbackSimulator, error) {
	if reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if confirmAfter <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "confirm delay must be positive")
	}
	return &DevCallbackSimulator{reconciler: reconciler, confirmAfter: confirmAfter, now: time.Now}, nil
}

// MaybeConfirm applies a synthetic success once the intent is old enough. It returns
// the reloaded intent when a transition was attempted, nil otherwise.
func (s *DevCallbackSimulator) MaybeConfirm(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentIntent, error) {
	if intent == nil || intent.Status.IsTerminal() {
		return nil, nil
	}
	if s.now().Sub(intent.CreatedAt) < s.confirmAfter {
		return nil, nil
	}

	amount := decimal.NewFromInt(intent.Amount)
	if _, err := s.reconciler.ApplyOutcome(ctx, intent, CallbackOutcome{
		ResultCode: 0,
		ResultDesc: simulatedResultDesc,
		Amount:     &amount,
		Receipt:    "SIM" + strings.ToUpper(strings.ReplaceAll(intent.ID.String(), "-", "")[:7]),
		Phone:      intent.PayerPhone,
		Source:     SourceSimulator,
	}); err != nil {
		return nil, err
	}
	return s.reconciler.intents.FindByID(ctx, intent.ID)
}
