package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/stkpush-backend/internal/entitlements"
	"github.com/angelmondragon/stkpush-backend/pkg/db/models"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
)

const defaultRegrantBatch = 100

type EntitlementRegrantJobParams struct {
	Logger  *logger.Logger
	Intents paidIntentLister
	Granter intentGranter
	Batch   int
}

type paidIntentLister interface {
	ListPaidUngranted(ctx context.Context, limit int) ([]models.PaymentIntent, error)
}

type intentGranter interface {
	GrantForIntent(ctx context.Context, intent *models.PaymentIntent) entitlements.GrantResult
}

// NewEntitlementRegrantJob retries grants for paid intents whose grant never succeeded.
func NewEntitlementRegrantJob(params EntitlementRegrantJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("intent repository required")
	}
	if params.Granter == nil {
		return nil, fmt.Errorf("granter required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultRegrantBatch
	}
	return &entitlementRegrantJob{
		logg:    params.Logger,
		intents: params.Intents,
		granter: params.Granter,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type entitlementRegrantJob struct {
	logg    *logger.Logger
	intents paidIntentLister
	granter intentGranter
	batch   int
	now     func() time.Time
}

func (j *entitlementRegrantJob) Name() string { return "entitlement-regrant" }

func (j *entitlementRegrantJob) Run(ctx context.Context) error {
	rows, err := j.intents.ListPaidUngranted(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list paid ungranted intents: %w", err)
	}

	var (
		errs      error
		granted   int
		permanent int
	)
	for i := range rows {
		intent := rows[i]
		intentCtx := j.logg.WithIntentID(ctx, intent.ID.String())
		result := j.granter.GrantForIntent(intentCtx, &intent)
		switch {
		case result.Err == nil:
			granted++
		case errors.Is(result.Err, entitlements.ErrUserNotFound), errors.Is(result.Err, entitlements.ErrUnknownTier):
			// retrying cannot succeed until the user or tier data changes
			permanent++
			j.logg.Warn(j.logg.WithField(intentCtx, "error", result.Err.Error()), "entitlement regrant skipped")
		default:
			errs = multierr.Append(errs, fmt.Errorf("intent %s: %w", intent.ID, result.Err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(rows),
		"granted":    granted,
		"permanent":  permanent,
		"batch":      j.batch,
		"run_at":     j.now().UTC(),
	})
	j.logg.Info(logCtx, "entitlement regrant complete")
	return errs
}
