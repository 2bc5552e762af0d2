package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stkpush-backend/internal/payments"
	"github.com/angelmondragon/stkpush-backend/pkg/db/models"
	"github.com/angelmondragon/stkpush-backend/pkg/enums"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
	"github.com/angelmondragon/stkpush-backend/pkg/mpesa"
)

const (
	defaultPendingQueryAfter = 2 * time.Minute
	defaultPendingQueryBatch = 50
)

type PendingQueryJobParams struct {
	Logger  *logger.Logger
	Intents stalePendingLister
	Gateway stkQuerier
	Applier outcomeApplier
	After   time.Duration
	Batch   int
}

type stalePendingLister interface {
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentIntent, error)
	MarkQueried(ctx context.Context, id uuid.UUID, at time.Time) error
}

type stkQuerier interface {
	QuerySTKPush(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResult, error)
}

type outcomeApplier interface {
	ApplyOutcome(ctx context.Context, intent *models.PaymentIntent, outcome payments.CallbackOutcome) (*payments.ReconcileResult, error)
}

// NewPendingQueryJob asks the gateway about intents whose callback never arrived.
func NewPendingQueryJob(params PendingQueryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("intent repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if params.Applier == nil {
		return nil, fmt.Errorf("outcome applier required")
	}
	after := params.After
	if after <= 0 {
		after = defaultPendingQueryAfter
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultPendingQueryBatch
	}
	return &pendingQueryJob{
		logg:    params.Logger,
		intents: params.Intents,
		gateway: params.Gateway,
		applier: params.Applier,
		after:   after,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type pendingQueryJob struct {
	logg    *logger.Logger
	intents stalePendingLister
	gateway stkQuerier
	applier outcomeApplier
	after   time.Duration
	batch   int
	now     func() time.Time
}

func (j *pendingQueryJob) Name() string { return "pending-intent-query" }

func (j *pendingQueryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	rows, err := j.intents.ListStalePending(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list stale pending intents: %w", err)
	}

	var (
		errs     error
		applied  int
		stillOut int
	)
	for i := range rows {
		intent := rows[i]
		if intent.CheckoutRequestID == nil {
			continue
		}
		intentCtx := j.logg.WithIntentID(ctx, intent.ID.String())
		intentCtx = j.logg.WithCheckoutRequestID(intentCtx, *intent.CheckoutRequestID)

		res, err := j.gateway.QuerySTKPush(intentCtx, *intent.CheckoutRequestID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("query intent %s: %w", intent.ID, err))
			errs = multierr.Append(errs, j.markQueried(intentCtx, intent.ID))
			continue
		}
		if res.Pending {
			stillOut++
			errs = multierr.Append(errs, j.markQueried(intentCtx, intent.ID))
			continue
		}
		result, err := j.applier.ApplyOutcome(intentCtx, &intent, payments.CallbackOutcome{
			ResultCode: res.ResultCode,
			ResultDesc: res.ResultDesc,
			Source:     payments.SourceQuery,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("apply query result for intent %s: %w", intent.ID, err))
			continue
		}
		if result.Outcome == enums.CallbackOutcomeApplied {
			applied++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(rows),
		"applied":    applied,
		"pending":    stillOut,
	})
	j.logg.Info(logCtx, "pending intent query complete")
	return errs
}

// markQueried moves an unsettled intent behind the rest of the backlog.
func (j *pendingQueryJob) markQueried(ctx context.Context, id uuid.UUID) error {
	if err := j.intents.MarkQueried(ctx, id, j.now()); err != nil {
		return fmt.Errorf("mark intent %s queried: %w", id, err)
	}
	return nil
}
