package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/stkpush-backend/pkg/logger"
)

const (
	defaultCallbackRetention = 30 * 24 * time.Hour
	callbackRetentionBatch   = 500
	callbackRetentionRounds  = 20
)

type CallbackRetentionJobParams struct {
	Logger     *logger.Logger
	Repository callbackRetentionRepo
	Retention  time.Duration
}

type callbackRetentionRepo interface {
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// NewCallbackRetentionJob prunes resolved inbox rows. Parked rows are never deleted.
func NewCallbackRetentionJob(params CallbackRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("callback repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultCallbackRetention
	}
	return &callbackRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type callbackRetentionJob struct {
	logg      *logger.Logger
	repo      callbackRetentionRepo
	retention time.Duration
	now       func() time.Time
}

func (j *callbackRetentionJob) Name() string { return "callback-inbox-retention" }

func (j *callbackRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	for round := 0; round < callbackRetentionRounds; round++ {
		rows, err := j.repo.DeleteProcessedBefore(ctx, cutoff, callbackRetentionBatch)
		if err != nil {
			return fmt.Errorf("callback retention: %w", err)
		}
		deleted += rows
		if rows < callbackRetentionBatch {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "callback inbox retention complete")
	return nil
}
