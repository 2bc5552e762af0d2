package intents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stkpush-backend/pkg/db"
	"github.com/angelmondragon/stkpush-backend/pkg/db/models"
	"github.com/angelmondragon/stkpush-backend/pkg/enums"
)

var pendingOutcomes = []enums.CallbackOutcome{enums.CallbackOutcomeReceived, enums.CallbackOutcomeParked}

type callbackRepository struct {
	db *gorm.DB
}

// NewCallbackRepository builds the callback inbox repository.
func NewCallbackRepository(db *gorm.DB) CallbackRepository {
	return &callbackRepository{db: db}
}

func (r *callbackRepository) WithTx(tx *gorm.DB) CallbackRepository {
	if tx == nil {
		return r
	}
	return &callbackRepository{db: tx}
}

func (r *callbackRepository) Record(ctx context.Context, cb *models.PaymentCallback) (*models.PaymentCallback, error) {
	if cb.Outcome == "" {
		cb.Outcome = enums.CallbackOutcomeReceived
	}
	if err := r.db.WithContext(ctx).Create(cb).Error; err != nil {
		return nil, err
	}
	return cb, nil
}

// Resolve records what happened to a delivery. Only unresolved rows change, so a
// late writer cannot overwrite a drained or applied outcome. Parked rows stay unprocessed.
func (r *callbackRepository) Resolve(ctx context.Context, id uuid.UUID, intentID *uuid.UUID, outcome enums.CallbackOutcome) error {
	updates := map[string]any{"outcome": outcome}
	if intentID != nil {
		updates["intent_id"] = *intentID
	}
	if !outcome.IsPending() {
		updates["processed_at"] = db.NowUTC()
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentCallback{}).
		Where("id = ? AND outcome IN ?", id, pendingOutcomes).
		Updates(updates).Error
}

// ListParked returns unresolved deliveries for the correlation ids, oldest first.
func (r *callbackRepository) ListParked(ctx context.Context, checkoutRequestID, merchantRequestID string) ([]models.PaymentCallback, error) {
	q := r.db.WithContext(ctx).Where("outcome IN ?", pendingOutcomes)
	switch {
	case checkoutRequestID != "" && merchantRequestID != "":
		q = q.Where("(checkout_request_id = ? OR (checkout_request_id IS NULL AND merchant_request_id = ?))", checkoutRequestID, merchantRequestID)
	case checkoutRequestID != "":
		q = q.Where("checkout_request_id = ?", checkoutRequestID)
	case merchantRequestID != "":
		q = q.Where("merchant_request_id = ?", merchantRequestID)
	default:
		return nil, nil
	}

	var out []models.PaymentCallback
	err := q.Order("received_at ASC").Find(&out).Error
	return out, err
}

// DeleteProcessedBefore removes resolved deliveries older than cutoff, at most limit rows.
func (r *callbackRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	sub := r.db.WithContext(ctx).
		Model(&models.PaymentCallback{}).
		Select("id").
		Where("processed_at IS NOT NULL AND processed_at < ?", cutoff.UTC()).
		Limit(limit)
	res := r.db.WithContext(ctx).Where("id IN (?)", sub).Delete(&models.PaymentCallback{})
	return res.RowsAffected, res.Error
}
