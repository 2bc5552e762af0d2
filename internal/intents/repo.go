package intents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stkpush-backend/pkg/db"
	"github.com/angelmondragon/stkpush-backend/pkg/db/models"
	"github.com/angelmondragon/stkpush-backend/pkg/enums"
)

// CheckoutRequestIndex is the unique index that makes checkout_request_id the dedup key.
const CheckoutRequestIndex = "ux_payment_intents_checkout_request_id"

// MaxResultDescLen bounds result_desc text recorded from gateway errors.
const MaxResultDescLen = 255

var (
	ErrInvalidTransition = errors.New("terminal transition requires paid or failed status")
	ErrCorrelationNotSet = errors.New("checkout request id is required")
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payment intent repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentIntent, error) {
	if intent.Status == "" {
		intent.Status = enums.PaymentStatusPending
	}
	if err := r.db.WithContext(ctx).Create(intent).Error; err != nil {
		return nil, err
	}
	return intent, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("checkout_request_id = ?", checkoutRequestID).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// FindByMerchantRequestID returns the oldest intent carrying the merchant id.
// Merchant ids are not unique so the earliest row wins.
func (r *repository) FindByMerchantRequestID(ctx context.Context, merchantRequestID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("merchant_request_id = ?", merchantRequestID).
		Order("created_at ASC").
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// FindByCorrelation looks up by checkout id first, then merchant id.
func (r *repository) FindByCorrelation(ctx context.Context, checkoutRequestID, merchantRequestID string) (*models.PaymentIntent, error) {
	if checkoutRequestID != "" {
		intent, err := r.FindByCheckoutRequestID(ctx, checkoutRequestID)
		if err == nil {
			return intent, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if merchantRequestID != "" {
		return r.FindByMerchantRequestID(ctx, merchantRequestID)
	}
	return nil, gorm.ErrRecordNotFound
}

// AttachCorrelation stamps the provider ids onto the pre-created row. When another
// row already holds checkoutRequestID that row is canonical: only its missing
// merchant id is filled and it is returned instead of preID.
func (r *repository) AttachCorrelation(ctx context.Context, preID uuid.UUID, checkoutRequestID, merchantRequestID string) (*models.PaymentIntent, error) {
	if checkoutRequestID == "" {
		return nil, ErrCorrelationNotSet
	}

	updates := map[string]any{
		"checkout_request_id": checkoutRequestID,
		"updated_at":          db.NowUTC(),
	}
	if merchantRequestID != "" {
		updates["merchant_request_id"] = merchantRequestID
	}

	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ?", preID).
		Updates(updates)
	switch {
	case res.Error == nil && res.RowsAffected == 1:
		return r.FindByID(ctx, preID)
	case res.Error == nil:
		return nil, fmt.Errorf("attach correlation: pre-created intent %s: %w", preID, gorm.ErrRecordNotFound)
	case !db.IsUniqueViolation(res.Error, CheckoutRequestIndex):
		return nil, res.Error
	}

	existing, err := r.FindByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("load canonical intent for %s: %w", checkoutRequestID, err)
	}
	if existing.MerchantRequestID == nil && merchantRequestID != "" {
		err := r.db.WithContext(ctx).
			Model(&models.PaymentIntent{}).
			Where("id = ? AND merchant_request_id IS NULL", existing.ID).
			Updates(map[string]any{"merchant_request_id": merchantRequestID, "updated_at": db.NowUTC()}).Error
		if err != nil {
			return nil, err
		}
		existing.MerchantRequestID = &merchantRequestID
	}
	return existing, nil
}

// MarkTerminal performs the compare-and-set PENDING -> PAID|FAILED transition.
// It returns true only for the call whose update moved the row.
func (r *repository) MarkTerminal(ctx context.Context, id uuid.UUID, t Transition) (bool, error) {
	if !t.Status.IsTerminal() {
		return false, ErrInvalidTransition
	}

	updates := map[string]any{
		"status":      t.Status,
		"result_code": t.ResultCode,
		"result_desc": truncate(t.ResultDesc, MaxResultDescLen),
		"updated_at":  db.NowUTC(),
	}
	if len(t.RawCallback) > 0 {
		updates["raw_callback"] = string(t.RawCallback)
	}
	if t.Status == enums.PaymentStatusPaid {
		paidAt := t.PaidAt
		if paidAt.IsZero() {
			paidAt = db.NowUTC()
		}
		updates["paid_at"] = paidAt.UTC()
		if t.MpesaReceipt != "" {
			updates["mpesa_receipt"] = t.MpesaReceipt
		}
		if t.PayerPhoneConfirmed != "" {
			updates["payer_phone_confirmed"] = t.PayerPhoneConfirmed
		}
	}

	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.PaymentIntent{}).Error
}

// ListStalePending returns pending intents with a checkout id created before the cutoff.
// Intents never queried come first, then the least recently queried.
func (r *repository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentIntent, error) {
	var out []models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status = ? AND checkout_request_id IS NOT NULL AND created_at < ?", enums.PaymentStatusPending, createdBefore.UTC()).
		Order("COALESCE(last_queried_at, created_at) ASC").
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListPaidUngranted returns paid intents linked to a user whose grant has not succeeded,
// ordered by last grant attempt so failing rows rotate behind untried ones.
func (r *repository) ListPaidUngranted(ctx context.Context, limit int) ([]models.PaymentIntent, error) {
	var out []models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status = ? AND user_id IS NOT NULL AND entitlement_granted_at IS NULL", enums.PaymentStatusPaid).
		Order("COALESCE(entitlement_attempted_at, paid_at) ASC").
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *repository) MarkEntitlementGranted(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"entitlement_granted_at":   at.UTC(),
			"entitlement_attempted_at": at.UTC(),
			"entitlement_error":        nil,
			"updated_at":               db.NowUTC(),
		}).Error
}

func (r *repository) MarkEntitlementError(ctx context.Context, id uuid.UUID, message string) error {
	now := db.NowUTC()
	return r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"entitlement_error":        truncate(message, MaxResultDescLen),
			"entitlement_attempted_at": now,
			"updated_at":               now,
		}).Error
}

// MarkQueried stamps a gateway status query that did not settle the intent.
func (r *repository) MarkQueried(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusPending).
		Update("last_queried_at", at.UTC()).Error
}

func truncate(value string, n int) string {
	runes := []rune(value)
	if len(runes) <= n {
		return value
	}
	return string(runes[:n])
}
