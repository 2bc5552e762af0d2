package intents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stkpush-backend/pkg/db/models"
	"github.com/angelmondragon/stkpush-backend/pkg/enums"
)

// Repository persists payment intents. Lookups return gorm.ErrRecordNotFound when nothing matches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentIntent, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentIntent, error)
	FindByMerchantRequestID(ctx context.Context, merchantRequestID string) (*models.PaymentIntent, error)
	FindByCorrelation(ctx context.Context, checkoutRequestID, merchantRequestID string) (*models.PaymentIntent, error)
	AttachCorrelation(ctx context.Context, preID uuid.UUID, checkoutRequestID, merchantRequestID string) (*models.PaymentIntent, error)
	MarkTerminal(ctx context.Context, id uuid.UUID, t Transition) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentIntent, error)
	ListPaidUngranted(ctx context.Context, limit int) ([]models.PaymentIntent, error)
	MarkEntitlementGranted(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkEntitlementError(ctx context.Context, id uuid.UUID, message string) error
	MarkQueried(ctx context.Context, id uuid.UUID, at time.Time) error
}

// CallbackRepository persists the callback inbox.
type CallbackRepository interface {
	WithTx(tx *gorm.DB) CallbackRepository
	Record(ctx context.Context, cb *models.PaymentCallback) (*models.PaymentCallback, error)
	Resolve(ctx context.Context, id uuid.UUID, intentID *uuid.UUID, outcome enums.CallbackOutcome) error
	ListParked(ctx context.Context, checkoutRequestID, merchantRequestID string) ([]models.PaymentCallback, error)
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// Transition is the write-once terminal state applied by MarkTerminal.
type Transition struct {
	Status              enums.PaymentStatus
	ResultCode          int
	ResultDesc          string
	RawCallback         []byte
	MpesaReceipt        string
	PayerPhoneConfirmed string
	PaidAt              time.Time
}
