package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/stkpush-backend/pkg/db/types"
	"github.com/angelmondragon/stkpush-backend/pkg/enums"
)

// PaymentIntent tracks one STK push charge from initiation to its terminal state.
type PaymentIntent struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Status               enums.PaymentStatus `gorm:"column:status;not null;default:'pending'"`
	Method               enums.PaymentMethod `gorm:"column:method;not null;default:'mpesa_stk'"`
	Currency             enums.Currency      `gorm:"column:currency;not null;default:'KES'"`
	Amount               int64               `gorm:"column:amount;not null"`
	PayerPhone           string              `gorm:"column:payer_phone;not null"`
	AccountRef           string              `gorm:"column:account_ref;size:12;not null"`
	Description          string              `gorm:"column:description;size:13;not null"`
	TargetTier           *string             `gorm:"column:target_tier"`
	ChargeMode           enums.ChargeMode    `gorm:"column:charge_mode;not null;default:'paybill'"`
	MerchantRequestID    *string             `gorm:"column:merchant_request_id"`
	CheckoutRequestID    *string             `gorm:"column:checkout_request_id"`
	UserID               *uuid.UUID          `gorm:"column:user_id;type:uuid"`
	ProductID            *uuid.UUID          `gorm:"column:product_id;type:uuid"`
	PayerPhoneConfirmed  *string             `gorm:"column:payer_phone_confirmed"`
	MpesaReceipt         *string             `gorm:"column:mpesa_receipt"`
	ResultCode           *int                `gorm:"column:result_code"`
	ResultDesc           *string             `gorm:"column:result_desc"`
	RawCallback          dbtypes.JSON        `gorm:"column:raw_callback"`
	EntitlementGrantedAt *time.Time          `gorm:"column:entitlement_granted_at"`
	EntitlementError     *string             `gorm:"column:entitlement_error"`
	EntitlementTriedAt   *time.Time          `gorm:"column:entitlement_attempted_at"`
	LastQueriedAt        *time.Time          `gorm:"column:last_queried_at"`
	PaidAt               *time.Time          `gorm:"column:paid_at"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentIntent) TableName() string {
	return "payment_intents"
}

// BeforeCreate assigns the id in Go so both dialects behave the same.
func (p *PaymentIntent) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Tier returns the explicit target tier or falls back to the account reference.
func (p PaymentIntent) Tier() string {
	if p.TargetTier != nil && *p.TargetTier != "" {
		return *p.TargetTier
	}
	return p.AccountRef
}
