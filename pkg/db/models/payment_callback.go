package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/stkpush-backend/pkg/db/types"
	"github.com/angelmondragon/stkpush-backend/pkg/enums"
)

// PaymentCallback is the inbox record of a single gateway callback delivery.
type PaymentCallback struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	MerchantRequestID *string               `gorm:"column:merchant_request_id"`
	CheckoutRequestID *string               `gorm:"column:checkout_request_id"`
	ResultCode        int                   `gorm:"column:result_code;not null"`
	ResultDesc        string                `gorm:"column:result_desc;not null"`
	Payload           dbtypes.JSON          `gorm:"column:payload;not null"`
	IntentID          *uuid.UUID            `gorm:"column:intent_id;type:uuid"`
	Outcome           enums.CallbackOutcome `gorm:"column:outcome;not null;default:'received'"`
	ReceivedAt        time.Time             `gorm:"column:received_at;autoCreateTime"`
	ProcessedAt       *time.Time            `gorm:"column:processed_at"`
}

func (PaymentCallback) TableName() string {
	return "payment_callbacks"
}

func (c *PaymentCallback) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
