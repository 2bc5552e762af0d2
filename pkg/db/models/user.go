package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stkpush-backend/pkg/enums"
)

// User is the slice of the identity table this service reads and writes.
// The identity service owns the rest of the row.
type User struct {
	ID                        uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	SubscriptionTier          enums.SubscriptionTier `gorm:"column:subscription_tier;not null;default:'free'"`
	SubscriptionTierUpdatedAt *time.Time             `gorm:"column:subscription_tier_updated_at"`
	EntitlementSchemaVersion  int                    `gorm:"column:entitlement_schema_version;not null;default:2"`
}

func (User) TableName() string {
	return "users"
}
