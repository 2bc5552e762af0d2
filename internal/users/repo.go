package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stkpush-backend/pkg/db/models"
	"github.com/angelmondragon/stkpush-backend/pkg/enums"
)

// Repository exposes the entitlement columns of the users table.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpgradeTier raises subscription_tier to tier when the current tier ranks lower.
// It reports whether the row changed; equal or higher tiers are left untouched.
func (r *Repository) UpgradeTier(ctx context.Context, id uuid.UUID, tier enums.SubscriptionTier, at time.Time) (bool, error) {
	lower := tiersBelow(tier)
	if len(lower) == 0 {
		return false, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND subscription_tier IN ?", id, lower).
		UpdateColumns(map[string]any{
			"subscription_tier":            tier,
			"subscription_tier_updated_at": at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func tiersBelow(tier enums.SubscriptionTier) []string {
	rank := tier.Rank()
	var out []string
	for _, candidate := range []enums.SubscriptionTier{
		enums.SubscriptionTierFree,
		enums.SubscriptionTierBasic,
		enums.SubscriptionTierPremium,
		enums.SubscriptionTierPro,
	} {
		if candidate.Rank() < rank {
			out = append(out, candidate.String())
		}
	}
	return out
}
