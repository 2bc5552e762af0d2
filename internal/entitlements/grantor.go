package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stkpush-backend/pkg/db/models"
	"github.com/angelmondragon/stkpush-backend/pkg/enums"
)

var (
	ErrUserNotFound = errors.New("entitlement user not found")
	ErrUnknownTier  = errors.New("entitlement tier is not purchasable")
)

// UserStore is the users-table surface the grantor writes through.
type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpgradeTier(ctx context.Context, id uuid.UUID, tier enums.SubscriptionTier, at time.Time) (bool, error)
}

// IntentMarker records grant bookkeeping on the paying intent.
type IntentMarker interface {
	MarkEntitlementGranted(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkEntitlementError(ctx context.Context, id uuid.UUID, message string) error
}

// GrantResult describes a best-effort grant. Err is informational; Grant never fails the caller.
type GrantResult struct {
	Granted bool
	// Upgraded is false when the user already held the tier or a higher one.
	Upgraded bool
	Skipped  bool
	Tier     enums.SubscriptionTier
	Err      error
}

// Grantor raises users.subscription_tier after a confirmed payment.
type Grantor struct {
	users   UserStore
	intents IntentMarker
	now     func() time.Time
}

// NewGrantor wires the grantor. intents may be nil when bookkeeping is not needed.
func NewGrantor(users UserStore, intents IntentMarker) (*Grantor, error) {
	if users == nil {
		return nil, fmt.Errorf("user store required")
	}
	return &Grantor{users: users, intents: intents, now: time.Now}, nil
}

// Grant upgrades the user to tier. Re-granting an equal or lower tier is reported as granted.
func (g *Grantor) Grant(ctx context.Context, userID *uuid.UUID, tierValue string) GrantResult {
	if userID == nil || *userID == uuid.Nil {
		return GrantResult{Skipped: true}
	}

	tier, err := enums.ParseSubscriptionTier(tierValue)
	if err != nil || !tier.IsPurchasable() {
		return GrantResult{Err: fmt.Errorf("%w: %q", ErrUnknownTier, tierValue)}
	}

	upgraded, err := g.users.UpgradeTier(ctx, *userID, tier, g.now())
	if err != nil {
		return GrantResult{Tier: tier, Err: fmt.Errorf("upgrade tier: %w", err)}
	}
	if !upgraded {
		if _, err := g.users.FindByID(ctx, *userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return GrantResult{Tier: tier, Err: fmt.Errorf("%w: %s", ErrUserNotFound, userID)}
			}
			return GrantResult{Tier: tier, Err: fmt.Errorf("load user: %w", err)}
		}
	}
	return GrantResult{Granted: true, Upgraded: upgraded, Tier: tier}
}

// GrantForIntent grants the tier an intent paid for and records the outcome on the intent.
// A bookkeeping failure is joined into Err but does not undo a successful grant.
func (g *Grantor) GrantForIntent(ctx context.Context, intent *models.PaymentIntent) GrantResult {
	if intent == nil {
		return GrantResult{Skipped: true}
	}
	result := g.Grant(ctx, intent.UserID, intent.Tier())
	if g.intents == nil || result.Skipped {
		return result
	}

	var markErr error
	if result.Granted {
		markErr = g.intents.MarkEntitlementGranted(ctx, intent.ID, g.now())
	} else if result.Err != nil {
		markErr = g.intents.MarkEntitlementError(ctx, intent.ID, result.Err.Error())
	}
	if markErr != nil {
		result.Err = errors.Join(result.Err, fmt.Errorf("record grant outcome: %w", markErr))
	}
	return result
}
