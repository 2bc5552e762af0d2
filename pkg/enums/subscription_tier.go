package enums

import (
	"fmt"
	"strings"
)

// SubscriptionTier is the canonical entitlement stored on users.subscription_tier.
type SubscriptionTier string

const (
	SubscriptionTierFree    SubscriptionTier = "free"
	SubscriptionTierBasic   SubscriptionTier = "basic"
	SubscriptionTierPremium SubscriptionTier = "premium"
	SubscriptionTierPro     SubscriptionTier = "pro"
)

// ordered from lowest to highest
var validSubscriptionTiers = []SubscriptionTier{
	SubscriptionTierFree,
	SubscriptionTierBasic,
	SubscriptionTierPremium,
	SubscriptionTierPro,
}

// String implements fmt.Stringer.
func (s SubscriptionTier) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SubscriptionTier.
func (s SubscriptionTier) IsValid() bool {
	return s.Rank() >= 0
}

// IsPurchasable reports whether the tier can be bought through a charge.
func (s SubscriptionTier) IsPurchasable() bool {
	return s.IsValid() && s != SubscriptionTierFree
}

// Rank returns the tier's position in the upgrade order, or -1 when unknown.
func (s SubscriptionTier) Rank() int {
	for i, candidate := range validSubscriptionTiers {
		if candidate == s {
			return i
		}
	}
	return -1
}

// ParseSubscriptionTier converts raw input (case-insensitive) into a SubscriptionTier.
func ParseSubscriptionTier(value string) (SubscriptionTier, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validSubscriptionTiers {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription tier %q", value)
}
