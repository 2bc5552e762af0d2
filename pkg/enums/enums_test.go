package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaymentStatusTerminal(t *testing.T) {
	require.False(t, PaymentStatusPending.IsTerminal())
	require.True(t, PaymentStatusPaid.IsTerminal())
	require.True(t, PaymentStatusFailed.IsTerminal())

	_, err := ParsePaymentStatus("settled")
	require.Error(t, err)
}

func TestParseSubscriptionTier(t *testing.T) {
	tier, err := ParseSubscriptionTier(" Premium ")
	require.NoError(t, err)
	require.Equal(t, SubscriptionTierPremium, tier)
	require.True(t, tier.IsPurchasable())
	require.False(t, SubscriptionTierFree.IsPurchasable())
	require.Greater(t, SubscriptionTierPro.Rank(), SubscriptionTierBasic.Rank())

	_, err = ParseSubscriptionTier("platinum")
	require.Error(t, err)
}

func TestParseChargeMode(t *testing.T) {
	mode, err := ParseChargeMode("")
	require.NoError(t, err)
	require.Equal(t, ChargeModePaybill, mode)
	require.Equal(t, "CustomerPayBillOnline", mode.TransactionType())

	mode, err = ParseChargeMode("TILL")
	require.NoError(t, err)
	require.Equal(t, "CustomerBuyGoodsOnline", mode.TransactionType())

	_, err = ParseChargeMode("card")
	require.Error(t, err)
}
