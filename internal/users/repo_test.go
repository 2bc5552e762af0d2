package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stkpush-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stkpush-backend/pkg/db/models"
	"github.com/angelmondragon/stkpush-backend/pkg/enums"
)

func TestUpgradeTierOnlyRaises(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	id := uuid.New()
	require.NoError(t, conn.Create(&models.User{ID: id, SubscriptionTier: enums.SubscriptionTierBasic, EntitlementSchemaVersion: 2}).Error)

	changed, err := repo.UpgradeTier(ctx, id, enums.SubscriptionTierPremium, time.Now())
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = repo.UpgradeTier(ctx, id, enums.SubscriptionTierBasic, time.Now())
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = repo.UpgradeTier(ctx, id, enums.SubscriptionTierPremium, time.Now())
	require.NoError(t, err)
	require.False(t, changed)

	user, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, enums.SubscriptionTierPremium, user.SubscriptionTier)
	require.NotNil(t, user.SubscriptionTierUpdatedAt)
}

func TestTiersBelow(t *testing.T) {
	require.Empty(t, tiersBelow(enums.SubscriptionTierFree))
	require.Equal(t, []string{"free", "basic"}, tiersBelow(enums.SubscriptionTierPremium))
	require.Empty(t, tiersBelow(enums.SubscriptionTier("gold")))
}
