package digest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-digest/internal/model"
)

func TestClassify(t *testing.T) {
	store := newMemStore()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	imm := store.addUser(model.TierImmediate, "", created)
	daily := store.addUser(model.TierDaily, "UTC", created)
	weekly := store.addUser(model.TierWeekly, "UTC", created)
	off := store.addUser(model.TierDisabled, "", created)

	tiers, err := NewTierIndex(store).Classify(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.TierImmediate, tiers.TierOf(imm.ID))
	assert.Equal(t, model.TierDaily, tiers.TierOf(daily.ID))
	assert.Equal(t, model.TierWeekly, tiers.TierOf(weekly.ID))
	assert.Equal(t, model.TierDisabled, tiers.TierOf(off.ID))
	assert.Equal(t, model.TierDisabled, tiers.TierOf(uuid.New()))
	assert.Equal(t, []uuid.UUID{daily.ID}, tiers.Bucket(model.TierDaily))
	assert.Nil(t, tiers.Bucket(model.TierDisabled))
	assert.Equal(t, map[model.Tier]int{
		model.TierImmediate: 1,
		model.TierDaily:     1,
		model.TierWeekly:    1,
	}, tiers.Sizes())
}

// everyTier lists the same users under every tier.
type everyTier []uuid.UUID

func (e everyTier) UsersByTier(context.Context, model.Tier) ([]uuid.UUID, error) {
	return e, nil
}

func TestClassifyKeepsFirstTier(t *testing.T) {
	id := uuid.New()

	tiers, err := NewTierIndex(everyTier{id, id}).Classify(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{id}, tiers.Immediate)
	assert.Empty(t, tiers.Daily)
	assert.Empty(t, tiers.Weekly)
	assert.Equal(t, model.TierImmediate, tiers.TierOf(id))
}

func TestClassifyError(t *testing.T) {
	store := newMemStore()
	store.failTiers = errStore

	_, err := NewTierIndex(store).Classify(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errStore)
	assert.Contains(t, err.Error(), "immediate users")
}
