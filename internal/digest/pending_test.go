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

func TestPendingSet(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	s := NewPendingSet(a, a)
	s.Add(b, a)

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has(a))
	assert.False(t, s.Has(uuid.New()))
	assert.Equal(t, s.IDs(), s.IDs())
	assert.ElementsMatch(t, []uuid.UUID{a, b}, s.IDs())
}

func TestAggregateUnionsFanoutAndUnseen(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-30 * 24 * time.Hour)
	store := newMemStore()

	recentDaily := store.addUser(model.TierDaily, "", created)
	store.addEvent(recentDaily.ID, model.NotificationTypeFollow, 1, false, now.Add(-2*time.Hour))

	staleDaily := store.addUser(model.TierDaily, "", created)
	store.addEvent(staleDaily.ID, model.NotificationTypeFollow, 1, false, now.Add(-30*time.Hour))

	weekly := store.addUser(model.TierWeekly, "", created)
	store.addEvent(weekly.ID, model.NotificationTypeRepost, 2, false, now.Add(-100*time.Hour))

	seen := store.addUser(model.TierImmediate, "", created)
	store.addEvent(seen.ID, model.NotificationTypeFavorite, 3, true, now.Add(-time.Minute))

	fannedOut := store.addUser(model.TierImmediate, "", created)

	tiers, err := NewTierIndex(store).Classify(context.Background())
	require.NoError(t, err)
	fanout := &Fanout{Immediate: []uuid.UUID{fannedOut.ID, fannedOut.ID}}

	pending, err := NewPendingAggregator(store).Aggregate(context.Background(), now, tiers, fanout)
	require.NoError(t, err)

	assert.ElementsMatch(t, []uuid.UUID{recentDaily.ID, weekly.ID, fannedOut.ID}, pending.IDs())
	assert.False(t, pending.Has(staleDaily.ID))
	assert.False(t, pending.Has(seen.ID))
}

func TestAggregateSkipsEmptyBuckets(t *testing.T) {
	store := newMemStore()
	store.addUser(model.TierWeekly, "", time.Now().Add(-time.Hour))

	tiers, err := NewTierIndex(store).Classify(context.Background())
	require.NoError(t, err)

	_, err = NewPendingAggregator(store).Aggregate(context.Background(), time.Now(), tiers, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, store.unseenCalls)
}

func TestAggregateError(t *testing.T) {
	store := newMemStore()
	store.addUser(model.TierDaily, "", time.Now().Add(-time.Hour))
	tiers, err := NewTierIndex(store).Classify(context.Background())
	require.NoError(t, err)

	store.failUnseen = errStore
	_, err = NewPendingAggregator(store).Aggregate(context.Background(), time.Now(), tiers, &Fanout{})
	assert.ErrorIs(t, err, errStore)
}
