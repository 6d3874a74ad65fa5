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

var fanoutNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func runFanout(t *testing.T, store *memStore, anns ...*model.Announcement) *Fanout {
	t.Helper()
	tiers, err := NewTierIndex(store).Classify(context.Background())
	require.NoError(t, err)
	out, err := NewAnnouncementFanout(store, store, nil).Run(context.Background(), anns, fanoutNow, tiers)
	require.NoError(t, err)
	return out
}

func TestFanoutRecipientsMustPredateAnnouncement(t *testing.T) {
	store := newMemStore()
	published := fanoutNow.Add(-20 * time.Minute)
	ann := store.addAnnouncement(7, published)

	imm := store.addUser(model.TierImmediate, "", published.Add(-time.Hour))
	lateDaily := store.addUser(model.TierDaily, "", published.Add(time.Minute))
	earlyDaily := store.addUser(model.TierDaily, "", published.Add(-48*time.Hour))

	out := runFanout(t, store, ann)

	assert.Equal(t, []uuid.UUID{imm.ID}, out.Immediate)
	assert.Equal(t, []uuid.UUID{earlyDaily.ID}, out.Daily)
	assert.NotContains(t, out.Daily, lateDaily.ID)
}

func TestFanoutSkipsViewedAnnouncement(t *testing.T) {
	store := newMemStore()
	created := fanoutNow.Add(-30 * 24 * time.Hour)
	ann := store.addAnnouncement(9, fanoutNow.Add(-10*time.Minute))
	other := store.addAnnouncement(10, fanoutNow.Add(-10*time.Minute))

	u := store.addUser(model.TierImmediate, "", created)
	store.addEvent(u.ID, model.NotificationTypeAnnouncement, 9, true, fanoutNow.Add(-5*time.Minute))

	out := runFanout(t, store, ann, other)

	// only the unviewed announcement reaches the user
	assert.Equal(t, []uuid.UUID{u.ID}, out.Immediate)
}

func TestFanoutFreshnessPerTier(t *testing.T) {
	created := fanoutNow.Add(-60 * 24 * time.Hour)

	tests := []struct {
		name      string
		age       time.Duration
		immediate bool
		daily     bool
		weekly    bool
	}{
		{"half an hour", 30 * time.Minute, true, true, true},
		{"two hours", 2 * time.Hour, false, true, true},
		{"just under daily limit", 35 * time.Hour, false, true, true},
		{"daily limit", 36 * time.Hour, false, false, true},
		{"ten days", 240 * time.Hour, false, false, true},
		{"weekly limit", 252 * time.Hour, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			imm := store.addUser(model.TierImmediate, "", created)
			daily := store.addUser(model.TierDaily, "", created)
			weekly := store.addUser(model.TierWeekly, "", created)
			ann := store.addAnnouncement(1, fanoutNow.Add(-tt.age))

			out := runFanout(t, store, ann)

			assert.Equal(t, tt.immediate, contains(out.Immediate, imm.ID))
			assert.Equal(t, tt.daily, contains(out.Daily, daily.ID))
			assert.Equal(t, tt.weekly, contains(out.Weekly, weekly.ID))
		})
	}
}

func TestFanoutIgnoresDisabledUsers(t *testing.T) {
	store := newMemStore()
	store.addUser(model.TierDisabled, "", fanoutNow.Add(-time.Hour*48))
	ann := store.addAnnouncement(3, fanoutNow.Add(-5*time.Minute))

	out := runFanout(t, store, ann)

	assert.Empty(t, out.Immediate)
	assert.Empty(t, out.Daily)
	assert.Empty(t, out.Weekly)
}

func TestFanoutViewLookupFailureSkipsUser(t *testing.T) {
	store := newMemStore()
	created := fanoutNow.Add(-48 * time.Hour)
	broken := store.addUser(model.TierDaily, "", created)
	ok := store.addUser(model.TierDaily, "", created)
	store.failViewed[broken.ID] = errStore
	ann := store.addAnnouncement(4, fanoutNow.Add(-time.Hour))

	out := runFanout(t, store, ann)

	assert.Equal(t, []uuid.UUID{ok.ID}, out.Daily)
}

func TestLiveAnnouncements(t *testing.T) {
	fresh := &model.Announcement{ID: uuid.New(), PublishedAt: fanoutNow.Add(-time.Hour)}
	future := &model.Announcement{ID: uuid.New(), PublishedAt: fanoutNow.Add(time.Hour)}
	stale := &model.Announcement{ID: uuid.New(), PublishedAt: fanoutNow.Add(-252 * time.Hour)}
	edge := &model.Announcement{ID: uuid.New(), PublishedAt: fanoutNow.Add(-251 * time.Hour)}

	live := LiveAnnouncements([]*model.Announcement{fresh, future, stale, edge}, fanoutNow)

	assert.Equal(t, []*model.Announcement{fresh, edge}, live)
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
