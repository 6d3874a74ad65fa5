package digest

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-digest/internal/model"
)

type UnseenSource interface {
	UsersWithUnseenNotifications(ctx context.Context, users []uuid.UUID, since time.Time) ([]uuid.UUID, error)
}

// PendingSet holds the users who might be owed a digest this cycle.
type PendingSet map[uuid.UUID]struct{}

func NewPendingSet(ids ...uuid.UUID) PendingSet {
	s := make(PendingSet, len(ids))
	s.Add(ids...)
	return s
}

func (s PendingSet) Add(ids ...uuid.UUID) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

func (s PendingSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

func (s PendingSet) Len() int { return len(s) }

// IDs returns the members in a stable order.
func (s PendingSet) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

// unseenLookback deliberately over-fetches; the evaluator and the zero-content
// veto narrow the candidates down using the exact watermark.
func unseenLookback(tier model.Tier) time.Duration {
	if tier == model.TierWeekly {
		return WeekWindow
	}
	return DayWindow
}

type PendingAggregator struct {
	source UnseenSource
}

func NewPendingAggregator(source UnseenSource) *PendingAggregator {
	return &PendingAggregator{source: source}
}

// Aggregate unions the announcement fanout with every tier's users holding
// unseen notifications inside the tier's lookback.
func (a *PendingAggregator) Aggregate(ctx context.Context, now time.Time, tiers *Tiers, fanout *Fanout) (PendingSet, error) {
	pending := NewPendingSet()
	if fanout != nil {
		pending.Add(fanout.Immediate...)
		pending.Add(fanout.Daily...)
		pending.Add(fanout.Weekly...)
	}

	for _, tier := range model.DeliveryTiers {
		bucket := tiers.Bucket(tier)
		if len(bucket) == 0 {
			continue
		}
		ids, err := a.source.UsersWithUnseenNotifications(ctx, bucket, now.Add(-unseenLookback(tier)))
		if err != nil {
			return nil, fmt.Errorf("failed to load %s users with unseen notifications: %w", tier, err)
		}
		pending.Add(ids...)
	}
	return pending, nil
}
