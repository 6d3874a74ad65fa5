package digest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-digest/internal/model"
)

type TierSource interface {
	UsersByTier(ctx context.Context, tier model.Tier) ([]uuid.UUID, error)
}

// Tiers is one cycle's snapshot of who receives which kind of digest.
type Tiers struct {
	Immediate []uuid.UUID
	Daily     []uuid.UUID
	Weekly    []uuid.UUID

	index map[uuid.UUID]model.Tier
}

func newTiers() *Tiers {
	return &Tiers{index: make(map[uuid.UUID]model.Tier)}
}

func (t *Tiers) add(tier model.Tier, id uuid.UUID) {
	if _, seen := t.index[id]; seen {
		return
	}
	t.index[id] = tier
	switch tier {
	case model.TierImmediate:
		t.Immediate = append(t.Immediate, id)
	case model.TierDaily:
		t.Daily = append(t.Daily, id)
	case model.TierWeekly:
		t.Weekly = append(t.Weekly, id)
	}
}

// Bucket returns the users of one delivery tier.
func (t *Tiers) Bucket(tier model.Tier) []uuid.UUID {
	switch tier {
	case model.TierImmediate:
		return t.Immediate
	case model.TierDaily:
		return t.Daily
	case model.TierWeekly:
		return t.Weekly
	}
	return nil
}

// TierOf reports the user's tier; users in no bucket are disabled.
func (t *Tiers) TierOf(id uuid.UUID) model.Tier {
	if tier, ok := t.index[id]; ok {
		return tier
	}
	return model.TierDisabled
}

func (t *Tiers) Sizes() map[model.Tier]int {
	return map[model.Tier]int{
		model.TierImmediate: len(t.Immediate),
		model.TierDaily:     len(t.Daily),
		model.TierWeekly:    len(t.Weekly),
	}
}

// TierIndex buckets users by their stored digest frequency.
type TierIndex struct {
	source TierSource
}

func NewTierIndex(source TierSource) *TierIndex {
	return &TierIndex{source: source}
}

// Classify loads the three delivery buckets. Disabled users are left out, and
// a user listed under several tiers keeps the first one in DeliveryTiers order.
func (x *TierIndex) Classify(ctx context.Context) (*Tiers, error) {
	tiers := newTiers()
	for _, tier := range model.DeliveryTiers {
		ids, err := x.source.UsersByTier(ctx, tier)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s users: %w", tier, err)
		}
		for _, id := range ids {
			tiers.add(tier, id)
		}
	}
	return tiers, nil
}
