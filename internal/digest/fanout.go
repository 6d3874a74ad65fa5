package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-digest/internal/model"
	"github.com/jwalitptl/notify-digest/pkg/logger"
)

type UserCreationSource interface {
	UsersCreatedBefore(ctx context.Context, ts time.Time) ([]uuid.UUID, error)
}

type AnnouncementViewSource interface {
	HasViewedAnnouncement(ctx context.Context, userID uuid.UUID, entityID int64) (bool, error)
}

// Fanout lists, per tier, the users owed at least one announcement. A user can
// appear once per announcement.
type Fanout struct {
	Immediate []uuid.UUID
	Daily     []uuid.UUID
	Weekly    []uuid.UUID
}

func (f *Fanout) add(tier model.Tier, id uuid.UUID) {
	switch tier {
	case model.TierImmediate:
		f.Immediate = append(f.Immediate, id)
	case model.TierDaily:
		f.Daily = append(f.Daily, id)
	case model.TierWeekly:
		f.Weekly = append(f.Weekly, id)
	}
}

// LiveAnnouncements drops announcements not yet published or older than one
// and a half weekly windows.
func LiveAnnouncements(anns []*model.Announcement, now time.Time) []*model.Announcement {
	live := make([]*model.Announcement, 0, len(anns))
	for _, a := range anns {
		age := a.Age(now)
		if age < 0 || age >= liveAnnouncementAge {
			continue
		}
		live = append(live, a)
	}
	return live
}

// announcementMaxAge is the freshness rule per tier. Immediate users only get
// broadcasts from the last hour since anything older reads as a stale push.
func announcementMaxAge(tier model.Tier) time.Duration {
	switch tier {
	case model.TierImmediate:
		return immediateAnnouncementAge
	case model.TierDaily:
		return dailyAnnouncementAge
	case model.TierWeekly:
		return weeklyAnnouncementAge
	}
	return 0
}

type AnnouncementFanout struct {
	users  UserCreationSource
	views  AnnouncementViewSource
	logger *logger.Logger
}

func NewAnnouncementFanout(users UserCreationSource, views AnnouncementViewSource, log *logger.Logger) *AnnouncementFanout {
	if log == nil {
		log = logger.Nop()
	}
	return &AnnouncementFanout{users: users, views: views, logger: log}
}

// Run distributes each live announcement to the users who existed before it
// was published, have not viewed it, and whose tier still finds it fresh.
func (f *AnnouncementFanout) Run(ctx context.Context, anns []*model.Announcement, now time.Time, tiers *Tiers) (*Fanout, error) {
	out := &Fanout{}
	for _, a := range LiveAnnouncements(anns, now) {
		age := a.Age(now)

		users, err := f.users.UsersCreatedBefore(ctx, a.PublishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to load recipients of announcement %s: %w", a.ID, err)
		}

		for _, id := range users {
			tier := tiers.TierOf(id)
			if tier == model.TierDisabled || age >= announcementMaxAge(tier) {
				continue
			}

			viewed, err := f.views.HasViewedAnnouncement(ctx, id, a.EntityID)
			if err != nil {
				f.logger.Warn("Skipping announcement recipient, view lookup failed",
					"announcement_id", a.ID.String(), "user_id", id.String(), "error", err.Error())
				continue
			}
			if viewed {
				continue
			}

			f.logger.Debug("Announcement recipient",
				"announcement_id", a.ID.String(), "user_id", id.String(), "tier", string(tier))
			out.add(tier, id)
		}
	}
	return out, nil
}
