package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-digest/internal/model"
)

// All repository interfaces in one file
type (
	// UserRepository reads recipient records.
	UserRepository interface {
		UsersCreatedBefore(ctx context.Context, ts time.Time) ([]uuid.UUID, error)
		UserRecords(ctx context.Context, ids []uuid.UUID) ([]*model.User, error)
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	}

	// SettingsRepository owns the per-user digest tier.
	SettingsRepository interface {
		UsersByTier(ctx context.Context, tier model.Tier) ([]uuid.UUID, error)
		GetSettings(ctx context.Context, userID uuid.UUID) (*model.UserSettings, error)
		UpsertSettings(ctx context.Context, settings *model.UserSettings) error
	}

	// NotificationRepository reads direct notifications.
	NotificationRepository interface {
		UsersWithUnseenNotifications(ctx context.Context, users []uuid.UUID, since time.Time) ([]uuid.UUID, error)
		HasViewedAnnouncement(ctx context.Context, userID uuid.UUID, entityID int64) (bool, error)
		ListUnseen(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*model.NotificationEvent, error)
		CountUnseen(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	}

	AnnouncementRepository interface {
		ListPublishedSince(ctx context.Context, since time.Time) ([]*model.Announcement, error)
	}

	// DeliveryRepository is the watermark ledger.
	DeliveryRepository interface {
		LastDelivery(ctx context.Context, userID uuid.UUID) (*model.DeliveryRecord, error)
		CommitDelivery(ctx context.Context, record *model.DeliveryRecord) error
		PruneDeliveries(ctx context.Context, cutoff time.Time) (int64, error)
	}
)
