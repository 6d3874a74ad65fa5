package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-digest/internal/model"
	"github.com/jwalitptl/notify-digest/internal/repository"
)

// Announcement rows in notifications only record that a user viewed a
// broadcast; they never count as direct notifications.
type notificationRepository struct {
	*BaseRepository
}

func NewNotificationRepository(base *BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) UsersWithUnseenNotifications(ctx context.Context, users []uuid.UUID, since time.Time) ([]uuid.UUID, error) {
	if len(users) == 0 {
		return nil, nil
	}
	query := `
		SELECT DISTINCT user_id FROM notifications
		WHERE user_id = ANY($1::uuid[])
			AND is_viewed = false
			AND type <> $2
			AND timestamp > $3
	`

	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, query, uuidArray(users), model.NotificationTypeAnnouncement, since)
	r.observe("users_with_unseen", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with unseen notifications: %w", err)
	}
	return ids, nil
}

func (r *notificationRepository) HasViewedAnnouncement(ctx context.Context, userID uuid.UUID, entityID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = $1 AND type = $2 AND entity_id = $3 AND is_viewed = true
		)
	`

	var viewed bool
	err := r.db.GetContext(ctx, &viewed, query, userID, model.NotificationTypeAnnouncement, entityID)
	r.observe("has_viewed_announcement", err)
	if err != nil {
		return false, fmt.Errorf("failed to check announcement view: %w", err)
	}
	return viewed, nil
}

func (r *notificationRepository) ListUnseen(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*model.NotificationEvent, error) {
	query := `
		SELECT id, user_id, type, entity_id, is_viewed, message, timestamp FROM notifications
		WHERE user_id = $1 AND is_viewed = false AND type <> $2 AND timestamp > $3
		ORDER BY timestamp DESC
		LIMIT $4
	`

	var events []*model.NotificationEvent
	err := r.db.SelectContext(ctx, &events, query, userID, model.NotificationTypeAnnouncement, since, limit)
	r.observe("list_unseen", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list unseen notifications: %w", err)
	}
	return events, nil
}

func (r *notificationRepository) CountUnseen(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND is_viewed = false AND type <> $2 AND timestamp > $3
	`

	var count int
	err := r.db.GetContext(ctx, &count, query, userID, model.NotificationTypeAnnouncement, since)
	r.observe("count_unseen", err)
	if err != nil {
		return 0, fmt.Errorf("failed to count unseen notifications: %w", err)
	}
	return count, nil
}
