package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeAnnouncement NotificationType = "announcement"
	NotificationTypeFollow       NotificationType = "follow"
	NotificationTypeRepost       NotificationType = "repost"
	NotificationTypeFavorite     NotificationType = "favorite"
	NotificationTypeMilestone    NotificationType = "milestone"
)

// NotificationEvent is one direct notification owned by a user.
type NotificationEvent struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	UserID    uuid.UUID        `json:"user_id" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	EntityID  int64            `json:"entity_id" db:"entity_id"`
	Viewed    bool             `json:"viewed" db:"is_viewed"`
	Message   string           `json:"message" db:"message"`
	Timestamp time.Time        `json:"timestamp" db:"timestamp"`
}
