package model

import (
	"time"

	"github.com/google/uuid"
)

// Announcement is a broadcast published to every user. Immutable once published.
type Announcement struct {
	ID          uuid.UUID `json:"id" db:"id"`
	EntityID    int64     `json:"entity_id" db:"entity_id"`
	Title       string    `json:"title" db:"title"`
	Body        string    `json:"body" db:"body"`
	PublishedAt time.Time `json:"published_at" db:"published_at"`
}

// Age is how long ago the announcement was published, relative to now.
func (a *Announcement) Age(now time.Time) time.Duration {
	return now.Sub(a.PublishedAt)
}
