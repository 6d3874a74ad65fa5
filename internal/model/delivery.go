package model

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryRecord is a user's watermark: when their last digest went out and
// under which tier.
type DeliveryRecord struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Tier      Tier      `json:"tier" db:"email_frequency"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
