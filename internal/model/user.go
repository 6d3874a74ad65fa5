package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tier is the digest frequency a user has chosen.
type Tier string

const (
	TierImmediate Tier = "immediate"
	TierDaily     Tier = "daily"
	TierWeekly    Tier = "weekly"
	TierDisabled  Tier = "disabled"
)

// DeliveryTiers are the tiers that receive digests, in classification order.
var DeliveryTiers = []Tier{TierImmediate, TierDaily, TierWeekly}

func (t Tier) Valid() bool {
	switch t {
	case TierImmediate, TierDaily, TierWeekly, TierDisabled:
		return true
	}
	return false
}

// Period is the minimum spacing between two digests of the tier. Immediate
// and disabled tiers have none.
func (t Tier) Period() time.Duration {
	switch t {
	case TierDaily:
		return 24 * time.Hour
	case TierWeekly:
		return 7 * 24 * time.Hour
	}
	return 0
}

// ParseTier accepts the stored names plus the legacy "live" and "off" aliases.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "live":
		return TierImmediate, nil
	case "off":
		return TierDisabled, nil
	}
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// User is the recipient record a digest is addressed to.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Timezone  *string   `json:"timezone,omitempty" db:"timezone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TimezoneName returns the stored zone or "" when unset.
func (u *User) TimezoneName() string {
	if u.Timezone == nil {
		return ""
	}
	return *u.Timezone
}

type UserSettings struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Tier      Tier      `json:"tier" db:"email_frequency"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
