package digest

import "time"

const (
	DayWindow  = 24 * time.Hour
	WeekWindow = 7 * DayWindow

	// Announcements older than this are not fanned out at all.
	liveAnnouncementAge = WeekWindow * 3 / 2

	immediateAnnouncementAge = time.Hour
	dailyAnnouncementAge     = DayWindow * 3 / 2
	weeklyAnnouncementAge    = WeekWindow * 3 / 2

	// Daily and weekly digests may go out this early relative to a full period.
	periodTolerance = time.Hour

	DefaultTimezone       = "America/Los_Angeles"
	DefaultDeliveryWindow = 2 * time.Hour
	DefaultMaxItems       = 5
	defaultZoneCacheTTL   = time.Hour
)

// Config tunes the engine. Zero values take the defaults above.
type Config struct {
	DefaultTimezone  string
	DeliveryWindow   time.Duration
	MaxItems         int
	TimezoneCacheTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = DefaultTimezone
	}
	if c.DeliveryWindow <= 0 {
		c.DeliveryWindow = DefaultDeliveryWindow
	}
	if c.MaxItems <= 0 {
		c.MaxItems = DefaultMaxItems
	}
	if c.TimezoneCacheTTL <= 0 {
		c.TimezoneCacheTTL = defaultZoneCacheTTL
	}
	return c
}
