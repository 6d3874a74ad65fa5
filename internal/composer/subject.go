package composer

import (
	"fmt"
	"time"

	"github.com/jwalitptl/notify-digest/internal/model"
)

func unread(count int) string {
	if count > 1 {
		return fmt.Sprintf("%d unread notifications", count)
	}
	return fmt.Sprintf("%d unread notification", count)
}

// MailSubject is the subject line of the email itself.
func MailSubject(count int, brand string) string {
	return fmt.Sprintf("%s on %s", unread(count), brand)
}

// Heading is the headline inside the body. Daily digests name the previous
// day, weekly ones the seven days before it.
func Heading(tier model.Tier, count int, now time.Time) string {
	dayAgo := now.AddDate(0, 0, -1)
	switch tier {
	case model.TierDaily:
		return fmt.Sprintf("%s from %s", unread(count), longDate(dayAgo))
	case model.TierWeekly:
		weekAgo := now.AddDate(0, 0, -7)
		return fmt.Sprintf("%s from %s - %s", unread(count), shortDate(weekAgo), longDate(dayAgo))
	}
	return unread(count)
}

func Title(tier model.Tier, email string) string {
	switch tier {
	case model.TierDaily:
		return "Daily Email - " + email
	case model.TierWeekly:
		return "Weekly Email - " + email
	}
	return "Email - " + email
}

// shortDate renders "January 2nd".
func shortDate(t time.Time) string {
	return fmt.Sprintf("%s %s", t.Month(), ordinal(t.Day()))
}

// longDate renders "January 2nd 2006".
func longDate(t time.Time) string {
	return fmt.Sprintf("%s %d", shortDate(t), t.Year())
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
