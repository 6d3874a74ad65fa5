package digest

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-digest/internal/model"
	"github.com/jwalitptl/notify-digest/pkg/timezone"
)

type Decision int

const (
	DecisionSkip Decision = iota
	DecisionSend
	DecisionDefer
)

func (d Decision) String() string {
	switch d {
	case DecisionSend:
		return "send"
	case DecisionDefer:
		return "defer"
	}
	return "skip"
}

// Reasons attached to evaluations and per-user results.
const (
	ReasonTierDisabled      = "tier_disabled"
	ReasonImmediate         = "immediate"
	ReasonFirstDelivery     = "first_delivery"
	ReasonPeriodElapsed     = "period_elapsed"
	ReasonRecentlyDelivered = "recently_delivered"
	ReasonOutsideWindow     = "outside_delivery_window"
	ReasonNoContent         = "no_content"
	ReasonUnknownUser       = "unknown_user"
	ReasonLedgerReadFailed  = "ledger_read_failed"
	ReasonComposeFailed     = "compose_failed"
	ReasonDispatchFailed    = "dispatch_failed"
	ReasonCommitFailed      = "commit_failed"
)

// Subject is everything the evaluator needs to know about one user.
type Subject struct {
	UserID    uuid.UUID
	Tier      model.Tier
	Timezone  string
	Watermark *model.DeliveryRecord
}

// Evaluation is the verdict for one user at one instant. WindowStart is the
// lower bound of the content window when Decision is DecisionSend.
type Evaluation struct {
	Decision    Decision
	Reason      string
	WindowStart time.Time
	LocalOffset time.Duration
}

type EligibilityEvaluator struct {
	zones          *timezone.Cache
	deliveryWindow time.Duration
}

func NewEligibilityEvaluator(zones *timezone.Cache, deliveryWindow time.Duration) *EligibilityEvaluator {
	if deliveryWindow <= 0 {
		deliveryWindow = DefaultDeliveryWindow
	}
	return &EligibilityEvaluator{zones: zones, deliveryWindow: deliveryWindow}
}

// Evaluate has no side effects; the same subject and instant always produce
// the same evaluation.
func (e *EligibilityEvaluator) Evaluate(s Subject, now time.Time) Evaluation {
	now = now.UTC()

	switch s.Tier {
	case model.TierImmediate:
		start := time.Unix(0, 0).UTC()
		if s.Watermark != nil {
			start = s.Watermark.Timestamp
		}
		return Evaluation{Decision: DecisionSend, Reason: ReasonImmediate, WindowStart: start}
	case model.TierDaily, model.TierWeekly:
	default:
		return Evaluation{Decision: DecisionSkip, Reason: ReasonTierDisabled}
	}

	offset := e.LocalOffset(s.Timezone, now)
	if offset >= e.deliveryWindow {
		return Evaluation{Decision: DecisionDefer, Reason: ReasonOutsideWindow, LocalOffset: offset}
	}

	period := s.Tier.Period()
	if s.Watermark == nil {
		// first digest looks back one period instead of the whole history
		return Evaluation{
			Decision:    DecisionSend,
			Reason:      ReasonFirstDelivery,
			WindowStart: now.Add(-period),
			LocalOffset: offset,
		}
	}

	if now.Sub(s.Watermark.Timestamp) >= period-periodTolerance {
		return Evaluation{
			Decision:    DecisionSend,
			Reason:      ReasonPeriodElapsed,
			WindowStart: s.Watermark.Timestamp,
			LocalOffset: offset,
		}
	}
	return Evaluation{Decision: DecisionSkip, Reason: ReasonRecentlyDelivered, LocalOffset: offset}
}

// LocalOffset is the time elapsed since midnight in the named zone.
func (e *EligibilityEvaluator) LocalOffset(zone string, now time.Time) time.Duration {
	loc, _ := e.zones.Resolve(zone)
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return local.Sub(midnight)
}
