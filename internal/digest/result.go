package digest

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-digest/internal/model"
)

type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeDeferred Outcome = "deferred"
	OutcomeFailed   Outcome = "failed"
)

// UserResult is what happened to one pending user in one cycle.
type UserResult struct {
	UserID  uuid.UUID  `json:"user_id"`
	Tier    model.Tier `json:"tier"`
	Outcome Outcome    `json:"outcome"`
	Reason  string     `json:"reason"`
	Items   int        `json:"items,omitempty"`
	Err     error      `json:"-"`
	Error   string     `json:"error,omitempty"`
}

func failed(res UserResult, reason string, err error) UserResult {
	res.Outcome = OutcomeFailed
	res.Reason = reason
	res.Err = err
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// CycleReport aggregates one cycle. Interrupted is set when the context ended
// before every pending user was visited.
type CycleReport struct {
	ID            uuid.UUID          `json:"id"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
	Announcements int                `json:"announcements"`
	TierSizes     map[model.Tier]int `json:"tier_sizes"`
	Pending       int                `json:"pending"`
	Results       []UserResult       `json:"results"`
	Interrupted   bool               `json:"interrupted"`
}

func newCycleReport(now time.Time) *CycleReport {
	return &CycleReport{
		ID:        uuid.New(),
		StartedAt: now,
		TierSizes: make(map[model.Tier]int),
	}
}

func (r *CycleReport) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

func (r *CycleReport) Summary() map[Outcome]int {
	return map[Outcome]int{
		OutcomeSent:     r.Count(OutcomeSent),
		OutcomeSkipped:  r.Count(OutcomeSkipped),
		OutcomeDeferred: r.Count(OutcomeDeferred),
		OutcomeFailed:   r.Count(OutcomeFailed),
	}
}

// Result returns the entry for id, if the user was visited.
func (r *CycleReport) Result(id uuid.UUID) (UserResult, bool) {
	for _, res := range r.Results {
		if res.UserID == id {
			return res, true
		}
	}
	return UserResult{}, false
}
