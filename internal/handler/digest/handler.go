package digest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/notify-digest/internal/digest"
	"github.com/jwalitptl/notify-digest/pkg/httputil"
)

// CycleTrigger runs one cycle under the same lock the worker uses.
type CycleTrigger interface {
	RunOnce(ctx context.Context) (*digest.CycleReport, error)
}

type CycleResponse struct {
	ID            uuid.UUID              `json:"id"`
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    time.Time              `json:"finished_at"`
	Announcements int                    `json:"announcements"`
	Pending       int                    `json:"pending"`
	Outcomes      map[digest.Outcome]int `json:"outcomes"`
	Interrupted   bool                   `json:"interrupted"`
	Results       []digest.UserResult    `json:"results,omitempty"`
}

type Handler struct {
	trigger CycleTrigger
}

func NewHandler(trigger CycleTrigger) *Handler {
	return &Handler{trigger: trigger}
}

// RegisterRoutes expects a group restricted to admins.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/digest/cycles", h.RunCycle)
}

// RunCycle runs a cycle synchronously. Pass ?verbose=true for per-user results.
// A client disconnect does not cut the cycle short; it is bounded by the
// worker's cycle timeout.
func (h *Handler) RunCycle(c *gin.Context) {
	report, err := h.trigger.RunOnce(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		_ = c.Error(err)
		httputil.RespondWithError(c, err)
		return
	}

	resp := CycleResponse{
		ID:            report.ID,
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
		Announcements: report.Announcements,
		Pending:       report.Pending,
		Outcomes:      report.Summary(),
		Interrupted:   report.Interrupted,
	}
	if c.Query("verbose") == "true" {
		resp.Results = report.Results
	}

	c.JSON(http.StatusOK, httputil.Response{Success: true, Data: resp})
}
