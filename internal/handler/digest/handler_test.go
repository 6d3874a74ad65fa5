package digest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-digest/internal/digest"
	"github.com/jwalitptl/notify-digest/internal/model"
	"github.com/jwalitptl/notify-digest/internal/worker"
)

type stubTrigger struct {
	report *digest.CycleReport
	err    error
}

func (s stubTrigger) RunOnce(context.Context) (*digest.CycleReport, error) {
	return s.report, s.err
}

func post(trigger CycleTrigger, query string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(trigger).RegisterRoutes(r.Group("/api/v1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/digest/cycles"+query, nil))
	return w
}

func TestRunCycle(t *testing.T) {
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	report := &digest.CycleReport{
		ID:         uuid.New(),
		StartedAt:  now,
		FinishedAt: now.Add(time.Second),
		Pending:    2,
		Results: []digest.UserResult{
			{UserID: uuid.New(), Tier: model.TierImmediate, Outcome: digest.OutcomeSent, Items: 3},
			{UserID: uuid.New(), Tier: model.TierDaily, Outcome: digest.OutcomeDeferred, Reason: "outside_window"},
		},
	}

	w := post(stubTrigger{report: report}, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data CycleResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, report.ID, body.Data.ID)
	assert.Equal(t, 1, body.Data.Outcomes[digest.OutcomeSent])
	assert.Equal(t, 1, body.Data.Outcomes[digest.OutcomeDeferred])
	assert.Empty(t, body.Data.Results)

	w = post(stubTrigger{report: report}, "?verbose=true")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data.Results, 2)
}

func TestRunCycleErrors(t *testing.T) {
	assert.Equal(t, http.StatusConflict, post(stubTrigger{err: worker.ErrCycleInProgress}, "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, post(stubTrigger{err: digest.ErrDispatcherUnavailable}, "").Code)
	assert.Equal(t, http.StatusInternalServerError, post(stubTrigger{err: context.DeadlineExceeded}, "").Code)
}

type ctxTrigger struct {
	ctxErr error
}

func (t *ctxTrigger) RunOnce(ctx context.Context) (*digest.CycleReport, error) {
	t.ctxErr = ctx.Err()
	return &digest.CycleReport{ID: uuid.New()}, nil
}

func TestRunCycleIgnoresClientDisconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	trigger := &ctxTrigger{}
	r := gin.New()
	NewHandler(trigger).RegisterRoutes(r.Group("/api/v1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/digest/cycles", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, trigger.ctxErr)
}
