package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/notify-digest/internal/model"
	apperrors "github.com/jwalitptl/notify-digest/pkg/errors"
	"github.com/jwalitptl/notify-digest/pkg/logger"
	"github.com/jwalitptl/notify-digest/pkg/metrics"
	"github.com/jwalitptl/notify-digest/pkg/timezone"
)

// ComposeRequest asks for the digest content of one user over [Since, Now].
type ComposeRequest struct {
	User          *model.User
	Tier          model.Tier
	Announcements []*model.Announcement
	Since         time.Time
	Now           time.Time
	MaxItems      int
}

type Composer interface {
	ComposeDigest(ctx context.Context, req ComposeRequest) (*model.Digest, error)
}

// Dispatcher puts a message on the wire. A nil error means delivery was
// confirmed. Ready reports whether the transport is configured at all.
type Dispatcher interface {
	Ready() error
	Dispatch(ctx context.Context, msg *model.Message) error
}

// Archiver keeps an audit copy of a sent digest. Failures never affect delivery.
type Archiver interface {
	ArchiveSentCopy(ctx context.Context, sent *model.SentCopy) error
}

type UserSource interface {
	UserCreationSource
	UserRecords(ctx context.Context, ids []uuid.UUID) ([]*model.User, error)
}

type NotificationSource interface {
	UnseenSource
	AnnouncementViewSource
}

type AnnouncementLister interface {
	ListPublishedSince(ctx context.Context, since time.Time) ([]*model.Announcement, error)
}

type Ledger interface {
	LastDelivery(ctx context.Context, userID uuid.UUID) (*model.DeliveryRecord, error)
	CommitDelivery(ctx context.Context, record *model.DeliveryRecord) error
}

// Dependencies wires the Orchestrator. Archiver, Logger, Metrics and Now are
// optional.
type Dependencies struct {
	Settings      TierSource
	Users         UserSource
	Notifications NotificationSource
	Announcements AnnouncementLister
	Ledger        Ledger
	Composer      Composer
	Dispatcher    Dispatcher
	Archiver      Archiver
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

// ErrDispatcherUnavailable aborts a cycle before any side effect.
var ErrDispatcherUnavailable = apperrors.NewUnavailable("dispatcher", nil)

type Orchestrator struct {
	cfg           Config
	tiers         *TierIndex
	fanout        *AnnouncementFanout
	aggregator    *PendingAggregator
	evaluator     *EligibilityEvaluator
	users         UserSource
	announcements AnnouncementLister
	ledger        Ledger
	composer      Composer
	dispatcher    Dispatcher
	archiver      Archiver
	logger        *logger.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewOrchestrator(deps Dependencies, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New("digest")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	zones := timezone.NewCache(cfg.DefaultTimezone, cfg.TimezoneCacheTTL)
	return &Orchestrator{
		cfg:           cfg,
		tiers:         NewTierIndex(deps.Settings),
		fanout:        NewAnnouncementFanout(deps.Users, deps.Notifications, deps.Logger),
		aggregator:    NewPendingAggregator(deps.Notifications),
		evaluator:     NewEligibilityEvaluator(zones, cfg.DeliveryWindow),
		users:         deps.Users,
		announcements: deps.Announcements,
		ledger:        deps.Ledger,
		composer:      deps.Composer,
		dispatcher:    deps.Dispatcher,
		archiver:      deps.Archiver,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		now:           deps.Now,
	}
}

// RunCycle runs one full digest cycle. It returns an error only when the cycle
// could not run at all; per-user faults are reported in the CycleReport.
// Once ctx is done no further users are started.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	if err := o.checkDispatcher(); err != nil {
		o.metrics.CyclesTotal.WithLabelValues("unavailable").Inc()
		o.logger.Error(err, "Dispatcher not configured, aborting digest cycle")
		return nil, err
	}

	timer := prometheus.NewTimer(o.metrics.CycleDuration)
	defer timer.ObserveDuration()

	now := o.now().UTC()
	report := newCycleReport(now)
	log := o.logger.WithFields(map[string]interface{}{"cycle_id": report.ID.String()})

	pending, tiers, live, err := o.collect(ctx, now, report)
	if err != nil {
		o.metrics.CyclesTotal.WithLabelValues("error").Inc()
		log.Error(err, "Failed to collect pending digest users")
		return nil, err
	}
	log.Info("Collected pending digest users",
		"announcements", len(live),
		"immediate", len(tiers.Immediate),
		"daily", len(tiers.Daily),
		"weekly", len(tiers.Weekly),
		"pending", pending.Len())

	ids := pending.IDs()
	records, err := o.users.UserRecords(ctx, ids)
	if err != nil {
		o.metrics.CyclesTotal.WithLabelValues("error").Inc()
		err = fmt.Errorf("failed to resolve pending users: %w", err)
		log.Error(err, "Failed to resolve pending users")
		return nil, err
	}
	byID := make(map[uuid.UUID]*model.User, len(records))
	for _, u := range records {
		byID[u.ID] = u
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			report.Interrupted = true
			log.Warn("Digest cycle interrupted", "remaining", pending.Len()-len(report.Results))
			break
		}

		var res UserResult
		if user, ok := byID[id]; ok {
			res = o.processUser(ctx, log, report.ID, user, tiers.TierOf(id), live)
		} else {
			res = UserResult{UserID: id, Tier: tiers.TierOf(id), Outcome: OutcomeSkipped, Reason: ReasonUnknownUser}
		}
		report.Results = append(report.Results, res)
		o.metrics.UserOutcomes.WithLabelValues(string(res.Tier), string(res.Outcome)).Inc()
	}

	report.FinishedAt = o.now().UTC()
	status := "completed"
	if report.Interrupted {
		status = "interrupted"
	}
	o.metrics.CyclesTotal.WithLabelValues(status).Inc()

	summary := report.Summary()
	log.Info("Digest cycle finished",
		"sent", summary[OutcomeSent],
		"skipped", summary[OutcomeSkipped],
		"deferred", summary[OutcomeDeferred],
		"failed", summary[OutcomeFailed],
		"interrupted", report.Interrupted)
	return report, nil
}

func (o *Orchestrator) checkDispatcher() error {
	if o.dispatcher == nil {
		return ErrDispatcherUnavailable
	}
	if err := o.dispatcher.Ready(); err != nil {
		return apperrors.NewUnavailable("dispatcher", err)
	}
	return nil
}

// collect builds the tiers, fans out announcements and aggregates the pending set.
func (o *Orchestrator) collect(ctx context.Context, now time.Time, report *CycleReport) (PendingSet, *Tiers, []*model.Announcement, error) {
	anns, err := o.announcements.ListPublishedSince(ctx, now.Add(-liveAnnouncementAge))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load announcements: %w", err)
	}
	live := LiveAnnouncements(anns, now)

	tiers, err := o.tiers.Classify(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	fanout, err := o.fanout.Run(ctx, live, now, tiers)
	if err != nil {
		return nil, nil, nil, err
	}

	pending, err := o.aggregator.Aggregate(ctx, now, tiers, fanout)
	if err != nil {
		return nil, nil, nil, err
	}

	report.Announcements = len(live)
	report.TierSizes = tiers.Sizes()
	report.Pending = pending.Len()
	o.metrics.PendingUsers.Set(float64(pending.Len()))
	return pending, tiers, live, nil
}

// processUser runs evaluate -> compose -> dispatch -> commit for one user, in
// that order. A user that has started runs to completion even if the cycle is
// cancelled; cancellation only stops the loop from picking up the next user.
func (o *Orchestrator) processUser(cycleCtx context.Context, log *logger.Logger, cycleID uuid.UUID, user *model.User, tier model.Tier, live []*model.Announcement) UserResult {
	ctx := context.WithoutCancel(cycleCtx)
	res := UserResult{UserID: user.ID, Tier: tier}
	if tier == model.TierDisabled {
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonTierDisabled
		log.Debug("Bypassing digest for disabled user", "user_id", user.ID.String())
		return res
	}

	now := o.now().UTC()
	watermark, err := o.ledger.LastDelivery(ctx, user.ID)
	if err != nil {
		log.Error(err, "Failed to read delivery watermark", "user_id", user.ID.String())
		return failed(res, ReasonLedgerReadFailed, err)
	}

	eval := o.evaluator.Evaluate(Subject{
		UserID:    user.ID,
		Tier:      tier,
		Timezone:  user.TimezoneName(),
		Watermark: watermark,
	}, now)
	res.Reason = eval.Reason

	switch eval.Decision {
	case DecisionSkip:
		res.Outcome = OutcomeSkipped
		return res
	case DecisionDefer:
		res.Outcome = OutcomeDeferred
		return res
	}

	digest, err := o.composer.ComposeDigest(ctx, ComposeRequest{
		User:          user,
		Tier:          tier,
		Announcements: live,
		Since:         eval.WindowStart,
		Now:           now,
		MaxItems:      o.cfg.MaxItems,
	})
	if err != nil {
		log.Error(err, "Failed to compose digest", "user_id", user.ID.String())
		return failed(res, ReasonComposeFailed, err)
	}
	if digest == nil || digest.ItemCount == 0 {
		log.Debug("No notifications in window, bypassing digest",
			"user_id", user.ID.String(), "since", eval.WindowStart)
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonNoContent
		return res
	}
	res.Items = digest.ItemCount

	msg := &model.Message{To: user.Email, Subject: digest.Subject, HTML: digest.HTML}
	started := time.Now()
	err = o.dispatcher.Dispatch(ctx, msg)
	o.metrics.DispatchLatency.Observe(time.Since(started).Seconds())
	if err != nil {
		log.Error(err, "Failed to dispatch digest", "user_id", user.ID.String(), "tier", string(tier))
		return failed(res, ReasonDispatchFailed, err)
	}

	record := &model.DeliveryRecord{UserID: user.ID, Tier: tier, Timestamp: now}
	if err := o.ledger.CommitDelivery(ctx, record); err != nil {
		log.Error(err, "Digest sent but watermark not committed", "user_id", user.ID.String())
		return failed(res, ReasonCommitFailed, err)
	}

	res.Outcome = OutcomeSent
	log.Info("Digest sent",
		"user_id", user.ID.String(),
		"tier", string(tier),
		"items", digest.ItemCount,
		"since", eval.WindowStart)

	o.archive(ctx, log, &model.SentCopy{
		ID:      uuid.New(),
		CycleID: cycleID,
		Digest:  digest,
		Message: msg,
		SentAt:  now,
	})
	return res
}

func (o *Orchestrator) archive(ctx context.Context, log *logger.Logger, sent *model.SentCopy) {
	if o.archiver == nil {
		return
	}
	if err := o.archiver.ArchiveSentCopy(ctx, sent); err != nil {
		log.Warn("Failed to archive sent digest", "copy_id", sent.ID.String(), "error", err.Error())
	}
}
