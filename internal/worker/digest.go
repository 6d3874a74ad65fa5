package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/notify-digest/internal/digest"
	apperrors "github.com/jwalitptl/notify-digest/pkg/errors"
	"github.com/jwalitptl/notify-digest/pkg/lock"
	"github.com/jwalitptl/notify-digest/pkg/logger"
)

const cycleLockKey = "digest:cycle"

// ErrCycleInProgress means another process holds the cycle lock.
var ErrCycleInProgress = apperrors.NewConflict("digest cycle already running", lock.ErrHeld)

type CycleRunner interface {
	RunCycle(ctx context.Context) (*digest.CycleReport, error)
}

type DigestWorkerConfig struct {
	Interval     time.Duration
	CycleTimeout time.Duration
	// LockTTL must strictly outlive CycleTimeout: the last user still commits
	// after the deadline.
	LockTTL time.Duration
}

func (c DigestWorkerConfig) withDefaults() DigestWorkerConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 4 * time.Minute
	}
	if c.LockTTL <= c.CycleTimeout {
		c.LockTTL = 2 * c.CycleTimeout
	}
	return c
}

// DigestWorker runs digest cycles on a fixed interval. At most one cycle runs
// at a time across every process sharing the locker.
type DigestWorker struct {
	runner CycleRunner
	locker lock.Locker
	config DigestWorkerConfig
	logger *logger.Logger
}

func NewDigestWorker(runner CycleRunner, locker lock.Locker, config DigestWorkerConfig, log *logger.Logger) *DigestWorker {
	if log == nil {
		log = logger.Nop()
	}
	return &DigestWorker{
		runner: runner,
		locker: locker,
		config: config.withDefaults(),
		logger: log,
	}
}

// Start runs a cycle right away and then on every tick until ctx is done.
func (w *DigestWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("Starting digest worker", "interval", w.config.Interval.String())
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down digest worker")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *DigestWorker) tick(ctx context.Context) {
	_, err := w.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, lock.ErrHeld):
		w.logger.Info("Digest cycle already running elsewhere, skipping tick")
	default:
		w.logger.Error(err, "Digest cycle failed")
	}
}

// RunOnce runs a single cycle under the lock and the cycle timeout.
func (w *DigestWorker) RunOnce(ctx context.Context) (*digest.CycleReport, error) {
	release, err := w.locker.TryLock(ctx, cycleLockKey, w.config.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, ErrCycleInProgress
		}
		return nil, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			w.logger.Warn("Failed to release cycle lock", "error", err.Error())
		}
	}()

	cycleCtx, cancel := context.WithTimeout(ctx, w.config.CycleTimeout)
	defer cancel()

	return w.runner.RunCycle(cycleCtx)
}
