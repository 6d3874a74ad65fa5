package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/notify-digest/pkg/logger"
)

type DeliveryPruner interface {
	// PruneDeliveries deletes ledger rows older than cutoff except each
	// user's newest one.
	PruneDeliveries(ctx context.Context, cutoff time.Time) (int64, error)
}

// LedgerCleanupWorker trims the delivery ledger. The newest record per user
// is the watermark and always survives.
type LedgerCleanupWorker struct {
	repo      DeliveryPruner
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

func NewLedgerCleanupWorker(repo DeliveryPruner, retention, interval time.Duration, log *logger.Logger) *LedgerCleanupWorker {
	if log == nil {
		log = logger.Nop()
	}
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &LedgerCleanupWorker{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    log,
		now:       time.Now,
	}
}

func (w *LedgerCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx); err != nil {
				w.logger.Error(err, "Failed to prune delivery ledger")
			}
		}
	}
}

func (w *LedgerCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := w.now().Add(-w.retention)

	rows, err := w.repo.PruneDeliveries(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune deliveries: %w", err)
	}

	w.logger.Info("Pruned delivery ledger", "rows", rows, "cutoff", cutoff)
	return rows, nil
}
