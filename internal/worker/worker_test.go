package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-digest/internal/digest"
	apperrors "github.com/jwalitptl/notify-digest/pkg/errors"
	"github.com/jwalitptl/notify-digest/pkg/lock"
)

type stubRunner struct {
	mu       sync.Mutex
	calls    int
	deadline bool
	err      error
	block    chan struct{}
	started  chan struct{}
}

func (r *stubRunner) RunCycle(ctx context.Context) (*digest.CycleReport, error) {
	r.mu.Lock()
	r.calls++
	_, r.deadline = ctx.Deadline()
	r.mu.Unlock()
	if r.started != nil {
		close(r.started)
	}
	if r.block != nil {
		<-r.block
	}
	if r.err != nil {
		return nil, r.err
	}
	return &digest.CycleReport{}, nil
}

func TestRunOnceUsesTimeout(t *testing.T) {
	runner := &stubRunner{}
	w := NewDigestWorker(runner, lock.NewLocal(), DigestWorkerConfig{CycleTimeout: time.Minute}, nil)

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, report)
	assert.Equal(t, 1, runner.calls)
	assert.True(t, runner.deadline)
}

func TestRunOnceSingleFlight(t *testing.T) {
	runner := &stubRunner{block: make(chan struct{}), started: make(chan struct{})}
	locker := lock.NewLocal()
	w := NewDigestWorker(runner, locker, DigestWorkerConfig{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := w.RunOnce(context.Background())
		done <- err
	}()
	<-runner.started

	_, err := w.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)
	assert.ErrorIs(t, err, lock.ErrHeld)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))

	close(runner.block)
	require.NoError(t, <-done)

	// lock released after the first cycle
	runner.block = nil
	runner.started = nil
	_, err = w.RunOnce(context.Background())
	assert.NoError(t, err)
}

func TestRunOnceReleasesLockOnError(t *testing.T) {
	boom := errors.New("tiers unavailable")
	runner := &stubRunner{err: boom}
	w := NewDigestWorker(runner, lock.NewLocal(), DigestWorkerConfig{}, nil)

	_, err := w.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = w.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, runner.calls)
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	runner := &stubRunner{}
	w := NewDigestWorker(runner, lock.NewLocal(), DigestWorkerConfig{Interval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.calls == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := DigestWorkerConfig{CycleTimeout: 10 * time.Minute, LockTTL: time.Minute}.withDefaults()

	assert.Equal(t, 5*time.Minute, cfg.Interval)
	assert.Equal(t, 20*time.Minute, cfg.LockTTL)

	cfg = DigestWorkerConfig{CycleTimeout: 3 * time.Minute, LockTTL: 3 * time.Minute}.withDefaults()
	assert.Equal(t, 6*time.Minute, cfg.LockTTL)

	cfg = DigestWorkerConfig{CycleTimeout: 3 * time.Minute, LockTTL: 4 * time.Minute}.withDefaults()
	assert.Equal(t, 4*time.Minute, cfg.LockTTL)
}

type fakePruner struct {
	cutoff time.Time
	rows   int64
	err    error
}

func (p *fakePruner) PruneDeliveries(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return p.rows, p.err
}

func TestLedgerCleanup(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	p := &fakePruner{rows: 12}
	w := NewLedgerCleanupWorker(p, 90*24*time.Hour, time.Hour, nil)
	w.now = func() time.Time { return now }

	rows, err := w.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), rows)
	assert.Equal(t, now.Add(-90*24*time.Hour), p.cutoff)

	p.err = errors.New("db down")
	_, err = w.Cleanup(context.Background())
	assert.ErrorIs(t, err, p.err)
}
