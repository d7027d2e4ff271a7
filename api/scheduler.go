/*
scheduler.go - Automated counter reconciliation scheduler

PURPOSE:
  Periodically recomputes the cached student counters from the leave
  request rows and repairs any drift.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Each pass is one leave.Reconciler run, recorded in reconciliation_runs

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReconciliationScheduler(reconciler, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerReconciliation endpoint (manual run)
  - leave/reconcile.go: Reconciler
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/studio/leave-engine/leave"
)

// ReconciliationScheduler runs counter reconciliation on a ticker.
type ReconciliationScheduler struct {
	Reconciler    *leave.Reconciler
	CheckInterval time.Duration
	Enabled       bool
	// RunTimeout bounds a single pass.
	RunTimeout time.Duration

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReconciliationScheduler creates a new scheduler.
func NewReconciliationScheduler(rec *leave.Reconciler, log zerolog.Logger) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		Reconciler:    rec,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		RunTimeout:    5 * time.Minute,
		log:           log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled || rs.CheckInterval <= 0 {
		rs.log.Info().Msg("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run()

	rs.log.Info().Dur("interval", rs.CheckInterval).Msg("started")
}

// Stop stops the scheduler and waits for a running pass to finish.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.log.Info().Msg("stopped")
	}
}

func (rs *ReconciliationScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndProcess()

	for {
		select {
		case <-rs.ticker.C:
			rs.checkAndProcess()
		case <-rs.stop:
			return
		}
	}
}

func (rs *ReconciliationScheduler) checkAndProcess() {
	ctx, cancel := context.WithTimeout(context.Background(), rs.RunTimeout)
	defer cancel()

	run, err := rs.Reconciler.Run(ctx, "")
	if err != nil {
		rs.log.Error().Err(err).Msg("reconciliation failed")
		return
	}
	if run.StudentsCorrected > 0 {
		rs.log.Info().
			Str("run_id", run.ID).
			Int("checked", run.StudentsChecked).
			Int("corrected", run.StudentsCorrected).
			Msg("reconciliation corrected counters")
	}
}

// RunNow triggers an immediate pass (for testing/admin).
func (rs *ReconciliationScheduler) RunNow() {
	rs.checkAndProcess()
}
