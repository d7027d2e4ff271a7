package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// COUNTER RECONCILIATION - repair drift between counters and rows
// =============================================================================

// Recomputed values:
//
//	pending_confirmation_count   = sick requests with status pending
//	approved_lesson_nonscheduled = approved requests whose lesson still
//	                               carries LeaveMarker
//
// A lesson that has been rescheduled loses its marker outside this package,
// so it stops counting as non-scheduled.

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ReconciliationRun records one reconciliation pass.
type ReconciliationRun struct {
	ID                string
	OrgID             string // "" means all organisations
	Status            RunStatus
	StudentsChecked   int
	StudentsCorrected int
	Error             string
	StartedAt         time.Time
	CompletedAt       *time.Time
}

// Reconciler recomputes student counters from leave request rows.
type Reconciler struct {
	Store Store
	Now   func() time.Time
	Log   zerolog.Logger
}

func NewReconciler(store Store, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		Store: store,
		Now:   time.Now,
		Log:   log.With().Str("component", "reconciler").Logger(),
	}
}

func (rc *Reconciler) now() time.Time {
	if rc.Now == nil {
		return time.Now().UTC()
	}
	return rc.Now().UTC()
}

// Run reconciles every student of orgID ("" for all) in one transaction and
// records the run. The returned run is also returned on failure.
func (rc *Reconciler) Run(ctx context.Context, orgID string) (*ReconciliationRun, error) {
	run := ReconciliationRun{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Status:    RunRunning,
		StartedAt: rc.now(),
	}

	checked, corrected := 0, 0
	err := rc.Store.WithTx(ctx, func(q Queries) error {
		checked, corrected = 0, 0
		students, err := q.ListStudents(ctx, orgID)
		if err != nil {
			return fmt.Errorf("list students: %w", err)
		}
		for _, listed := range students {
			checked++
			// Lock the row first so a concurrent Submit or Review either
			// commits before the counters are derived or waits for this
			// transaction.
			if err := q.TouchStudent(ctx, listed.ID, run.StartedAt); err != nil {
				return fmt.Errorf("lock student %s: %w", listed.ID, err)
			}
			st, err := q.GetStudent(ctx, listed.ID)
			if err != nil {
				return fmt.Errorf("reload student %s: %w", listed.ID, err)
			}
			if st == nil {
				return fmt.Errorf("reload student %s: %w", listed.ID, ErrStudentNotFound)
			}
			derived, err := q.DeriveCounters(ctx, st.ID)
			if err != nil {
				return fmt.Errorf("derive counters for %s: %w", st.ID, err)
			}
			if derived == st.Counters {
				continue
			}
			if err := q.SetCounters(ctx, st.ID, derived); err != nil {
				return fmt.Errorf("set counters for %s: %w", st.ID, err)
			}
			if err := q.AppendAudit(ctx, AuditEntry{
				ID:        uuid.NewString(),
				Timestamp: run.StartedAt,
				ActorID:   SystemReviewer,
				Action:    AuditCountersReconciled,
				StudentID: st.ID,
				Payload: map[string]any{
					"run_id":          run.ID,
					"pending_before":  st.Counters.PendingConfirmation,
					"pending_after":   derived.PendingConfirmation,
					"approved_before": st.Counters.ApprovedNonscheduled,
					"approved_after":  derived.ApprovedNonscheduled,
				},
			}); err != nil {
				return err
			}
			corrected++
			rc.Log.Info().
				Str("student_id", st.ID).
				Interface("before", st.Counters).
				Interface("after", derived).
				Msg("counter drift corrected")
		}
		return nil
	})

	completed := rc.now()
	run.CompletedAt = &completed
	run.StudentsChecked = checked
	run.StudentsCorrected = corrected
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		run.StudentsCorrected = 0
	} else {
		run.Status = RunCompleted
	}

	if saveErr := rc.Store.SaveReconciliationRun(ctx, run); saveErr != nil {
		rc.Log.Error().Err(saveErr).Str("run_id", run.ID).Msg("failed to record reconciliation run")
		if err == nil {
			err = fmt.Errorf("record reconciliation run: %w", saveErr)
		}
	}
	return &run, err
}
