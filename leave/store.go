/*
store.go - Persistence contract for the leave workflow

PURPOSE:
  Defines what the service needs from the relational store. Row-level
  operations live in Queries so they can run either directly or inside a
  transaction (WithTx). Reporting reads live on Store only.

ATOMICITY:
  Submit and Review run every step inside one WithTx call: request row,
  lesson marker, student counters and audit entry commit together or not
  at all. Counters are changed with a single UPDATE per call, never read
  and written back.

NOT-FOUND CONVENTION:
  Get* methods return (nil, nil) when the row does not exist. Mutations
  on a missing row return the matching Err*NotFound sentinel.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite and PostgreSQL via sqlx
*/
package leave

import (
	"context"
	"time"
)

// Queries are the row-level operations used inside a transaction.
type Queries interface {
	// TouchStudent updates the student's updated_at. Inside a transaction it
	// takes the row lock that serializes submissions for one student.
	TouchStudent(ctx context.Context, studentID string, at time.Time) error
	GetStudent(ctx context.Context, id string) (*Student, error)
	ListStudents(ctx context.Context, orgID string) ([]Student, error)

	GetLesson(ctx context.Context, id string) (*Lesson, error)
	// SetLessonStatus writes lesson_status; nil clears it.
	SetLessonStatus(ctx context.Context, lessonID string, status *string) error

	GetRequest(ctx context.Context, id string) (*LeaveRequest, error)
	// ActiveRequestForLesson returns the lesson's non-rejected request, if any.
	ActiveRequestForLesson(ctx context.Context, lessonID string) (*LeaveRequest, error)
	// CountCountedLeave counts non-rejected requests of type t whose
	// lesson_date falls within p.
	CountCountedLeave(ctx context.Context, studentID string, t LeaveType, p Period) (int, error)
	InsertRequest(ctx context.Context, r LeaveRequest) error
	// UpdateReview persists status and review fields of r. Only a pending
	// row is updated; a row decided by a concurrent review yields
	// ErrNotPending.
	UpdateReview(ctx context.Context, r LeaveRequest) error

	// AdjustCounters applies d atomically, flooring each counter at zero.
	AdjustCounters(ctx context.Context, studentID string, d CounterDelta) error
	// SetCounters overwrites both counters (reconciliation only).
	SetCounters(ctx context.Context, studentID string, c Counters) error
	// DeriveCounters computes the counters from leave request rows.
	DeriveCounters(ctx context.Context, studentID string) (Counters, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
}

// Store is the full persistence interface.
type Store interface {
	Queries

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(q Queries) error) error

	// ListPending returns pending requests, oldest first. orgID "" means all.
	ListPending(ctx context.Context, orgID string) ([]PendingRequest, error)
	// ListRequestsByStudent returns a student's requests, newest first.
	ListRequestsByStudent(ctx context.Context, studentID string) ([]LeaveRequest, error)
	CountLessons(ctx context.Context, studentID string) (int, error)
	ListAudit(ctx context.Context, studentID string) ([]AuditEntry, error)

	SaveReconciliationRun(ctx context.Context, run ReconciliationRun) error
	ListReconciliationRuns(ctx context.Context, limit int) ([]ReconciliationRun, error)
}

// =============================================================================
// AUDIT LOG - who did what when; append-only
// =============================================================================

type AuditAction string

const (
	AuditRequestCreated     AuditAction = "request_created"
	AuditRequestApproved    AuditAction = "request_approved"
	AuditRequestRejected    AuditAction = "request_rejected"
	AuditCountersReconciled AuditAction = "counters_reconciled"
)

// AuditEntry records one change made by this package.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	ActorID   string
	Action    AuditAction
	StudentID string
	RequestID string
	Payload   map[string]any
}
