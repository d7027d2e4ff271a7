/*
Package sqlstore provides the relational implementation of leave.Store.

PURPOSE:
  One implementation for both SQLite (development, tests) and PostgreSQL
  (production). Queries are written with '?' placeholders and rebound by
  sqlx for the active driver.

DRIVERS:
  sqlite3: github.com/mattn/go-sqlite3, limited to one open connection
           (single writer; also keeps ":memory:" databases on one handle)
  pgx:     github.com/jackc/pgx/v5/stdlib

KEY TABLES:
  students:            cached leave counters per student
  lessons:             lesson_status carries the leave marker
  leave_requests:      one row per request, never deleted
  leave_audit:         append-only audit entries
  reconciliation_runs: counter reconciliation history

ATOMIC COUNTERS:
  AdjustCounters issues a single UPDATE with the floor at zero computed
  in SQL, so concurrent adjustments cannot lose updates.

USAGE:
  store, err := sqlstore.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := leave.NewService(store, leave.DefaultPolicy(loc), notifier, logger)

MIGRATION:
  Schema is auto-migrated on Open().
*/
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/studio/leave-engine/leave"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Compile-time check that Store implements leave.Store.
var _ leave.Store = (*Store)(nil)

// Store implements leave.Store over database/sql.
type Store struct {
	queries
	db *sqlx.DB
}

// New opens a SQLite store at dbPath. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(DriverSQLite, dbPath)
}

// Open connects with the named driver, checks the connection and migrates.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{queries: queries{ext: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func sqliteDSN(path string) string {
	opts := "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	if strings.Contains(path, "?") {
		return path + "&" + opts
	}
	return path + "?" + opts
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string {
	return s.db.DriverName()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schemaFor(s.db.DriverName()))
	return err
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(q leave.Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{ext: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// Reset deletes all rows. Development and scenarios only.
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range []string{"leave_audit", "leave_requests", "lessons", "students", "reconciliation_runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// ROW-LEVEL QUERIES (leave.Queries) - shared by Store and transactions
// =============================================================================

type queries struct {
	ext sqlx.ExtContext
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.ext.ExecContext(ctx, q.ext.Rebind(query), args...)
}

func (q *queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

func (q *queries) selectRows(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

// --- students ---

type studentRow struct {
	ID         string `db:"id"`
	OrgID      string `db:"org_id"`
	FullName   string `db:"full_name"`
	NickName   string `db:"nick_name"`
	StudentOID string `db:"student_oid"`
	Email      string `db:"email"`
	Pending    int    `db:"pending_confirmation_count"`
	Approved   int    `db:"approved_lesson_nonscheduled"`
}

func (r studentRow) toStudent() leave.Student {
	return leave.Student{
		ID:         r.ID,
		OrgID:      r.OrgID,
		FullName:   r.FullName,
		NickName:   r.NickName,
		StudentOID: r.StudentOID,
		Email:      r.Email,
		Counters: leave.Counters{
			PendingConfirmation:  r.Pending,
			ApprovedNonscheduled: r.Approved,
		},
	}
}

const studentColumns = `id, org_id, full_name, nick_name, student_oid, email,
	pending_confirmation_count, approved_lesson_nonscheduled`

func (q *queries) TouchStudent(ctx context.Context, studentID string, at time.Time) error {
	res, err := q.exec(ctx, `UPDATE students SET updated_at = ? WHERE id = ?`, formatTime(at), studentID)
	if err != nil {
		return fmt.Errorf("failed to lock student: %w", err)
	}
	return requireRow(res, leave.ErrStudentNotFound)
}

func (q *queries) GetStudent(ctx context.Context, id string) (*leave.Student, error) {
	var row studentRow
	err := q.get(ctx, &row, `SELECT `+studentColumns+` FROM students WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st := row.toStudent()
	return &st, nil
}

func (q *queries) ListStudents(ctx context.Context, orgID string) ([]leave.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students`
	var args []any
	if orgID != "" {
		query += ` WHERE org_id = ?`
		args = append(args, orgID)
	}
	query += ` ORDER BY id ASC`

	var rows []studentRow
	if err := q.selectRows(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	students := make([]leave.Student, len(rows))
	for i, r := range rows {
		students[i] = r.toStudent()
	}
	return students, nil
}

func (q *queries) AdjustCounters(ctx context.Context, studentID string, d leave.CounterDelta) error {
	if d.IsZero() {
		return nil
	}
	res, err := q.exec(ctx, `
		UPDATE students SET
			pending_confirmation_count = CASE
				WHEN pending_confirmation_count + ? < 0 THEN 0
				ELSE pending_confirmation_count + ? END,
			approved_lesson_nonscheduled = CASE
				WHEN approved_lesson_nonscheduled + ? < 0 THEN 0
				ELSE approved_lesson_nonscheduled + ? END
		WHERE id = ?
	`, d.Pending, d.Pending, d.Approved, d.Approved, studentID)
	if err != nil {
		return fmt.Errorf("failed to adjust counters: %w", err)
	}
	return requireRow(res, leave.ErrStudentNotFound)
}

func (q *queries) SetCounters(ctx context.Context, studentID string, c leave.Counters) error {
	res, err := q.exec(ctx, `
		UPDATE students
		SET pending_confirmation_count = ?, approved_lesson_nonscheduled = ?
		WHERE id = ?
	`, c.PendingConfirmation, c.ApprovedNonscheduled, studentID)
	if err != nil {
		return fmt.Errorf("failed to set counters: %w", err)
	}
	return requireRow(res, leave.ErrStudentNotFound)
}

func (q *queries) DeriveCounters(ctx context.Context, studentID string) (leave.Counters, error) {
	var row struct {
		Pending  int `db:"pending"`
		Approved int `db:"approved"`
	}
	err := q.get(ctx, &row, `
		SELECT
			(SELECT COUNT(*) FROM leave_requests
			 WHERE student_id = ? AND leave_type = 'sick' AND status = 'pending') AS pending,
			(SELECT COUNT(*) FROM leave_requests r
			 JOIN lessons l ON l.id = r.lesson_id
			 WHERE r.student_id = ? AND r.status = 'approved' AND l.lesson_status = ?) AS approved
	`, studentID, studentID, leave.LeaveMarker)
	if err != nil {
		return leave.Counters{}, err
	}
	return leave.Counters{PendingConfirmation: row.Pending, ApprovedNonscheduled: row.Approved}, nil
}

// --- lessons ---

type lessonRow struct {
	ID           string         `db:"id"`
	StudentID    string         `db:"student_id"`
	OrgID        string         `db:"org_id"`
	LessonDate   string         `db:"lesson_date"`
	LessonStatus sql.NullString `db:"lesson_status"`
}

func (q *queries) GetLesson(ctx context.Context, id string) (*leave.Lesson, error) {
	var row lessonRow
	err := q.get(ctx, &row, `
		SELECT id, student_id, org_id, lesson_date, lesson_status
		FROM lessons WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var tp timeParser
	lesson := leave.Lesson{
		ID:         row.ID,
		StudentID:  row.StudentID,
		OrgID:      row.OrgID,
		LessonDate: tp.parse("lesson_date", row.LessonDate),
	}
	if tp.err != nil {
		return nil, fmt.Errorf("lesson %s: %w", row.ID, tp.err)
	}
	if row.LessonStatus.Valid {
		status := row.LessonStatus.String
		lesson.LessonStatus = &status
	}
	return &lesson, nil
}

func (q *queries) SetLessonStatus(ctx context.Context, lessonID string, status *string) error {
	var value sql.NullString
	if status != nil {
		value = sql.NullString{String: *status, Valid: true}
	}
	res, err := q.exec(ctx, `UPDATE lessons SET lesson_status = ? WHERE id = ?`, value, lessonID)
	if err != nil {
		return fmt.Errorf("failed to update lesson status: %w", err)
	}
	return requireRow(res, leave.ErrLessonNotFound)
}

// --- leave requests ---

type requestRow struct {
	ID              string         `db:"id"`
	StudentID       string         `db:"student_id"`
	OrgID           string         `db:"org_id"`
	LessonID        string         `db:"lesson_id"`
	LessonDate      string         `db:"lesson_date"`
	LeaveType       string         `db:"leave_type"`
	Status          string         `db:"status"`
	ProofURL        sql.NullString `db:"proof_url"`
	ReviewedAt      sql.NullString `db:"reviewed_at"`
	ReviewedBy      sql.NullString `db:"reviewed_by"`
	ReviewNotes     sql.NullString `db:"review_notes"`
	RejectionReason sql.NullString `db:"rejection_reason"`
	CreatedAt       string         `db:"created_at"`
}

func (r requestRow) toRequest() (leave.LeaveRequest, error) {
	var tp timeParser
	req := leave.LeaveRequest{
		ID:              r.ID,
		StudentID:       r.StudentID,
		OrgID:           r.OrgID,
		LessonID:        r.LessonID,
		LessonDate:      tp.parse("lesson_date", r.LessonDate),
		LeaveType:       leave.LeaveType(r.LeaveType),
		Status:          leave.Status(r.Status),
		ProofURL:        r.ProofURL.String,
		ReviewedBy:      r.ReviewedBy.String,
		ReviewNotes:     r.ReviewNotes.String,
		RejectionReason: r.RejectionReason.String,
		CreatedAt:       tp.parse("created_at", r.CreatedAt),
	}
	if r.ReviewedAt.Valid {
		t := tp.parse("reviewed_at", r.ReviewedAt.String)
		req.ReviewedAt = &t
	}
	if tp.err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("leave request %s: %w", r.ID, tp.err)
	}
	return req, nil
}

const requestColumns = `id, student_id, org_id, lesson_id, lesson_date, leave_type, status,
	proof_url, reviewed_at, reviewed_by, review_notes, rejection_reason, created_at`

func (q *queries) GetRequest(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	var row requestRow
	err := q.get(ctx, &row, `SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	req, err := row.toRequest()
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (q *queries) ActiveRequestForLesson(ctx context.Context, lessonID string) (*leave.LeaveRequest, error) {
	var row requestRow
	err := q.get(ctx, &row, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE lesson_id = ? AND status <> 'rejected'
	`, lessonID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	req, err := row.toRequest()
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (q *queries) CountCountedLeave(ctx context.Context, studentID string, t leave.LeaveType, p leave.Period) (int, error) {
	var count int
	err := q.get(ctx, &count, `
		SELECT COUNT(*) FROM leave_requests
		WHERE student_id = ? AND leave_type = ? AND status <> 'rejected'
		  AND lesson_date >= ? AND lesson_date <= ?
	`, studentID, string(t), formatTime(p.Start), formatTime(p.End))
	return count, err
}

func (q *queries) InsertRequest(ctx context.Context, r leave.LeaveRequest) error {
	_, err := q.exec(ctx, `
		INSERT INTO leave_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.StudentID, r.OrgID, r.LessonID, formatTime(r.LessonDate),
		string(r.LeaveType), string(r.Status),
		nullString(r.ProofURL), nullTime(r.ReviewedAt), nullString(r.ReviewedBy),
		nullString(r.ReviewNotes), nullString(r.RejectionReason),
		formatTime(r.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return leave.ErrLeaveAlreadyExists
		}
		return fmt.Errorf("failed to insert leave request: %w", err)
	}
	return nil
}

func (q *queries) UpdateReview(ctx context.Context, r leave.LeaveRequest) error {
	res, err := q.exec(ctx, `
		UPDATE leave_requests
		SET status = ?, reviewed_at = ?, reviewed_by = ?, review_notes = ?, rejection_reason = ?
		WHERE id = ? AND status = 'pending'
	`,
		string(r.Status), nullTime(r.ReviewedAt), nullString(r.ReviewedBy),
		nullString(r.ReviewNotes), nullString(r.RejectionReason), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update leave request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// Nothing matched: either the request is gone or a concurrent review
	// decided it first.
	var exists int
	err = q.get(ctx, &exists, `SELECT COUNT(*) FROM leave_requests WHERE id = ?`, r.ID)
	if err != nil {
		return err
	}
	if exists == 0 {
		return leave.ErrRequestNotFound
	}
	return leave.ErrNotPending
}

// --- audit ---

func (q *queries) AppendAudit(ctx context.Context, e leave.AuditEntry) error {
	payload := []byte("{}")
	if len(e.Payload) > 0 {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode audit payload: %w", err)
		}
		payload = b
	}
	_, err := q.exec(ctx, `
		INSERT INTO leave_audit (id, occurred_at, actor_id, action, student_id, request_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, formatTime(e.Timestamp), e.ActorID, string(e.Action), e.StudentID, e.RequestID, string(payload))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// =============================================================================
// REPORTING READS (Store only)
// =============================================================================

type pendingRow struct {
	requestRow
	StudentFullName   string `db:"student_full_name"`
	StudentNickName   string `db:"student_nick_name"`
	StudentStudentOID string `db:"student_student_oid"`
}

// ListPending returns pending requests joined with student names.
func (s *Store) ListPending(ctx context.Context, orgID string) ([]leave.PendingRequest, error) {
	query := `
		SELECT r.id, r.student_id, r.org_id, r.lesson_id, r.lesson_date, r.leave_type, r.status,
			r.proof_url, r.reviewed_at, r.reviewed_by, r.review_notes, r.rejection_reason, r.created_at,
			s.full_name AS student_full_name,
			s.nick_name AS student_nick_name,
			s.student_oid AS student_student_oid
		FROM leave_requests r
		JOIN students s ON s.id = r.student_id
		WHERE r.status = 'pending'`
	var args []any
	if orgID != "" {
		query += ` AND r.org_id = ?`
		args = append(args, orgID)
	}
	query += ` ORDER BY r.created_at ASC, r.id ASC`

	var rows []pendingRow
	if err := s.selectRows(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	pending := make([]leave.PendingRequest, len(rows))
	for i, r := range rows {
		req, err := r.toRequest()
		if err != nil {
			return nil, err
		}
		pending[i] = leave.PendingRequest{
			LeaveRequest: req,
			Student: leave.StudentRef{
				FullName:   r.StudentFullName,
				NickName:   r.StudentNickName,
				StudentOID: r.StudentStudentOID,
			},
		}
	}
	return pending, nil
}

// ListRequestsByStudent returns a student's requests, newest first.
func (s *Store) ListRequestsByStudent(ctx context.Context, studentID string) ([]leave.LeaveRequest, error) {
	var rows []requestRow
	err := s.selectRows(ctx, &rows, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE student_id = ?
		ORDER BY created_at DESC, id DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	requests := make([]leave.LeaveRequest, len(rows))
	for i, r := range rows {
		req, err := r.toRequest()
		if err != nil {
			return nil, err
		}
		requests[i] = req
	}
	return requests, nil
}

// CountLessons counts all lessons of a student.
func (s *Store) CountLessons(ctx context.Context, studentID string) (int, error) {
	var count int
	err := s.get(ctx, &count, `SELECT COUNT(*) FROM lessons WHERE student_id = ?`, studentID)
	return count, err
}

type auditRow struct {
	ID          string `db:"id"`
	OccurredAt  string `db:"occurred_at"`
	ActorID     string `db:"actor_id"`
	Action      string `db:"action"`
	StudentID   string `db:"student_id"`
	RequestID   string `db:"request_id"`
	PayloadJSON string `db:"payload_json"`
}

// ListAudit returns a student's audit entries, oldest first. Entries with
// the same timestamp come back in insertion order.
func (s *Store) ListAudit(ctx context.Context, studentID string) ([]leave.AuditEntry, error) {
	var rows []auditRow
	err := s.selectRows(ctx, &rows, `
		SELECT id, occurred_at, actor_id, action, student_id, request_id, payload_json
		FROM leave_audit
		WHERE student_id = ?
		ORDER BY occurred_at ASC, seq ASC
	`, studentID)
	if err != nil {
		return nil, err
	}

	entries := make([]leave.AuditEntry, 0, len(rows))
	for _, r := range rows {
		var tp timeParser
		e := leave.AuditEntry{
			ID:        r.ID,
			Timestamp: tp.parse("occurred_at", r.OccurredAt),
			ActorID:   r.ActorID,
			Action:    leave.AuditAction(r.Action),
			StudentID: r.StudentID,
			RequestID: r.RequestID,
		}
		if tp.err != nil {
			return nil, fmt.Errorf("audit entry %s: %w", r.ID, tp.err)
		}
		if r.PayloadJSON != "" {
			if err := json.Unmarshal([]byte(r.PayloadJSON), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode audit payload %s: %w", r.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

type runRow struct {
	ID                string         `db:"id"`
	OrgID             string         `db:"org_id"`
	Status            string         `db:"status"`
	StudentsChecked   int            `db:"students_checked"`
	StudentsCorrected int            `db:"students_corrected"`
	Error             string         `db:"error"`
	StartedAt         string         `db:"started_at"`
	CompletedAt       sql.NullString `db:"completed_at"`
}

// SaveReconciliationRun inserts or updates a run.
func (s *Store) SaveReconciliationRun(ctx context.Context, r leave.ReconciliationRun) error {
	_, err := s.exec(ctx, `
		INSERT INTO reconciliation_runs (id, org_id, status, students_checked, students_corrected,
			error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			students_checked = excluded.students_checked,
			students_corrected = excluded.students_corrected,
			error = excluded.error,
			completed_at = excluded.completed_at
	`,
		r.ID, r.OrgID, string(r.Status), r.StudentsChecked, r.StudentsCorrected,
		r.Error, formatTime(r.StartedAt), nullTime(r.CompletedAt),
	)
	return err
}

// ListReconciliationRuns returns the most recent runs first.
func (s *Store) ListReconciliationRuns(ctx context.Context, limit int) ([]leave.ReconciliationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	err := s.selectRows(ctx, &rows, `
		SELECT id, org_id, status, students_checked, students_corrected, error, started_at, completed_at
		FROM reconciliation_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}

	runs := make([]leave.ReconciliationRun, len(rows))
	for i, r := range rows {
		var tp timeParser
		runs[i] = leave.ReconciliationRun{
			ID:                r.ID,
			OrgID:             r.OrgID,
			Status:            leave.RunStatus(r.Status),
			StudentsChecked:   r.StudentsChecked,
			StudentsCorrected: r.StudentsCorrected,
			Error:             r.Error,
			StartedAt:         tp.parse("started_at", r.StartedAt),
		}
		if r.CompletedAt.Valid {
			t := tp.parse("completed_at", r.CompletedAt.String)
			runs[i].CompletedAt = &t
		}
		if tp.err != nil {
			return nil, fmt.Errorf("reconciliation run %s: %w", r.ID, tp.err)
		}
	}
	return runs, nil
}

// =============================================================================
// SEEDING - students and lessons are owned by other parts of the studio app
// =============================================================================

// SaveStudent inserts or replaces a student row, counters included.
func (s *Store) SaveStudent(ctx context.Context, st leave.Student) error {
	now := formatTime(time.Now())
	_, err := s.exec(ctx, `
		INSERT INTO students (`+studentColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			org_id = excluded.org_id,
			full_name = excluded.full_name,
			nick_name = excluded.nick_name,
			student_oid = excluded.student_oid,
			email = excluded.email,
			pending_confirmation_count = excluded.pending_confirmation_count,
			approved_lesson_nonscheduled = excluded.approved_lesson_nonscheduled,
			updated_at = excluded.updated_at
	`,
		st.ID, st.OrgID, st.FullName, st.NickName, st.StudentOID, st.Email,
		st.Counters.PendingConfirmation, st.Counters.ApprovedNonscheduled, now, now,
	)
	return err
}

// SaveLesson inserts or replaces a lesson row.
func (s *Store) SaveLesson(ctx context.Context, l leave.Lesson) error {
	var status sql.NullString
	if l.LessonStatus != nil {
		status = sql.NullString{String: *l.LessonStatus, Valid: true}
	}
	_, err := s.exec(ctx, `
		INSERT INTO lessons (id, student_id, org_id, lesson_date, lesson_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			student_id = excluded.student_id,
			org_id = excluded.org_id,
			lesson_date = excluded.lesson_date,
			lesson_status = excluded.lesson_status
	`, l.ID, l.StudentID, l.OrgID, formatTime(l.LessonDate), status, formatTime(time.Now()))
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// timeParser parses stored timestamps and keeps the first failure, so a
// row converter can read every column and report once.
type timeParser struct {
	err error
}

func (p *timeParser) parse(column, s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", column, s, err)
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
