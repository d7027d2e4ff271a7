package sqlstore

import "strings"

// schema is valid for both SQLite and PostgreSQL once {{serial}} is
// replaced with the driver's auto-increment key (see schemaFor).
// Timestamps are RFC3339 UTC text with second precision so that range
// filters compare as strings.
const schema = `
	-- Students (only the columns the leave workflow reads or writes)
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL DEFAULT '',
		full_name TEXT NOT NULL DEFAULT '',
		nick_name TEXT NOT NULL DEFAULT '',
		student_oid TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		pending_confirmation_count INTEGER NOT NULL DEFAULT 0,
		approved_lesson_nonscheduled INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_students_org
		ON students(org_id);

	-- Lessons; lesson_status carries the leave marker
	CREATE TABLE IF NOT EXISTS lessons (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		org_id TEXT NOT NULL DEFAULT '',
		lesson_date TEXT NOT NULL,
		lesson_status TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lessons_student_date
		ON lessons(student_id, lesson_date);

	-- Leave requests (never deleted)
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		org_id TEXT NOT NULL DEFAULT '',
		lesson_id TEXT NOT NULL REFERENCES lessons(id),
		lesson_date TEXT NOT NULL,
		leave_type TEXT NOT NULL CHECK (leave_type IN ('personal', 'sick')),
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		proof_url TEXT,
		reviewed_at TEXT,
		reviewed_by TEXT,
		review_notes TEXT,
		rejection_reason TEXT,
		created_at TEXT NOT NULL
	);

	-- Monthly quota lookups (hot path on submit)
	CREATE INDEX IF NOT EXISTS idx_leave_requests_student_type_date
		ON leave_requests(student_id, leave_type, lesson_date);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status, created_at);

	-- A lesson has at most one pending or approved leave request
	CREATE UNIQUE INDEX IF NOT EXISTS idx_leave_requests_active_lesson
		ON leave_requests(lesson_id) WHERE status <> 'rejected';

	-- Audit log (append-only); seq orders entries within one second
	CREATE TABLE IF NOT EXISTS leave_audit (
		seq {{serial}},
		id TEXT NOT NULL UNIQUE,
		occurred_at TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		student_id TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		payload_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_leave_audit_student
		ON leave_audit(student_id, occurred_at);

	-- Counter reconciliation runs
	CREATE TABLE IF NOT EXISTS reconciliation_runs (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		students_checked INTEGER NOT NULL DEFAULT 0,
		students_corrected INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reconciliation_runs_started
		ON reconciliation_runs(started_at);
`

func schemaFor(driver string) string {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == DriverPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}
	return strings.ReplaceAll(schema, "{{serial}}", serial)
}
