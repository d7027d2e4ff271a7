/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO:     response types returned to clients (snake_case, row shaped)
  - *Request: request body types from clients (camelCase, as sent by the
              student and admin apps)

ENVELOPE:
  Every response is {"success": bool, "data"?: ..., "error"?: "..."}.

VALIDATION:
  Required fields are declared with `validate` tags and checked by the
  handler before calling the service. Business rules live in package leave.
*/
package api

import (
	"time"

	"github.com/studio/leave-engine/leave"
)

// Envelope wraps every response body.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// =============================================================================
// REQUEST BODIES
// =============================================================================

// LeaveApplicationRequest is the body of POST /api/student/leave-application.
type LeaveApplicationRequest struct {
	StudentID  string `json:"studentId" validate:"required"`
	OrgID      string `json:"orgId"`
	LessonID   string `json:"lessonId" validate:"required"`
	LessonDate string `json:"lessonDate"`
	LeaveType  string `json:"leaveType" validate:"required"`
	ProofURL   string `json:"proofUrl"`
}

// ReviewLeaveRequest is the body of PUT /api/admin/leave-requests.
type ReviewLeaveRequest struct {
	RequestID       string `json:"requestId" validate:"required"`
	Status          string `json:"status" validate:"required,oneof=approved rejected"`
	ReviewNotes     string `json:"reviewNotes"`
	RejectionReason string `json:"rejectionReason"`
	ReviewedBy      string `json:"reviewedBy"`
}

// ReconcileRequest is the optional body of POST /api/admin/reconciliation.
type ReconcileRequest struct {
	OrgID string `json:"orgId"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// LeaveRequestDTO mirrors a leave_requests row.
type LeaveRequestDTO struct {
	ID              string  `json:"id"`
	StudentID       string  `json:"student_id"`
	OrgID           string  `json:"org_id"`
	LessonID        string  `json:"lesson_id"`
	LessonDate      string  `json:"lesson_date"`
	LeaveType       string  `json:"leave_type"`
	Status          string  `json:"status"`
	ProofURL        *string `json:"proof_url"`
	ReviewedAt      *string `json:"reviewed_at"`
	ReviewedBy      *string `json:"reviewed_by"`
	ReviewNotes     *string `json:"review_notes"`
	RejectionReason *string `json:"rejection_reason"`
	CreatedAt       string  `json:"created_at"`
}

// StudentRefDTO is the student subset joined onto pending requests.
type StudentRefDTO struct {
	FullName   string `json:"full_name"`
	NickName   string `json:"nick_name"`
	StudentOID string `json:"student_oid"`
}

// PendingLeaveRequestDTO is a pending request with its student.
type PendingLeaveRequestDTO struct {
	LeaveRequestDTO
	Student StudentRefDTO `json:"student"`
}

// CountersDTO holds both student counters.
type CountersDTO struct {
	PendingConfirmationCount   int `json:"pending_confirmation_count"`
	ApprovedLessonNonscheduled int `json:"approved_lesson_nonscheduled"`
}

// LeaveSummaryDTO is the dashboard summary of a student.
type LeaveSummaryDTO struct {
	StudentID              string      `json:"student_id"`
	Counters               CountersDTO `json:"counters"`
	Derived                CountersDTO `json:"derived"`
	Drift                  bool        `json:"drift"`
	Month                  string      `json:"month"`
	PersonalLeaveUsed      int         `json:"personal_leave_used"`
	PersonalLeaveRemaining int         `json:"personal_leave_remaining"`
	TotalLessons           int         `json:"total_lessons"`
	CountedLeave           int         `json:"counted_leave"`
	LeaveRate              string      `json:"leave_rate"`
}

// AuditEntryDTO is one audit log entry.
type AuditEntryDTO struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	StudentID string         `json:"student_id"`
	RequestID string         `json:"request_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ReconciliationRunDTO is one counter reconciliation pass.
type ReconciliationRunDTO struct {
	ID                string `json:"id"`
	OrgID             string `json:"org_id,omitempty"`
	Status            string `json:"status"`
	StudentsChecked   int    `json:"students_checked"`
	StudentsCorrected int    `json:"students_corrected"`
	Error             string `json:"error,omitempty"`
	StartedAt         string `json:"started_at"`
	CompletedAt       string `json:"completed_at,omitempty"`
}

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toLeaveRequestDTO(r leave.LeaveRequest) LeaveRequestDTO {
	dto := LeaveRequestDTO{
		ID:              r.ID,
		StudentID:       r.StudentID,
		OrgID:           r.OrgID,
		LessonID:        r.LessonID,
		LessonDate:      r.LessonDate.UTC().Format(time.RFC3339),
		LeaveType:       string(r.LeaveType),
		Status:          string(r.Status),
		ProofURL:        optional(r.ProofURL),
		ReviewedBy:      optional(r.ReviewedBy),
		ReviewNotes:     optional(r.ReviewNotes),
		RejectionReason: optional(r.RejectionReason),
		CreatedAt:       r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.ReviewedAt != nil {
		dto.ReviewedAt = optional(r.ReviewedAt.UTC().Format(time.RFC3339))
	}
	return dto
}

func toCountersDTO(c leave.Counters) CountersDTO {
	return CountersDTO{
		PendingConfirmationCount:   c.PendingConfirmation,
		ApprovedLessonNonscheduled: c.ApprovedNonscheduled,
	}
}

func toRunDTO(run leave.ReconciliationRun) ReconciliationRunDTO {
	dto := ReconciliationRunDTO{
		ID:                run.ID,
		OrgID:             run.OrgID,
		Status:            string(run.Status),
		StudentsChecked:   run.StudentsChecked,
		StudentsCorrected: run.StudentsCorrected,
		Error:             run.Error,
		StartedAt:         run.StartedAt.UTC().Format(time.RFC3339),
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = run.CompletedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
