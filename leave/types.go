/*
Package leave implements the lesson leave/absence workflow of the studio.

PURPOSE:
  A student asks to be excused from a scheduled lesson. The request is
  checked against the leave policy, recorded, the lesson is marked as
  excused, and two cached counters on the student row are adjusted. Sick
  leave waits for an admin decision; personal leave is approved on the spot.

KEY CONCEPTS IN THIS FILE (types.go):
  - LeaveType:    personal or sick
  - Status:       pending, approved, rejected (with allowed transitions)
  - LeaveRequest: one row per request, never deleted
  - Lesson:       the lesson row whose status carries the leave marker
  - Student:      the subset of the student row this package mutates

FLOW:
  Submit:  Policy.Validate -> insert request -> mark lesson -> counters
  Review:  pending -> approved | rejected -> counters (+ lesson restore)

SEE ALSO:
  - policy.go: notice window and monthly cap rules
  - service.go: transactional submit/review
  - store.go: persistence contract
*/
package leave

import (
	"fmt"
	"time"
)

// LeaveMarker is written to lessons.lesson_status while a leave is in effect.
const LeaveMarker = "請假"

// SystemReviewer is recorded as reviewer for auto-approved personal leave.
const SystemReviewer = "system"

// DefaultReviewer is used when an admin review does not name the reviewer.
const DefaultReviewer = "admin"

// =============================================================================
// LEAVE TYPE
// =============================================================================

type LeaveType string

const (
	LeavePersonal LeaveType = "personal"
	LeaveSick     LeaveType = "sick"
)

// ParseLeaveType accepts only the known leave types.
func ParseLeaveType(s string) (LeaveType, error) {
	switch LeaveType(s) {
	case LeavePersonal, LeaveSick:
		return LeaveType(s), nil
	case "":
		return "", &ParameterError{Field: "leaveType", Err: ErrMissingParameter}
	default:
		return "", &ParameterError{Field: "leaveType", Err: ErrInvalidLeaveType}
	}
}

// RequiresReview reports whether requests of this type start as pending.
func (t LeaveType) RequiresReview() bool { return t == LeaveSick }

// =============================================================================
// STATUS - pending -> approved | rejected, approved may also be initial
// =============================================================================

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseReviewStatus accepts the two decisions an admin can make.
func ParseReviewStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusApproved, StatusRejected:
		return Status(s), nil
	case "":
		return "", &ParameterError{Field: "status", Err: ErrMissingParameter}
	default:
		return "", &ParameterError{Field: "status", Err: ErrInvalidStatus}
	}
}

// CanTransition reports whether a request in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusRejected)
}

// IsTerminal is true for approved and rejected.
func (s Status) IsTerminal() bool { return s == StatusApproved || s == StatusRejected }

// Counted reports whether a request in this status uses up monthly quota.
func (s Status) Counted() bool { return s != StatusRejected }

// =============================================================================
// ENTITIES
// =============================================================================

// LeaveRequest is a single leave application for one lesson.
type LeaveRequest struct {
	ID              string
	StudentID       string
	OrgID           string
	LessonID        string
	LessonDate      time.Time
	LeaveType       LeaveType
	Status          Status
	ProofURL        string
	ReviewedAt      *time.Time
	ReviewedBy      string
	ReviewNotes     string
	RejectionReason string
	CreatedAt       time.Time
}

func (r LeaveRequest) String() string {
	return fmt.Sprintf("leave %s (%s, %s) for lesson %s on %s",
		r.ID, r.LeaveType, r.Status, r.LessonID, r.LessonDate.Format(time.RFC3339))
}

// Lesson is a scheduled lesson row.
type Lesson struct {
	ID           string
	StudentID    string
	OrgID        string
	LessonDate   time.Time
	LessonStatus *string
}

// OnLeave reports whether the lesson currently carries the leave marker.
func (l Lesson) OnLeave() bool {
	return l.LessonStatus != nil && *l.LessonStatus == LeaveMarker
}

// Student holds the student fields read or written by this package.
type Student struct {
	ID         string
	OrgID      string
	FullName   string
	NickName   string
	StudentOID string
	Email      string
	Counters   Counters
}

// StudentRef is the student projection joined onto pending requests.
type StudentRef struct {
	FullName   string
	NickName   string
	StudentOID string
}

// PendingRequest is a pending leave request with its student.
type PendingRequest struct {
	LeaveRequest
	Student StudentRef
}
