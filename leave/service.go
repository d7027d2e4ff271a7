package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// NOTIFIER - told about changes after they are committed
// =============================================================================

// NoticeEvent names what happened to a leave request.
type NoticeEvent string

const (
	NoticeSubmitted NoticeEvent = "submitted"
	NoticeReviewed  NoticeEvent = "reviewed"
)

// Notice describes a committed leave change.
type Notice struct {
	Event   NoticeEvent
	Request LeaveRequest
	Student Student
}

// Notifier delivers notices (email, log, ...). Errors are logged by the
// caller and never undo the committed change.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// =============================================================================
// SERVICE - submission and admin review with transactional guarantees
// =============================================================================

type Service struct {
	Store    Store
	Policy   Policy
	Notifier Notifier         // optional
	Now      func() time.Time // defaults to time.Now
	Log      zerolog.Logger
}

// NewService creates a service with the wall clock.
func NewService(store Store, policy Policy, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		Store:    store,
		Policy:   policy,
		Notifier: notifier,
		Now:      time.Now,
		Log:      log.With().Str("component", "leave_service").Logger(),
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// SubmitInput is a student's leave application.
type SubmitInput struct {
	StudentID string
	OrgID     string
	LessonID  string
	// LessonDate is the date the client believes the lesson is on. The
	// lesson row is authoritative; this value is only compared for logging.
	LessonDate *time.Time
	LeaveType  string
	ProofURL   string
}

// Submit validates and records a leave application.
//
// Everything happens in one transaction:
//  1. lock the student row
//  2. load the lesson, which must belong to the student
//  3. reject a second active request for the same lesson
//  4. count this month's personal leave and run the policy
//  5. insert the request (personal: approved by system, sick: pending)
//  6. mark the lesson with LeaveMarker
//  7. adjust the student counters and write the audit entry
//
// If ANY step fails, ALL changes are rolled back.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*LeaveRequest, error) {
	if strings.TrimSpace(in.StudentID) == "" {
		return nil, &ParameterError{Field: "studentId", Err: ErrMissingParameter}
	}
	if strings.TrimSpace(in.LessonID) == "" {
		return nil, &ParameterError{Field: "lessonId", Err: ErrMissingParameter}
	}
	leaveType, err := ParseLeaveType(in.LeaveType)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var (
		created LeaveRequest
		student Student
	)

	err = s.Store.WithTx(ctx, func(q Queries) error {
		if err := q.TouchStudent(ctx, in.StudentID, now); err != nil {
			return err
		}
		st, err := q.GetStudent(ctx, in.StudentID)
		if err != nil {
			return fmt.Errorf("load student: %w", err)
		}
		if st == nil {
			return ErrStudentNotFound
		}
		student = *st

		lesson, err := q.GetLesson(ctx, in.LessonID)
		if err != nil {
			return fmt.Errorf("load lesson: %w", err)
		}
		if lesson == nil || lesson.StudentID != in.StudentID {
			return ErrLessonNotFound
		}
		if in.LessonDate != nil && !in.LessonDate.Equal(lesson.LessonDate) {
			s.Log.Debug().
				Str("lesson_id", lesson.ID).
				Time("client_date", *in.LessonDate).
				Time("lesson_date", lesson.LessonDate).
				Msg("client lesson date differs from lesson row, using lesson row")
		}

		existing, err := q.ActiveRequestForLesson(ctx, lesson.ID)
		if err != nil {
			return fmt.Errorf("check existing leave: %w", err)
		}
		if existing != nil {
			return ErrLeaveAlreadyExists
		}

		monthCount := 0
		if leaveType == LeavePersonal {
			monthCount, err = q.CountCountedLeave(ctx, in.StudentID, LeavePersonal, s.Policy.MonthFor(lesson.LessonDate))
			if err != nil {
				return fmt.Errorf("count monthly leave: %w", err)
			}
		}

		vin := ValidationInput{LeaveType: leaveType, LessonDate: lesson.LessonDate, ProofURL: in.ProofURL}
		if err := s.Policy.Validate(vin, now, monthCount); err != nil {
			return err
		}

		created = newRequest(in, student, *lesson, leaveType, now)
		if err := q.InsertRequest(ctx, created); err != nil {
			return fmt.Errorf("insert leave request: %w", err)
		}

		marker := LeaveMarker
		if err := q.SetLessonStatus(ctx, lesson.ID, &marker); err != nil {
			return fmt.Errorf("mark lesson: %w", err)
		}

		if err := q.AdjustCounters(ctx, in.StudentID, DeltaFor(SubmitEvent(leaveType))); err != nil {
			return fmt.Errorf("adjust counters: %w", err)
		}

		return q.AppendAudit(ctx, AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: now,
			ActorID:   in.StudentID,
			Action:    AuditRequestCreated,
			StudentID: in.StudentID,
			RequestID: created.ID,
			Payload: map[string]any{
				"leave_type":  string(leaveType),
				"status":      string(created.Status),
				"lesson_id":   lesson.ID,
				"lesson_date": lesson.LessonDate.Format(time.RFC3339),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info().
		Str("request_id", created.ID).
		Str("student_id", created.StudentID).
		Str("leave_type", string(created.LeaveType)).
		Str("status", string(created.Status)).
		Msg("leave request recorded")

	s.notify(ctx, Notice{Event: NoticeSubmitted, Request: created, Student: student})
	return &created, nil
}

func newRequest(in SubmitInput, st Student, lesson Lesson, t LeaveType, now time.Time) LeaveRequest {
	orgID := in.OrgID
	if orgID == "" {
		orgID = st.OrgID
	}
	r := LeaveRequest{
		ID:         uuid.NewString(),
		StudentID:  in.StudentID,
		OrgID:      orgID,
		LessonID:   lesson.ID,
		LessonDate: lesson.LessonDate,
		LeaveType:  t,
		ProofURL:   strings.TrimSpace(in.ProofURL),
		CreatedAt:  now,
	}
	if t.RequiresReview() {
		r.Status = StatusPending
		return r
	}
	reviewedAt := now
	r.Status = StatusApproved
	r.ReviewedAt = &reviewedAt
	r.ReviewedBy = SystemReviewer
	return r
}

// ReviewInput is an admin decision on a pending request.
type ReviewInput struct {
	RequestID       string
	Status          string
	ReviewedBy      string
	ReviewNotes     string
	RejectionReason string
}

// Review approves or rejects a pending request.
//
//	approve: status approved, pending -1, approved +1, lesson keeps marker
//	reject:  status rejected, pending -1, lesson status cleared
//
// All writes share one transaction.
func (s *Service) Review(ctx context.Context, in ReviewInput) (*LeaveRequest, error) {
	if strings.TrimSpace(in.RequestID) == "" {
		return nil, &ParameterError{Field: "requestId", Err: ErrMissingParameter}
	}
	decision, err := ParseReviewStatus(in.Status)
	if err != nil {
		return nil, err
	}
	reviewer := in.ReviewedBy
	if reviewer == "" {
		reviewer = DefaultReviewer
	}

	now := s.now()
	var (
		reviewed LeaveRequest
		student  Student
	)

	err = s.Store.WithTx(ctx, func(q Queries) error {
		req, err := q.GetRequest(ctx, in.RequestID)
		if err != nil {
			return fmt.Errorf("load leave request: %w", err)
		}
		if req == nil {
			return ErrRequestNotFound
		}
		if !req.Status.CanTransition(decision) {
			return ErrNotPending
		}

		req.Status = decision
		req.ReviewedAt = &now
		req.ReviewedBy = reviewer
		req.ReviewNotes = in.ReviewNotes
		if decision == StatusRejected {
			req.RejectionReason = in.RejectionReason
		}
		if err := q.UpdateReview(ctx, *req); err != nil {
			return fmt.Errorf("update leave request: %w", err)
		}

		if decision == StatusRejected {
			if err := q.SetLessonStatus(ctx, req.LessonID, nil); err != nil && !errors.Is(err, ErrLessonNotFound) {
				return fmt.Errorf("restore lesson: %w", err)
			}
		}

		if err := q.AdjustCounters(ctx, req.StudentID, DeltaFor(ReviewEvent(decision))); err != nil {
			return fmt.Errorf("adjust counters: %w", err)
		}

		action := AuditRequestApproved
		if decision == StatusRejected {
			action = AuditRequestRejected
		}
		if err := q.AppendAudit(ctx, AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: now,
			ActorID:   reviewer,
			Action:    action,
			StudentID: req.StudentID,
			RequestID: req.ID,
			Payload: map[string]any{
				"review_notes":     in.ReviewNotes,
				"rejection_reason": req.RejectionReason,
			},
		}); err != nil {
			return err
		}

		st, err := q.GetStudent(ctx, req.StudentID)
		if err != nil {
			return fmt.Errorf("load student: %w", err)
		}
		if st != nil {
			student = *st
		}
		reviewed = *req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info().
		Str("request_id", reviewed.ID).
		Str("status", string(reviewed.Status)).
		Str("reviewed_by", reviewer).
		Msg("leave request reviewed")

	s.notify(ctx, Notice{Event: NoticeReviewed, Request: reviewed, Student: student})
	return &reviewed, nil
}

// ListPending returns pending requests with their students, oldest first.
func (s *Service) ListPending(ctx context.Context, orgID string) ([]PendingRequest, error) {
	return s.Store.ListPending(ctx, orgID)
}

// History returns a student's leave requests, newest first.
func (s *Service) History(ctx context.Context, studentID string) ([]LeaveRequest, error) {
	if studentID == "" {
		return nil, &ParameterError{Field: "studentId", Err: ErrMissingParameter}
	}
	return s.Store.ListRequestsByStudent(ctx, studentID)
}

// Audit returns the audit trail of a student, oldest first.
func (s *Service) Audit(ctx context.Context, studentID string) ([]AuditEntry, error) {
	if studentID == "" {
		return nil, &ParameterError{Field: "studentId", Err: ErrMissingParameter}
	}
	return s.Store.ListAudit(ctx, studentID)
}

func (s *Service) notify(ctx context.Context, n Notice) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.Log.Warn().Err(err).
			Str("request_id", n.Request.ID).
			Str("event", string(n.Event)).
			Msg("leave notification failed")
	}
}
