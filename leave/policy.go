package leave

import (
	"strings"
	"time"
)

// =============================================================================
// POLICY - Notice window, sick-leave window and monthly cap
// =============================================================================

// Policy holds the leave rules of a studio.
//
// Personal leave must be requested PersonalNotice ahead of the lesson and is
// limited to MonthlyPersonalLimit counted requests per calendar month (month
// of the lesson, in Location). Sick leave must be requested within
// SickWindow before or after the lesson and needs a proof document.
type Policy struct {
	PersonalNotice       time.Duration
	SickWindow           time.Duration
	MonthlyPersonalLimit int
	Location             *time.Location
}

// DefaultPolicy returns the studio defaults: 72h notice, ±24h sick window,
// one personal leave per month.
func DefaultPolicy(loc *time.Location) Policy {
	if loc == nil {
		loc = time.UTC
	}
	return Policy{
		PersonalNotice:       72 * time.Hour,
		SickWindow:           24 * time.Hour,
		MonthlyPersonalLimit: 1,
		Location:             loc,
	}
}

// ValidationInput is what the validator needs to know about a request.
type ValidationInput struct {
	LeaveType  LeaveType
	LessonDate time.Time
	ProofURL   string
}

// MonthFor returns the quota month of a lesson date.
func (p Policy) MonthFor(lessonDate time.Time) Period {
	return MonthOf(lessonDate, p.Location)
}

// Validate decides whether a leave request may be created at now.
// monthCount is the number of counted personal requests the student already
// has in the lesson's month; it is ignored for sick leave.
//
// Boundaries are inclusive: a personal request exactly PersonalNotice ahead
// is accepted, and a sick request exactly SickWindow away is accepted.
func (p Policy) Validate(in ValidationInput, now time.Time, monthCount int) error {
	switch in.LeaveType {
	case LeavePersonal:
		if in.LessonDate.Before(now.Add(p.PersonalNotice)) {
			return violation(ViolationPersonalNotice, MsgPersonalNotice)
		}
		if monthCount >= p.MonthlyPersonalLimit {
			return violation(ViolationMonthlyLimit, MsgMonthlyLimit)
		}
		return nil

	case LeaveSick:
		if in.LessonDate.Before(now.Add(-p.SickWindow)) || in.LessonDate.After(now.Add(p.SickWindow)) {
			return violation(ViolationSickWindow, MsgSickWindow)
		}
		if strings.TrimSpace(in.ProofURL) == "" {
			return violation(ViolationProofRequired, MsgProofRequired)
		}
		return nil

	default:
		return &ParameterError{Field: "leaveType", Err: ErrInvalidLeaveType}
	}
}
