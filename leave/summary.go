package leave

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Summary is the dashboard view of a student's leave.
//
// Cached are the counters stored on the student row; Derived are the same
// counts computed from the leave request rows. Drift is true when they
// disagree, which Reconciler.Run repairs.
type Summary struct {
	StudentID string
	Cached    Counters
	Derived   Counters
	Drift     bool

	Month             Period
	PersonalUsed      int
	PersonalRemaining int

	TotalLessons int
	CountedLeave int
	// LeaveRate is CountedLeave / TotalLessons rounded to 2 places.
	LeaveRate decimal.Decimal
}

// Summary builds the leave summary of a student as of now.
func (s *Service) Summary(ctx context.Context, studentID string) (*Summary, error) {
	if studentID == "" {
		return nil, &ParameterError{Field: "studentId", Err: ErrMissingParameter}
	}

	st, err := s.Store.GetStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}
	if st == nil {
		return nil, ErrStudentNotFound
	}

	derived, err := s.Store.DeriveCounters(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("derive counters: %w", err)
	}

	month := s.Policy.MonthFor(s.now())
	used, err := s.Store.CountCountedLeave(ctx, studentID, LeavePersonal, month)
	if err != nil {
		return nil, fmt.Errorf("count monthly leave: %w", err)
	}

	lessons, err := s.Store.CountLessons(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("count lessons: %w", err)
	}

	requests, err := s.Store.ListRequestsByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list leave requests: %w", err)
	}
	counted := 0
	for _, r := range requests {
		if r.Status.Counted() {
			counted++
		}
	}

	remaining := s.Policy.MonthlyPersonalLimit - used
	if remaining < 0 {
		remaining = 0
	}

	return &Summary{
		StudentID:         studentID,
		Cached:            st.Counters,
		Derived:           derived,
		Drift:             st.Counters != derived,
		Month:             month,
		PersonalUsed:      used,
		PersonalRemaining: remaining,
		TotalLessons:      lessons,
		CountedLeave:      counted,
		LeaveRate:         leaveRate(counted, lessons),
	}, nil
}

func leaveRate(leaves, lessons int) decimal.Decimal {
	if lessons <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(leaves)).
		DivRound(decimal.NewFromInt(int64(lessons)), 2)
}

