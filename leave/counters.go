package leave

// =============================================================================
// STUDENT COUNTERS - cached aggregates of leave request rows
// =============================================================================

// Counters are the two cached counts kept on the student row.
//
//	PendingConfirmation:  sick requests awaiting an admin decision
//	ApprovedNonscheduled: approved leave lessons not yet rescheduled
type Counters struct {
	PendingConfirmation  int
	ApprovedNonscheduled int
}

// CounterDelta is a change to apply to Counters.
type CounterDelta struct {
	Pending  int
	Approved int
}

// IsZero reports whether the delta changes nothing.
func (d CounterDelta) IsZero() bool { return d.Pending == 0 && d.Approved == 0 }

// CounterEvent is a leave lifecycle event that moves the counters.
type CounterEvent string

const (
	EventSickSubmitted     CounterEvent = "sick_submitted"
	EventPersonalSubmitted CounterEvent = "personal_submitted"
	EventApproved          CounterEvent = "approved"
	EventRejected          CounterEvent = "rejected"
)

// DeltaFor returns the counter change of an event.
//
//	| Event              | pending | approved |
//	| sick submitted     |   +1    |    .     |
//	| personal submitted |    .    |   +1     |
//	| approved           |   -1    |   +1     |
//	| rejected           |   -1    |    .     |
func DeltaFor(e CounterEvent) CounterDelta {
	switch e {
	case EventSickSubmitted:
		return CounterDelta{Pending: 1}
	case EventPersonalSubmitted:
		return CounterDelta{Approved: 1}
	case EventApproved:
		return CounterDelta{Pending: -1, Approved: 1}
	case EventRejected:
		return CounterDelta{Pending: -1}
	default:
		return CounterDelta{}
	}
}

// SubmitEvent maps a new request's leave type to its counter event.
func SubmitEvent(t LeaveType) CounterEvent {
	if t == LeaveSick {
		return EventSickSubmitted
	}
	return EventPersonalSubmitted
}

// ReviewEvent maps an admin decision to its counter event.
func ReviewEvent(s Status) CounterEvent {
	if s == StatusApproved {
		return EventApproved
	}
	return EventRejected
}

// Apply returns c changed by d. Results never go below zero.
// Stores must implement the same floor in their atomic update.
func (c Counters) Apply(d CounterDelta) Counters {
	return Counters{
		PendingConfirmation:  floorZero(c.PendingConfirmation + d.Pending),
		ApprovedNonscheduled: floorZero(c.ApprovedNonscheduled + d.Approved),
	}
}

func floorZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
