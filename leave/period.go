package leave

import "time"

// Period is a closed time range [Start, End].
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.Format(time.RFC3339) + ", " + p.End.Format(time.RFC3339) + "]"
}

// MonthOf returns the calendar month containing t, as seen in loc.
// End is the last instant of the month (next month's start minus 1ns).
func MonthOf(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	next := start.AddDate(0, 1, 0)
	return Period{Start: start, End: next.Add(-time.Nanosecond)}
}
