package model

import "time"

// DayStatus is the outcome of one daily reconciliation.
type DayStatus string

const (
	DayComplete      DayStatus = "complete"
	DayIncomplete    DayStatus = "incomplete"
	DaySkipped       DayStatus = "skipped"
	DayAlreadyLogged DayStatus = "already_logged"
	DayNotConfigured DayStatus = "not_configured"
)

// DaySummary is the result of reconciling a single date.
type DaySummary struct {
	Date   time.Time
	Status DayStatus
	// Reason is the calendar reason for skipped and overhead-only days.
	Reason string
	// Preserved are overhead and manual-only entries left untouched.
	Preserved []WorkEntry
	Created   []WorkEntry
	// TargetSeconds is the daily target at the time of the run.
	TargetSeconds int
}

// Entries returns preserved entries followed by created ones.
func (s DaySummary) Entries() []WorkEntry {
	out := make([]WorkEntry, 0, len(s.Preserved)+len(s.Created))
	out = append(out, s.Preserved...)
	return append(out, s.Created...)
}

// TotalSeconds is the booked total after the run.
func (s DaySummary) TotalSeconds() int {
	return TotalSeconds(s.Preserved) + TotalSeconds(s.Created)
}

// BackfillMethod tags how a weekly gap was filled.
type BackfillMethod string

const (
	BackfillStories  BackfillMethod = "stories"
	BackfillOverhead BackfillMethod = "overhead"
	BackfillNone     BackfillMethod = "none"
)

// WeekDayState classifies one row of the weekly report.
type WeekDayState string

const (
	WeekComplete   WeekDayState = "complete"
	WeekBackfilled WeekDayState = "backfilled"
	WeekGap        WeekDayState = "gap"
	// WeekOffLogged is a PTO or holiday with overhead hours booked.
	WeekOffLogged WeekDayState = "off_logged"
	// WeekExcluded rows (future, weekend, unconfigured off days) do not count toward totals.
	WeekExcluded WeekDayState = "excluded"
)

// WeekDay is one row of the weekly verification report.
type WeekDay struct {
	Date   time.Time
	State  WeekDayState
	Reason string
	Method BackfillMethod
	// ExistingSeconds were already booked before verification.
	ExistingSeconds int
	AddedSeconds    int
	CreatedCount    int
}

// Counted reports whether the day contributes to expected and actual totals.
func (d WeekDay) Counted() bool {
	return d.State != WeekExcluded
}

// WeeklySummary aggregates a Monday to Friday verification.
type WeeklySummary struct {
	Start time.Time
	End   time.Time
	Days  []WeekDay
	// DailySeconds is the per-day target used for expected totals.
	DailySeconds int
}

// ExpectedSeconds is the daily target times the number of counted days.
func (w WeeklySummary) ExpectedSeconds() int {
	total := 0
	for _, d := range w.Days {
		if d.Counted() {
			total += w.DailySeconds
		}
	}
	return total
}

// ActualSeconds is existing plus added hours of counted days.
func (w WeeklySummary) ActualSeconds() int {
	total := 0
	for _, d := range w.Days {
		if d.Counted() {
			total += d.ExistingSeconds + d.AddedSeconds
		}
	}
	return total
}

// CreatedCount is the number of bookings created during verification.
func (w WeeklySummary) CreatedCount() int {
	n := 0
	for _, d := range w.Days {
		n += d.CreatedCount
	}
	return n
}

// AddedSeconds is the number of seconds backfilled during verification.
func (w WeeklySummary) AddedSeconds() int {
	n := 0
	for _, d := range w.Days {
		n += d.AddedSeconds
	}
	return n
}

// WorkingDays counts the rows that contribute to totals.
func (w WeeklySummary) WorkingDays() int {
	n := 0
	for _, d := range w.Days {
		if d.Counted() {
			n++
		}
	}
	return n
}

// SubmissionResult is the outcome of a monthly submission attempt.
type SubmissionResult struct {
	Period string
	// Attempted is false when today is not the last day of the month.
	Attempted       bool
	Submitted       bool
	WorkingDays     int
	ExpectedSeconds int
	ActualSeconds   int
	Reason          string
}

// ShortfallSeconds is expected minus actual, never negative.
func (r SubmissionResult) ShortfallSeconds() int {
	if r.ActualSeconds >= r.ExpectedSeconds {
		return 0
	}
	return r.ExpectedSeconds - r.ActualSeconds
}
