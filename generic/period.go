package generic

import "time"

// =============================================================================
// PERIOD - Inclusive date range every report is computed over
// =============================================================================

// Period is the inclusive day range [Start, End].
//
// Storage range queries take both bounds inclusively at day granularity.
// Half-open ranges (the monthly report) are converted by the caller with
// MonthPeriod.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// NewPeriod builds a period and rejects an End before Start.
func NewPeriod(start, end TimePoint) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// MonthPeriod covers [monthStart, nextMonthStart) expressed inclusively.
func MonthPeriod(year int, month time.Month) Period {
	return Period{
		Start: StartOfMonth(year, month),
		End:   EndOfMonth(year, month),
	}
}

// Validate returns ErrInvalidPeriod when End is before Start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Days returns every calendar day in the period, ascending, exactly once.
func (p Period) Days() []TimePoint {
	if p.End.Before(p.Start) {
		return nil
	}
	days := make([]TimePoint, 0, DaysBetween(p.Start, p.End)+1)
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Len is the number of days in the period.
func (p Period) Len() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
