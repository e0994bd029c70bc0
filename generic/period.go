package generic

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// =============================================================================
// PERIOD - Billing window for runs and reconciliation
// =============================================================================

// Period is an inclusive date range [Start, End].
//
// Examples:
//   - Monthly invoice for March 2025: Mar 1 - Mar 31
//   - Reconciliation window: first of start month - last of end month
type Period struct {
	Start civil.Date
	End   civil.Date
}

// NewPeriod validates and builds a period.
func NewPeriod(start, end civil.Date) (Period, error) {
	if end.Before(start) {
		return Period{}, fmt.Errorf("%w: %s > %s", ErrInvalidPeriod, start, end)
	}
	return Period{Start: start, End: end}, nil
}

// MonthPeriod returns the full calendar month.
func MonthPeriod(year int, month time.Month) Period {
	start := civil.Date{Year: year, Month: month, Day: 1}
	next := civil.DateOf(time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC))
	return Period{Start: start, End: next.AddDays(-1)}
}

// MonthRange spans from the first day of the start month to the last day of the end month.
func MonthRange(year int, startMonth, endMonth time.Month) (Period, error) {
	if endMonth < startMonth {
		return Period{}, fmt.Errorf("%w: month %d > %d", ErrInvalidPeriod, startMonth, endMonth)
	}
	return Period{
		Start: MonthPeriod(year, startMonth).Start,
		End:   MonthPeriod(year, endMonth).End,
	}, nil
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d civil.Date) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

// IsZero reports an unset period. A zero period contains every date for Filter.
func (p Period) IsZero() bool {
	return p.Start == (civil.Date{}) && p.End == (civil.Date{})
}

// Days returns every date in the period.
func (p Period) Days() []civil.Date {
	var days []civil.Date
	for d := p.Start; !d.After(p.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// FilterLines keeps the lines dated inside the period. A zero period keeps everything.
func (p Period) FilterLines(lines []PricedLine) []PricedLine {
	if p.IsZero() {
		return lines
	}
	out := make([]PricedLine, 0, len(lines))
	for _, l := range lines {
		if p.Contains(l.Date) {
			out = append(out, l)
		}
	}
	return out
}
