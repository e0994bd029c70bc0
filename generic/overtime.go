/*
overtime.go - Overtime allocator

PURPOSE:
  Partitions a measure (elapsed hours, tonnes handled during a shift)
  into normal / 150% / 200% buckets from the shift's start and end
  times and the day type. Only start and end are recorded on the sheets,
  so tonnage is pro-rated by the share of wall-clock time in each bucket.

REGIMES:
  Normal day (cutoff 17:00):
    [start, cutoff)          -> normal
    [cutoff, midnight)       -> 150%
    [midnight, end next day) -> 200%

  Special day, Sunday or PH (cutoff 16:00):
    [start, cutoff)          -> 150%
    [cutoff, end]            -> 200%, including anything past midnight

MIDNIGHT:
  An interval crosses midnight when end < start and end is no later than
  the morning limit (07:59). Shifts never run past the next morning, so
  any other end < start is a data-entry error.

DEGENERATE INTERVALS:
  Zero-length intervals and inverted intervals that do not cross midnight
  return (measure, 0, 0) with Degenerate set. Callers log a
  DegenerateIntervalError warning and keep the line.

INVARIANT:
  Normal + OT150 + OT200 == measure within SplitTolerance, every bucket >= 0.

SEE ALSO:
  - rates.go: Flat two-tier rule for services without start/end times
  - calendar.go: Supplies DayType
*/
package generic

import (
	"cloud.google.com/go/civil"
)

// Cutoffs configures the allocator's time boundaries.
type Cutoffs struct {
	Normal       civil.Time // overtime starts on normal days
	Special      civil.Time // overtime starts on Sundays and public holidays
	MorningLimit civil.Time // latest end time accepted as "next morning"
}

// DefaultCutoffs returns 17:00 / 16:00 / 07:59.
func DefaultCutoffs() Cutoffs {
	return Cutoffs{
		Normal:       civil.Time{Hour: 17},
		Special:      civil.Time{Hour: 16},
		MorningLimit: civil.Time{Hour: 7, Minute: 59},
	}
}

// For returns the cutoff that applies to a day type.
func (c Cutoffs) For(d DayType) civil.Time {
	if d.IsSpecial() {
		return c.Special
	}
	return c.Normal
}

// Interval is a shift on one date. End may be earlier than Start when the
// shift runs past midnight.
type Interval struct {
	Date    civil.Date
	Start   civil.Time
	End     civil.Time
	DayType DayType
}

// CrossesMidnight reports whether the interval continues into the next day.
func (c Cutoffs) CrossesMidnight(iv Interval) bool {
	end := SecondsOfDay(iv.End)
	return end < SecondsOfDay(iv.Start) && end <= SecondsOfDay(c.MorningLimit)
}

// Check returns a DegenerateIntervalError for zero-length or inverted intervals.
func (c Cutoffs) Check(iv Interval) error {
	start, end := SecondsOfDay(iv.Start), SecondsOfDay(iv.End)
	if start == end || (end < start && !c.CrossesMidnight(iv)) {
		return &DegenerateIntervalError{Date: iv.Date, Start: iv.Start, End: iv.End}
	}
	return nil
}

// Span returns the interval's wall-clock length in seconds, including the
// part past midnight. Degenerate intervals have zero span.
func (c Cutoffs) Span(iv Interval) int {
	if c.Check(iv) != nil {
		return 0
	}
	start, end := SecondsOfDay(iv.Start), SecondsOfDay(iv.End)
	if c.CrossesMidnight(iv) {
		end += secondsPerDay
	}
	return end - start
}

// Allocator partitions measures over an interval.
type Allocator struct {
	Cutoffs Cutoffs
}

// NewAllocator creates an allocator with the given cutoffs.
func NewAllocator(c Cutoffs) Allocator {
	return Allocator{Cutoffs: c}
}

// Allocate splits measure across the buckets of iv.
func (a Allocator) Allocate(iv Interval, measure float64) OvertimeSplit {
	if a.Cutoffs.Check(iv) != nil {
		return OvertimeSplit{Normal: measure, Degenerate: true}
	}

	secs := a.Seconds(iv)
	total := float64(secs.Normal + secs.OT150 + secs.OT200)
	return OvertimeSplit{
		Normal: measure * float64(secs.Normal) / total,
		OT150:  measure * float64(secs.OT150) / total,
		OT200:  measure * float64(secs.OT200) / total,
	}
}

// Hours splits the interval's own duration, in hours.
func (a Allocator) Hours(iv Interval) OvertimeSplit {
	if a.Cutoffs.Check(iv) != nil {
		return OvertimeSplit{Degenerate: true}
	}
	secs := a.Seconds(iv)
	return OvertimeSplit{
		Normal: float64(secs.Normal) / 3600,
		OT150:  float64(secs.OT150) / 3600,
		OT200:  float64(secs.OT200) / 3600,
	}
}

// BucketSeconds is the wall-clock length of each bucket.
type BucketSeconds struct {
	Normal int
	OT150  int
	OT200  int
}

// Seconds returns the bucket lengths of a non-degenerate interval.
func (a Allocator) Seconds(iv Interval) BucketSeconds {
	start := SecondsOfDay(iv.Start)
	end := start + a.Cutoffs.Span(iv)
	cut := SecondsOfDay(a.Cutoffs.For(iv.DayType))

	beforeCut := clampSpan(start, min(end, cut))
	afterCutBeforeMidnight := clampSpan(max(start, cut), min(end, secondsPerDay))
	afterMidnight := clampSpan(max(start, secondsPerDay), end)

	if iv.DayType.IsSpecial() {
		return BucketSeconds{
			OT150: beforeCut,
			OT200: afterCutBeforeMidnight + afterMidnight,
		}
	}
	return BucketSeconds{
		Normal: beforeCut,
		OT150:  afterCutBeforeMidnight,
		OT200:  afterMidnight,
	}
}

func clampSpan(from, to int) int {
	if to <= from {
		return 0
	}
	return to - from
}
