/*
calendar.go - Public holidays and day-type classification

PURPOSE:
  Classifies every activity date as Normal, Sunday or PublicHoliday.
  The classification picks the overtime cutoff and the rate tiers.

HOLIDAY RULES (per year):
  Fixed:          01-01, 01-02, 05-01, 06-18, 06-29, 08-15, 11-01, 12-08, 12-25
  Easter-based:   Good Friday (-2), Holy Saturday (-1), Easter Sunday,
                  Easter Monday (+1), Corpus Christi (+60)
  Observed:       a fixed holiday that falls on a Sunday adds the Monday after

  Easter is computed with the Meeus/Jones/Butcher Gregorian algorithm.
  An off-by-one Easter shifts five holidays and misprices whole shifts,
  so the arithmetic is reproduced exactly.

WINDOW:
  DayTypeOf looks at years y-1, y and y+1 so dates near a year boundary
  classify against the right holiday set.

CONCURRENCY:
  Sets are computed lazily per year and cached. Once computed a set is
  never mutated, so readers share it without copying.

SEE ALSO:
  - overtime.go: Consumes DayType
  - time.go: DayType definition
*/
package generic

import (
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rickar/cal/v2"
)

// =============================================================================
// HOLIDAY DEFINITIONS
// =============================================================================

// observedMonday moves a Sunday holiday to the following Monday.
var observedMonday = []cal.AltDay{{Day: time.Sunday, Offset: 1}}

func fixed(name string, month time.Month, day int) *cal.Holiday {
	return &cal.Holiday{
		Name:     name,
		Month:    month,
		Day:      day,
		Observed: observedMonday,
		Func:     cal.CalcDayOfMonth,
	}
}

func easterRelative(name string, offset int) *cal.Holiday {
	return &cal.Holiday{Name: name, Offset: offset, Func: calcMeeusEaster}
}

// calcMeeusEaster is a cal.HolidayFn anchored on EasterSunday.
func calcMeeusEaster(h *cal.Holiday, year int) time.Time {
	return EasterSunday(year).In(time.UTC).AddDate(0, 0, h.Offset)
}

// DefaultHolidays is the holiday table applied by NewCalendar.
var DefaultHolidays = []*cal.Holiday{
	fixed("New Year's Day", time.January, 1),
	fixed("New Year Holiday", time.January, 2),
	fixed("Labour Day", time.May, 1),
	fixed("National Day", time.June, 18),
	fixed("Independence Day", time.June, 29),
	fixed("Assumption Day", time.August, 15),
	fixed("All Saints' Day", time.November, 1),
	fixed("Immaculate Conception", time.December, 8),
	fixed("Christmas Day", time.December, 25),
	easterRelative("Good Friday", -2),
	easterRelative("Holy Saturday", -1),
	easterRelative("Easter Sunday", 0),
	easterRelative("Easter Monday", 1),
	easterRelative("Corpus Christi", 60),
}

// EasterSunday computes Gregorian Easter (Meeus/Jones/Butcher).
func EasterSunday(year int) civil.Date {
	a := year % 19
	b := year / 100
	c := year % 100
	d := (19*a + b - b/4 - ((b-(b+8)/25+1)/3) + 15) % 30
	e := (32 + 2*(b%4) + 2*(c/4) - d - (c % 4)) % 7
	f := d + e - 7*((a+11*d+22*e)/451) + 114
	return civil.Date{Year: year, Month: time.Month(f / 31), Day: f%31 + 1}
}

// =============================================================================
// HOLIDAY SET
// =============================================================================

// HolidaySet maps holiday dates to their name. Immutable once built.
type HolidaySet map[civil.Date]string

// Contains reports whether d is a holiday.
func (s HolidaySet) Contains(d civil.Date) bool {
	_, ok := s[d]
	return ok
}

// Dates returns the holiday dates in ascending order.
func (s HolidaySet) Dates() []civil.Date {
	out := make([]civil.Date, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Union returns a new set holding the dates of s and others.
func (s HolidaySet) Union(others ...HolidaySet) HolidaySet {
	out := make(HolidaySet, len(s))
	for d, n := range s {
		out[d] = n
	}
	for _, o := range others {
		for d, n := range o {
			if _, ok := out[d]; !ok {
				out[d] = n
			}
		}
	}
	return out
}

// HolidaysForYear evaluates a holiday table for one year.
func HolidaysForYear(year int, holidays []*cal.Holiday) HolidaySet {
	set := make(HolidaySet, len(holidays)+4)
	for _, h := range holidays {
		actual, observed := h.Calc(year)
		if actual.IsZero() {
			continue
		}
		set[civil.DateOf(actual)] = h.Name
		if !observed.IsZero() && !observed.Equal(actual) {
			od := civil.DateOf(observed)
			if _, ok := set[od]; !ok {
				set[od] = h.Name + " (observed)"
			}
		}
	}
	return set
}

// =============================================================================
// CALENDAR
// =============================================================================

// Calendar classifies dates against a holiday table, caching one set per year.
type Calendar struct {
	holidays []*cal.Holiday

	mu       sync.Mutex
	byYear   map[int]HolidaySet
	byWindow map[int]HolidaySet
}

// NewCalendar creates a calendar over DefaultHolidays.
func NewCalendar() *Calendar {
	return NewCalendarWith(DefaultHolidays)
}

// NewCalendarWith creates a calendar over a custom holiday table.
func NewCalendarWith(holidays []*cal.Holiday) *Calendar {
	return &Calendar{
		holidays: holidays,
		byYear:   make(map[int]HolidaySet),
		byWindow: make(map[int]HolidaySet),
	}
}

// HolidaysForYear returns the cached set for year.
func (c *Calendar) HolidaysForYear(year int) HolidaySet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.yearLocked(year)
}

func (c *Calendar) yearLocked(year int) HolidaySet {
	if set, ok := c.byYear[year]; ok {
		return set
	}
	set := HolidaysForYear(year, c.holidays)
	c.byYear[year] = set
	return set
}

// HolidaysWindow returns the union of center-1, center and center+1.
func (c *Calendar) HolidaysWindow(center int) HolidaySet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.byWindow[center]; ok {
		return set
	}
	set := c.yearLocked(center).Union(c.yearLocked(center-1), c.yearLocked(center+1))
	c.byWindow[center] = set
	return set
}

// IsHoliday reports whether d is a public holiday, observed Mondays included.
func (c *Calendar) IsHoliday(d civil.Date) bool {
	return c.HolidaysWindow(d.Year).Contains(d)
}

// DayTypeOf classifies d. Holidays take precedence over Sundays.
func (c *Calendar) DayTypeOf(d civil.Date) DayType {
	return DayTypeIn(d, c.HolidaysWindow(d.Year))
}

// DayName returns "PH" for holidays, otherwise the three-letter weekday.
func (c *Calendar) DayName(d civil.Date) string {
	return DayNameIn(d, c.HolidaysWindow(d.Year))
}

// Classify returns both the day type and the day name.
func (c *Calendar) Classify(d civil.Date) (DayType, string) {
	set := c.HolidaysWindow(d.Year)
	return DayTypeIn(d, set), DayNameIn(d, set)
}

// DayTypeIn classifies d against an explicit holiday set.
func DayTypeIn(d civil.Date, holidays HolidaySet) DayType {
	if holidays.Contains(d) {
		return DayPublicHoliday
	}
	if Weekday(d) == time.Sunday {
		return DaySunday
	}
	return DayNormal
}

// DayNameIn names d against an explicit holiday set.
func DayNameIn(d civil.Date, holidays HolidaySet) string {
	if holidays.Contains(d) {
		return PublicHolidayName
	}
	return Weekday(d).String()[:3]
}
