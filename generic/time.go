package generic

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// =============================================================================
// DAY TYPE - Drives cutoffs and rate tiers
// =============================================================================

type DayType int

const (
	DayNormal DayType = iota
	DaySunday
	DayPublicHoliday
)

// IsSpecial reports whether the day switches to the earlier cutoff and higher tiers.
func (d DayType) IsSpecial() bool { return d == DaySunday || d == DayPublicHoliday }

func (d DayType) String() string {
	switch d {
	case DaySunday:
		return "Sunday"
	case DayPublicHoliday:
		return "PublicHoliday"
	default:
		return "Normal"
	}
}

// PublicHolidayName is the day name printed for public holidays.
const PublicHolidayName = "PH"

// DayTypeFromName maps a sheet day label ("PH", "Sun", "Mon", ...) to a DayType.
func DayTypeFromName(name string) DayType {
	switch strings.TrimSpace(name) {
	case PublicHolidayName:
		return DayPublicHoliday
	case "Sun":
		return DaySunday
	default:
		return DayNormal
	}
}

// =============================================================================
// DATES - DD/MM/YYYY on the wire, civil.Date in memory
// =============================================================================

var dateLayouts = []string{"02/01/2006", "2/1/2006", "2006-01-02"}

// ParseDate accepts DD/MM/YYYY (the sheet format) and YYYY-MM-DD.
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, fmt.Errorf("invalid date %q: want DD/MM/YYYY", s)
}

// FormatDate renders a date in the sheet format.
func FormatDate(d civil.Date) string {
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, int(d.Month), d.Year)
}

// Weekday returns the weekday of a civil date.
func Weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

// =============================================================================
// TIME OF DAY - HH:MM:SS or HH:MM
// =============================================================================

const secondsPerDay = 24 * 60 * 60

var clockLayouts = []string{"15:04:05", "15:04", "3:04:05 PM", "3:04 PM"}

// ParseClock accepts HH:MM:SS and HH:MM.
func ParseClock(s string) (civil.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.TimeOf(t), nil
		}
	}
	return civil.Time{}, fmt.Errorf("invalid time %q: want HH:MM:SS or HH:MM", s)
}

// MustClock parses a literal time of day. Panics on malformed input.
func MustClock(s string) civil.Time {
	t, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return t
}

// FormatClock renders HH:MM:SS.
func FormatClock(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// SecondsOfDay returns the seconds elapsed since midnight.
func SecondsOfDay(t civil.Time) int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// ClockAfter reports whether a is strictly later than b on the same day.
func ClockAfter(a, b civil.Time) bool { return SecondsOfDay(a) > SecondsOfDay(b) }

// ParseDateTime accepts "DD/MM/YYYY HH:MM:SS" and "DD/MM/YYYY HH:MM".
func ParseDateTime(s string) (civil.DateTime, error) {
	s = strings.TrimSpace(s)
	datePart, clockPart, ok := strings.Cut(s, " ")
	if !ok {
		return civil.DateTime{}, fmt.Errorf("invalid datetime %q: want DD/MM/YYYY HH:MM:SS", s)
	}
	d, err := ParseDate(datePart)
	if err != nil {
		return civil.DateTime{}, err
	}
	t, err := ParseClock(clockPart)
	if err != nil {
		return civil.DateTime{}, err
	}
	return civil.DateTime{Date: d, Time: t}, nil
}

// HoursBetween returns the elapsed hours from a to b.
func HoursBetween(a, b civil.DateTime) float64 {
	return b.In(time.UTC).Sub(a.In(time.UTC)).Hours()
}

// FormatDateTime renders "DD/MM/YYYY HH:MM:SS".
func FormatDateTime(dt civil.DateTime) string {
	return FormatDate(dt.Date) + " " + FormatClock(dt.Time)
}
