/*
spec_test.go - Executable pricing rules

PURPOSE:
  These tests serve as EXECUTABLE SPECIFICATIONS of the pricing rules.
  Each test documents one behavior an invoice depends on and validates
  that the implementation conforms to it.

ORGANIZATION:
  Tests are grouped by area:
  1. Calendar - Easter arithmetic, fixed and observed holidays, day names
  2. Overtime Allocation - Normal and special regimes, midnight, degenerate
  3. Flat Rule and Single-Time Labels - Quantity pairs and movement times
  4. Price Catalog - As-of lookup, load order, missing prices
  5. Correctness Guarantees - Split conservation and price arithmetic

READING THESE TESTS:
  Each test has:
  - A descriptive name that states the behavior
  - GIVEN/WHEN/THEN comments explaining the scenario
  - Clear assertions with explanatory messages
*/
package generic_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/warp/port-invoice/generic"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func interval(d civil.Date, start, end string) generic.Interval {
	return generic.Interval{
		Date:    d,
		Start:   generic.MustClock(start),
		End:     generic.MustClock(end),
		DayType: generic.NewCalendar().DayTypeOf(d),
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func assertSplit(t *testing.T, got generic.OvertimeSplit, normal, ot150, ot200 float64) {
	t.Helper()
	if !approx(got.Normal, normal) || !approx(got.OT150, ot150) || !approx(got.OT200, ot200) {
		t.Errorf("split = (%g, %g, %g), want (%g, %g, %g)",
			got.Normal, got.OT150, got.OT200, normal, ot150, ot200)
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Reference dates
var (
	tuesday   = date(2024, time.January, 9)
	sunday    = date(2024, time.January, 7)
	christmas = date(2024, time.December, 25)
)

// =============================================================================
// 1. CALENDAR
// =============================================================================

func TestSpec_Calendar_EasterSunday(t *testing.T) {
	// GIVEN: Known Gregorian Easter dates
	// WHEN: EasterSunday is computed
	// THEN: Every date matches; an off-by-one shifts five holidays

	cases := map[int]civil.Date{
		2019: date(2019, time.April, 21),
		2023: date(2023, time.April, 9),
		2024: date(2024, time.March, 31),
		2025: date(2025, time.April, 20),
		2026: date(2026, time.April, 5),
	}
	for year, want := range cases {
		if got := generic.EasterSunday(year); got != want {
			t.Errorf("EasterSunday(%d) = %s, want %s", year, got, want)
		}
	}
}

func TestSpec_Calendar_EasterRelativeHolidays(t *testing.T) {
	// GIVEN: Easter 2024 on March 31
	// WHEN: The 2024 holiday set is built
	// THEN: Good Friday, Holy Saturday, Easter Sunday, Easter Monday and
	//       Corpus Christi (+60) are all present

	set := generic.NewCalendar().HolidaysForYear(2024)
	for _, d := range []civil.Date{
		date(2024, time.March, 29),
		date(2024, time.March, 30),
		date(2024, time.March, 31),
		date(2024, time.April, 1),
		date(2024, time.May, 30),
	} {
		if !set.Contains(d) {
			t.Errorf("expected %s to be a holiday", d)
		}
	}
}

func TestSpec_Calendar_FixedHolidays(t *testing.T) {
	// GIVEN: The fixed holiday table
	// THEN: Every fixed date of 2025 is a holiday

	cal := generic.NewCalendar()
	fixed := []civil.Date{
		date(2025, time.January, 1), date(2025, time.January, 2),
		date(2025, time.May, 1), date(2025, time.June, 18),
		date(2025, time.June, 29), date(2025, time.August, 15),
		date(2025, time.November, 1), date(2025, time.December, 8),
		date(2025, time.December, 25),
	}
	for _, d := range fixed {
		if !cal.IsHoliday(d) {
			t.Errorf("expected %s to be a holiday", d)
		}
	}
	if cal.IsHoliday(date(2025, time.March, 4)) {
		t.Error("an ordinary Tuesday must not be a holiday")
	}
}

func TestSpec_Calendar_SundayHolidayObservedOnMonday(t *testing.T) {
	// GIVEN: December 8 2024 falls on a Sunday
	// WHEN: The 2024 holiday set is built
	// THEN: Monday December 9 is also a public holiday

	cal := generic.NewCalendar()
	monday := date(2024, time.December, 9)

	if !cal.IsHoliday(monday) {
		t.Fatal("expected the Monday after a Sunday holiday to be observed")
	}
	if got := cal.DayTypeOf(monday); got != generic.DayPublicHoliday {
		t.Errorf("day type = %s, want PublicHoliday", got)
	}
}

func TestSpec_Calendar_HolidaysWindowSpansAdjacentYears(t *testing.T) {
	// GIVEN: A window centred on 2024
	// WHEN: The holiday set is built
	// THEN: It covers the late-2023 and early-2025 holidays, nothing beyond

	set := generic.NewCalendar().HolidaysWindow(2024)

	if !set.Contains(date(2023, time.December, 25)) {
		t.Error("expected Christmas 2023 in the window")
	}
	if !set.Contains(date(2025, time.January, 1)) {
		t.Error("expected New Year 2025 in the window")
	}
	if set.Contains(date(2026, time.January, 1)) {
		t.Error("2026 is outside the window")
	}
}

func TestSpec_Calendar_HolidayTakesPrecedenceOverSunday(t *testing.T) {
	// GIVEN: Easter Sunday 2025 (a holiday on a Sunday)
	// WHEN: The date is classified
	// THEN: It is a PublicHoliday named "PH", not a Sunday

	dt, name := generic.NewCalendar().Classify(date(2025, time.April, 20))
	if dt != generic.DayPublicHoliday {
		t.Errorf("day type = %s, want PublicHoliday", dt)
	}
	if name != generic.PublicHolidayName {
		t.Errorf("day name = %q, want PH", name)
	}
}

func TestSpec_Calendar_DayNames(t *testing.T) {
	cal := generic.NewCalendar()

	cases := []struct {
		d        civil.Date
		wantType generic.DayType
		wantName string
	}{
		{tuesday, generic.DayNormal, "Tue"},
		{sunday, generic.DaySunday, "Sun"},
		{christmas, generic.DayPublicHoliday, "PH"},
		{date(2025, time.January, 1), generic.DayPublicHoliday, "PH"},
	}
	for _, tc := range cases {
		dt, name := cal.Classify(tc.d)
		if dt != tc.wantType || name != tc.wantName {
			t.Errorf("Classify(%s) = (%s, %s), want (%s, %s)", tc.d, dt, name, tc.wantType, tc.wantName)
		}
	}
}

func TestSpec_Calendar_DayTypeFromName(t *testing.T) {
	if generic.DayTypeFromName("PH") != generic.DayPublicHoliday {
		t.Error("PH should map to PublicHoliday")
	}
	if generic.DayTypeFromName(" Sun ") != generic.DaySunday {
		t.Error("Sun should map to Sunday")
	}
	if generic.DayTypeFromName("Wed") != generic.DayNormal {
		t.Error("weekday names should map to Normal")
	}
}

// =============================================================================
// 2. OVERTIME ALLOCATION
// =============================================================================

func TestSpec_Overtime_NormalDay_SplitsAtFivePM(t *testing.T) {
	// GIVEN: A Tuesday shift 15:00 -> 19:00
	// WHEN: Its hours are split
	// THEN: 2h normal before 17:00, 2h at 150% after

	alloc := generic.NewAllocator(generic.DefaultCutoffs())
	assertSplit(t, alloc.Hours(interval(tuesday, "15:00", "19:00")), 2, 2, 0)
}

func TestSpec_Overtime_NormalDay_EndAtCutoffIsNormal(t *testing.T) {
	// GIVEN: A Tuesday shift ending exactly at 17:00
	// THEN: The whole shift is normal time

	alloc := generic.NewAllocator(generic.DefaultCutoffs())
	assertSplit(t, alloc.Hours(interval(tuesday, "09:00", "17:00")), 8, 0, 0)
}

func TestSpec_Overtime_NormalDay_CrossesMidnight(t *testing.T) {
	// GIVEN: A Tuesday shift 22:00 -> 02:00
	// WHEN: Its hours are split
	// THEN: 2h at 150% before midnight, 2h at 200% after

	alloc := generic.NewAllocator(generic.DefaultCutoffs())
	iv := interval(tuesday, "22:00", "02:00")

	if !alloc.Cutoffs.CrossesMidnight(iv) {
		t.Fatal("expected interval to cross midnight")
	}
	assertSplit(t, alloc.Hours(iv), 0, 2, 2)
}

func TestSpec_Overtime_TonnageAcrossMidnight(t *testing.T) {
	// GIVEN: 10 tonnes handled on a Tuesday 22:00 -> 02:00
	// THEN: 5 t at 150% before midnight, 5 t at 200% after, still 10 t in total

	alloc := generic.NewAllocator(generic.DefaultCutoffs())
	got := alloc.Allocate(interval(tuesday, "22:00", "02:00"), 10)

	assertSplit(t, got, 0, 5, 5)
	if !got.Balanced(10) {
		t.Errorf("total = %g, want 10", got.Total())
	}
}

func TestSpec_Overtime_PreCutoffOnly(t *testing.T) {
	// GIVEN: 8 tonnes on a Tuesday 08:00 -> 16:00
	// THEN: Everything is normal

	alloc := generic.NewAllocator(generic.DefaultCutoffs())
	assertSplit(t, alloc.Allocate(interval(tuesday, "08:00", "16:00"), 8), 8, 0, 0)
}

func TestSpec_Overtime_SpecialDay_SplitsAtFourPM(t *testing.T) {
	// GIVEN: A Sunday shift 14:00 -> 18:00
	// WHEN: Its hours are split
	// THEN: 2h at 150% before 16:00, 2h at 200% after; nothing is normal

	alloc := generic.NewAllocator(generic.DefaultCutoffs())
	assertSplit(t, alloc.Hours(interval(sunday, "14:00", "18:00")), 0, 2, 2)
}

func TestSpec_Overtime_SpecialDay_PastMidnightStays200(t *testing.T) {
	// GIVEN: A public holiday shift 22:00 -> 01:00
	// THEN: All three hours are at 200%

	alloc := generic.NewAllocator(generic.DefaultCutoffs())
	assertSplit(t, alloc.Hours(interval(christmas, "22:00", "01:00")), 0, 0, 3)
}

func TestSpec_Overtime_MorningLimit(t *testing.T) {
	// GIVEN: Two inverted intervals starting at 22:00
	// WHEN: One ends at 07:59 and the other at 08:00
	// THEN: The first crosses midnight; the second is degenerate

	c := generic.DefaultCutoffs()

	if err := c.Check(interval(tuesday, "22:00", "07:59")); err != nil {
		t.Errorf("07:59 end should cross midnight, got %v", err)
	}
	err := c.Check(interval(tuesday, "22:00", "08:00"))
	if !errors.Is(err, generic.ErrDegenerateInterval) {
		t.Errorf("08:00 end should be degenerate, got %v", err)
	}
}

func TestSpec_Overtime_DegenerateIsFullyNormal(t *testing.T) {
	// GIVEN: An inverted daytime interval 14:00 -> 10:00 and a zero-length one
	// WHEN: 8 tonnes are allocated over each
	// THEN: All 8 tonnes are normal and the split is flagged Degenerate

	alloc := generic.NewAllocator(generic.DefaultCutoffs())

	for _, iv := range []generic.Interval{
		interval(tuesday, "14:00", "10:00"),
		interval(sunday, "10:00", "10:00"),
	} {
		got := alloc.Allocate(iv, 8)
		if !got.Degenerate {
			t.Errorf("%s -> %s: expected Degenerate", generic.FormatClock(iv.Start), generic.FormatClock(iv.End))
		}
		assertSplit(t, got, 8, 0, 0)
	}

	if h := alloc.Hours(interval(tuesday, "14:00", "10:00")); !h.Degenerate || h.Total() != 0 {
		t.Errorf("degenerate hours = %+v, want zero and Degenerate", h)
	}
}

func TestSpec_Overtime_TonnageProratedByTime(t *testing.T) {
	// GIVEN: 100 tonnes handled during a Tuesday shift 15:00 -> 19:00
	// WHEN: The tonnage is allocated
	// THEN: Half the wall-clock time is overtime, so is half the tonnage

	alloc := generic.NewAllocator(generic.DefaultCutoffs())
	assertSplit(t, alloc.Allocate(interval(tuesday, "15:00", "19:00"), 100), 50, 50, 0)
}

func TestSpec_Overtime_CustomCutoffs(t *testing.T) {
	// GIVEN: A normal cutoff moved to 18:00
	// THEN: A 15:00 -> 19:00 shift has 3h normal and 1h at 150%

	c := generic.DefaultCutoffs()
	c.Normal = generic.MustClock("18:00")
	assertSplit(t, generic.NewAllocator(c).Hours(interval(tuesday, "15:00", "19:00")), 3, 1, 0)
}

// =============================================================================
// 3. FLAT RULE AND SINGLE-TIME LABELS
// =============================================================================

func TestSpec_FlatSplit_NormalDay(t *testing.T) {
	// GIVEN: 10 tonnes, 3 of them overtime, on a normal day
	// THEN: 7 normal, 3 at 150%

	assertSplit(t, generic.FlatSplit(generic.DayNormal, 10, 3), 7, 3, 0)
}

func TestSpec_FlatSplit_SpecialDayUpliftsRegularPart(t *testing.T) {
	// GIVEN: 10 tonnes, 3 of them overtime, on a Sunday
	// THEN: 7 at 150%, 3 at 200%; the regular part is uplifted too

	assertSplit(t, generic.FlatSplit(generic.DaySunday, 10, 3), 0, 7, 3)
	assertSplit(t, generic.FlatSplit(generic.DayPublicHoliday, 10, 3), 0, 7, 3)
}

func TestSpec_FlatSplit_OvertimeAboveTotalKeepsRecordedSum(t *testing.T) {
	// GIVEN: A sheet recording 5 overtime units out of a total of 3
	// WHEN: The flat rule splits it
	// THEN: The regular bucket goes to -2 so the buckets still sum to 3

	got := generic.FlatSplit(generic.DayNormal, 3, 5)
	assertSplit(t, got, -2, 5, 0)
	if !approx(got.Total(), 3) {
		t.Errorf("total = %g, want 3", got.Total())
	}
}

func TestSpec_TierAt(t *testing.T) {
	c := generic.DefaultCutoffs()

	cases := []struct {
		name string
		day  generic.DayType
		at   string
		want generic.Tier
	}{
		{"normal day morning", generic.DayNormal, "10:00", generic.TierNormal},
		{"normal day at cutoff", generic.DayNormal, "17:00", generic.TierNormal},
		{"normal day evening", generic.DayNormal, "18:00", generic.Tier150},
		{"sunday morning", generic.DaySunday, "10:00", generic.Tier150},
		{"sunday after cutoff", generic.DaySunday, "16:30", generic.Tier200},
		{"holiday evening", generic.DayPublicHoliday, "21:00", generic.Tier200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.TierAt(tc.day, generic.MustClock(tc.at)); got != tc.want {
				t.Errorf("TierAt = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSpec_ParseTier(t *testing.T) {
	for label, want := range map[string]generic.Tier{
		"normal hours":  generic.TierNormal,
		"Overtime 150%": generic.Tier150,
		"200%":          generic.Tier200,
	} {
		got, err := generic.ParseTier(label)
		if err != nil || got != want {
			t.Errorf("ParseTier(%q) = %s, %v; want %s", label, got, err, want)
		}
	}
	if _, err := generic.ParseTier("triple time"); err == nil {
		t.Error("expected an error for an unknown label")
	}
}

// =============================================================================
// 4. PRICE CATALOG
// =============================================================================

func shiftingCatalog() *generic.PriceCatalog {
	return generic.NewPriceCatalog(
		generic.PriceEntry{Service: "Shifting", Effective: date(2024, time.January, 1), Price: dec("12.50")},
		generic.PriceEntry{Service: "Shifting", Effective: date(2023, time.January, 1), Price: dec("10")},
	)
}

func TestSpec_Catalog_AsOfPicksLatestEffective(t *testing.T) {
	// GIVEN: Shifting at 10 from 2023-01-01 and 12.50 from 2024-01-01,
	//        loaded out of order
	// WHEN: Prices are looked up
	// THEN: The latest entry effective on or before the date wins

	c := shiftingCatalog()

	cases := []struct {
		on   civil.Date
		want string
	}{
		{date(2023, time.January, 1), "10"},
		{date(2023, time.December, 31), "10"},
		{date(2024, time.January, 1), "12.5"},
		{date(2030, time.June, 1), "12.5"},
	}
	for _, tc := range cases {
		got, err := c.PriceAsOf("Shifting", tc.on)
		if err != nil {
			t.Fatalf("PriceAsOf(%s): %v", tc.on, err)
		}
		if !got.Equal(dec(tc.want)) {
			t.Errorf("PriceAsOf(%s) = %s, want %s", tc.on, got, tc.want)
		}
	}
}

func TestSpec_Catalog_NoEntryIsNotFoundNeverZero(t *testing.T) {
	// GIVEN: The first Shifting entry is effective 2023-01-01
	// WHEN: A price is requested for 2022-12-31, or for an unknown service
	// THEN: PriceNotFoundError, not a zero price

	c := shiftingCatalog()

	_, err := c.PriceAsOf("Shifting", date(2022, time.December, 31))
	var pnf *generic.PriceNotFoundError
	if !errors.As(err, &pnf) {
		t.Fatalf("expected PriceNotFoundError, got %v", err)
	}
	if pnf.Service != "Shifting" {
		t.Errorf("error service = %q", pnf.Service)
	}

	_, err = c.PriceAsOf("Teleport", date(2024, time.June, 1))
	if !errors.Is(err, generic.ErrPriceNotFound) || !generic.IsNotFound(err) {
		t.Errorf("expected ErrPriceNotFound, got %v", err)
	}
}

func TestSpec_Catalog_LaterEffectiveFallsBackToPrior(t *testing.T) {
	// GIVEN: The 12.50 entry moved from 2024-01-01 to 2024-07-01
	// WHEN: Prices are looked up on 2024-03-01 and 2024-06-30
	// THEN: Both fall back to the 10.00 entry, never an error

	c := generic.NewPriceCatalog(
		generic.PriceEntry{Service: "Shifting", Effective: date(2023, time.January, 1), Price: dec("10")},
		generic.PriceEntry{Service: "Shifting", Effective: date(2024, time.July, 1), Price: dec("12.50")},
	)
	for _, d := range []civil.Date{date(2024, time.March, 1), date(2024, time.June, 30)} {
		got, err := c.PriceAsOf("Shifting", d)
		if err != nil || !got.Equal(dec("10")) {
			t.Errorf("PriceAsOf(%s) = %s, %v; want 10", d, got, err)
		}
	}
}

func TestSpec_Catalog_SameEffectiveDateLastLoadedWins(t *testing.T) {
	// GIVEN: Two entries for the same service and effective date
	// WHEN: The price is looked up on that date
	// THEN: The entry loaded last wins

	d := date(2024, time.March, 1)
	c := generic.NewPriceCatalog(
		generic.PriceEntry{Service: "Forklift", Effective: d, Price: dec("40")},
		generic.PriceEntry{Service: "Forklift", Effective: d, Price: dec("45")},
	)
	got, err := c.PriceAsOf("Forklift", d)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(dec("45")) {
		t.Errorf("price = %s, want 45", got)
	}
}

func TestSpec_Catalog_ServiceNamesAreTrimmed(t *testing.T) {
	c := generic.NewPriceCatalog(
		generic.PriceEntry{Service: " Tipping Truck ", Effective: date(2023, time.January, 1), Price: dec("80")},
	)
	if _, err := c.PriceAsOf("Tipping Truck", tuesday); err != nil {
		t.Errorf("trimmed lookup failed: %v", err)
	}
	if c.Len() != 1 || len(c.Services()) != 1 {
		t.Errorf("Len = %d, Services = %v", c.Len(), c.Services())
	}
}

func TestSpec_Catalog_MultiLookupJoinsMissing(t *testing.T) {
	c := shiftingCatalog()

	prices, err := c.PriceAsOfMulti([]string{"Shifting", "Lashing", "Unlashing"}, tuesday)
	if len(prices) != 1 || !prices["Shifting"].Equal(dec("12.5")) {
		t.Errorf("prices = %v", prices)
	}
	if !errors.Is(err, generic.ErrPriceNotFound) {
		t.Errorf("expected joined ErrPriceNotFound, got %v", err)
	}
}

// =============================================================================
// 5. CORRECTNESS GUARANTEES
// =============================================================================

func TestSpec_Invariant_SplitConservesMeasure(t *testing.T) {
	// For every start/end pair on every day type, the buckets sum to the
	// measure and none is negative.

	alloc := generic.NewAllocator(generic.DefaultCutoffs())
	days := []civil.Date{tuesday, sunday, christmas}
	clocks := []string{"00:00", "06:30", "07:59", "12:00", "16:00", "17:00", "20:15", "23:59"}

	for _, d := range days {
		for _, s := range clocks {
			for _, e := range clocks {
				iv := interval(d, s, e)
				got := alloc.Allocate(iv, 37.5)
				if !got.Balanced(37.5) {
					t.Errorf("%s %s->%s: total %g != 37.5", d, s, e, got.Total())
				}
				if got.Normal < 0 || got.OT150 < 0 || got.OT200 < 0 {
					t.Errorf("%s %s->%s: negative bucket %+v", d, s, e, got)
				}
				if d != tuesday && !got.Degenerate && got.Normal != 0 {
					t.Errorf("%s %s->%s: special day has normal time %+v", d, s, e, got)
				}
			}
		}
	}
}

func TestSpec_Invariant_PriceAppliesTierMultipliers(t *testing.T) {
	// GIVEN: 2 normal, 2 at 150% and 1 at 200% at a unit price of 10
	// THEN: 2*10 + 2*15 + 1*20 = 70

	split := generic.OvertimeSplit{Normal: 2, OT150: 2, OT200: 1}
	if got := split.Price(dec("10")); !got.Equal(dec("70")) {
		t.Errorf("price = %s, want 70", got)
	}

	leg := generic.NewLeg("truck_price", "Tipping Truck", dec("10"), split)
	flat := generic.FlatLeg("washing_price", "Container Cleaning", dec("25"))
	if got := generic.SumLegs([]generic.Leg{leg, flat}); !got.Equal(dec("95")) {
		t.Errorf("legs total = %s, want 95", got)
	}
}
