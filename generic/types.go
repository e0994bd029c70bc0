/*
Package generic provides the core pricing and overtime-allocation engine.

PURPOSE:
  This package contains the service-agnostic types and algorithms used to
  turn raw port-logistics activity into invoice lines. Whether pricing salt
  loading, scow transfers or container PTIs, the same engine handles
  day classification, as-of price lookup, overtime allocation and the
  pipeline template.

KEY CONCEPTS IN THIS FILE (types.go):
  - Tier: A rate tier (normal 1.0, overtime 1.5, overtime 2.0)
  - OvertimeSplit: A measure partitioned into the three tiers
  - PriceEntry: One row of the time-varying price list
  - Leg: One independently priced fee of a line (truck, CCCS movement, ...)
  - PricedLine / PricedTable: The final, immutable pipeline output

DESIGN PRINCIPLES:
  1. Immutability: Lines are created once at the end of a pipeline
  2. Precision: Money uses decimal.Decimal, measures stay float64
  3. Totality: Every split sums back to its measure (within 1e-6)

USAGE:
  split := generic.OvertimeSplit{Normal: 81.818, OT150: 18.182}
  total := split.Price(decimal.NewFromFloat(2.0)) // 218.18

SEE ALSO:
  - overtime.go: Produces OvertimeSplit from time intervals
  - rates.go: Produces OvertimeSplit from flat tonnage figures
  - catalog.go: PriceEntry lookup
*/
package generic

import (
	"fmt"
	"math"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// =============================================================================
// TIER - Rate multiplier applied to a bucket
// =============================================================================

type Tier int

const (
	TierNormal Tier = iota
	Tier150
	Tier200
)

// Sheet labels for the overtime column.
const (
	LabelNormal = "normal hours"
	Label150    = "overtime 150%"
	Label200    = "overtime 200%"
)

var (
	rateNormal = decimal.NewFromFloat(1.0)
	rate150    = decimal.NewFromFloat(1.5)
	rate200    = decimal.NewFromFloat(2.0)
)

// Multiplier returns 1.0, 1.5 or 2.0.
func (t Tier) Multiplier() decimal.Decimal {
	switch t {
	case Tier150:
		return rate150
	case Tier200:
		return rate200
	default:
		return rateNormal
	}
}

// Label returns the sheet label of the tier.
func (t Tier) Label() string {
	switch t {
	case Tier150:
		return Label150
	case Tier200:
		return Label200
	default:
		return LabelNormal
	}
}

func (t Tier) String() string { return t.Label() }

// ParseTier reads an overtime label. Matching ignores case and surrounding spaces.
func ParseTier(label string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case LabelNormal, "normal", "":
		return TierNormal, nil
	case Label150, "150%", "overtime 150":
		return Tier150, nil
	case Label200, "200%", "overtime 200":
		return Tier200, nil
	}
	return TierNormal, fmt.Errorf("unknown overtime label %q", label)
}

// =============================================================================
// OVERTIME SPLIT
// =============================================================================

// SplitTolerance bounds the rounding drift between a split and its measure.
const SplitTolerance = 1e-6

// OvertimeSplit partitions a measure (hours, tonnes, units) into rate tiers.
// Degenerate is set when the allocator fell back to "fully normal".
type OvertimeSplit struct {
	Normal     float64
	OT150      float64
	OT200      float64
	Degenerate bool
}

// SingleTier puts the whole measure in one tier.
func SingleTier(t Tier, measure float64) OvertimeSplit {
	switch t {
	case Tier150:
		return OvertimeSplit{OT150: measure}
	case Tier200:
		return OvertimeSplit{OT200: measure}
	default:
		return OvertimeSplit{Normal: measure}
	}
}

// Total returns the sum of the three buckets.
func (s OvertimeSplit) Total() float64 { return s.Normal + s.OT150 + s.OT200 }

// Balanced reports whether the buckets sum to measure within SplitTolerance.
func (s OvertimeSplit) Balanced(measure float64) bool {
	return math.Abs(s.Total()-measure) <= SplitTolerance
}

// Add sums two splits bucket by bucket.
func (s OvertimeSplit) Add(o OvertimeSplit) OvertimeSplit {
	return OvertimeSplit{
		Normal:     s.Normal + o.Normal,
		OT150:      s.OT150 + o.OT150,
		OT200:      s.OT200 + o.OT200,
		Degenerate: s.Degenerate || o.Degenerate,
	}
}


// Price returns normal*unit*1.0 + ot150*unit*1.5 + ot200*unit*2.0.
func (s OvertimeSplit) Price(unit decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(s.Normal).Mul(unit).Mul(rateNormal).
		Add(decimal.NewFromFloat(s.OT150).Mul(unit).Mul(rate150)).
		Add(decimal.NewFromFloat(s.OT200).Mul(unit).Mul(rate200))
}

// =============================================================================
// PRICE ENTRY
// =============================================================================

// PriceEntry is one row of the price list. Ending is informational only:
// the next entry's Effective date implicitly closes the previous one.
type PriceEntry struct {
	Service   string
	Effective civil.Date
	Ending    *civil.Date
	Price     decimal.Decimal
}

// =============================================================================
// PRICED OUTPUT
// =============================================================================

// Leg is one independently priced fee of a multi-fee line.
type Leg struct {
	Name      string // column name, e.g. "truck_price"
	Service   string // catalog service, e.g. "Tipping Truck"
	UnitPrice decimal.Decimal
	Split     OvertimeSplit
	Total     decimal.Decimal
}

// NewLeg prices split at unit.
func NewLeg(name, service string, unit decimal.Decimal, split OvertimeSplit) Leg {
	return Leg{Name: name, Service: service, UnitPrice: unit, Split: split, Total: split.Price(unit)}
}

// FlatLeg is a leg with a fixed total and no split.
func FlatLeg(name, service string, total decimal.Decimal) Leg {
	return Leg{Name: name, Service: service, UnitPrice: total, Split: OvertimeSplit{Normal: 1}, Total: total}
}

// Attr is an ordered, pipeline-specific output column.
type Attr struct {
	Key   string
	Value string
}

// PricedLine is one invoice line. Created once at the end of a pipeline; never mutated.
type PricedLine struct {
	Category  string
	Date      civil.Date
	DayName   string
	DayType   DayType
	Customer  string
	Vessel    string
	Service   string
	Split     OvertimeSplit
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
	Legs      []Leg
	Attrs     []Attr
}

// Attr returns the value of a pipeline-specific column.
func (l PricedLine) Attr(key string) string {
	for _, a := range l.Attrs {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

// LegTotal returns the total of the named leg, zero if absent.
func (l PricedLine) LegTotal(name string) decimal.Decimal {
	for _, leg := range l.Legs {
		if leg.Name == name {
			return leg.Total
		}
	}
	return decimal.Zero
}

// SumLegs returns the total of all legs.
func SumLegs(legs []Leg) decimal.Decimal {
	total := decimal.Zero
	for _, leg := range legs {
		total = total.Add(leg.Total)
	}
	return total
}

// PricedTable is the output of one pipeline category.
// A failed category has no lines and a non-nil Err.
type PricedTable struct {
	Category string
	Lines    []PricedLine
	Warnings []string
	Err      error
}

// Failed reports whether the category produced no usable output.
func (t PricedTable) Failed() bool { return t.Err != nil }

// Total sums every line total.
func (t PricedTable) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range t.Lines {
		total = total.Add(l.Total)
	}
	return total
}

// LegNames returns the leg columns in first-seen order.
func (t PricedTable) LegNames() []string {
	return collectKeys(t.Lines, func(l PricedLine) []string {
		names := make([]string, len(l.Legs))
		for i, leg := range l.Legs {
			names[i] = leg.Name
		}
		return names
	})
}

// AttrKeys returns the attribute columns in first-seen order.
func (t PricedTable) AttrKeys() []string {
	return collectKeys(t.Lines, func(l PricedLine) []string {
		keys := make([]string, len(l.Attrs))
		for i, a := range l.Attrs {
			keys[i] = a.Key
		}
		return keys
	})
}

func collectKeys(lines []PricedLine, keys func(PricedLine) []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lines {
		for _, k := range keys(l) {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RunID string

