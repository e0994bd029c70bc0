/*
bindispatch.go - Scow transfers between IOT and CCCS

PURPOSE:
  Scow movements are logged one trip per row on the transport workbook.
  Each trip is labelled by the time the scow left (TierAt on time_out),
  then trips are grouped per (date, customer, movement, tier).

CATEGORIES:
  full_scows:  groups of Full trips, joined to the bin dispatch tonnage of
               the CCCS activity sheet on (date, customer, movement).
               Normal-tier groups (and 150% groups on special days) carry the
               normal tonnage, other groups the overtime tonnage.
               Price = tonnage x tier x "CCCS Movement in/out".
  empty_scows: groups of Empty trips. Price = scows x tier x
               "CCCS Movement in/out".

MOVEMENTS:
  Delivery is OUT of CCCS, Collection is IN, matching the bin dispatch
  sheet's point of view.
*/
package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/warp/port-invoice/generic"
)

// ScowTrip is one scow movement.
type ScowTrip struct {
	generic.Activity
	Movement string // IN or OUT
	Status   string
	TimeOut  civil.Time
	TimeIn   civil.Time
	Scows    int
}

// ScowGroup aggregates the trips of one (date, customer, movement, tier).
type ScowGroup struct {
	generic.Activity
	Movement string
	Tier     generic.Tier
	Start    civil.Time // earliest time_out
	End      civil.Time // latest time_in
	Scows    int
}

type scowKey struct {
	Date     civil.Date
	Customer string
	Movement string
	Tier     generic.Tier
}

func scowNormalizer(env *generic.Env, status string) generic.Normalizer[ScowTrip] {
	return generic.Normalizer[ScowTrip]{
		Source:  TableScowTransfer,
		Columns: []string{"date", "customer", "movement_type", "time_out", "time_in", "status", "num_of_scows"},
		Keep: func(r generic.Row) bool {
			return oneOf(r.String("status"), []string{status})
		},
		Parse: func(r generic.Row) (ScowTrip, error) {
			d, err := r.Date("date")
			if err != nil {
				return ScowTrip{}, err
			}
			movement, err := r.OneOf("movement_type", MovementCollection, MovementDelivery)
			if err != nil {
				return ScowTrip{}, err
			}
			out, err := r.Clock("time_out")
			if err != nil {
				return ScowTrip{}, err
			}
			in, err := r.Clock("time_in")
			if err != nil {
				return ScowTrip{}, err
			}
			scows, err := r.Int("num_of_scows")
			if err != nil {
				return ScowTrip{}, err
			}
			return ScowTrip{
				Activity: env.NewActivity(r.Index, d, r.Upper("customer"), ""),
				Movement: cccsMovement(movement),
				Status:   status,
				TimeOut:  out,
				TimeIn:   in,
				Scows:    scows,
			}, nil
		},
	}
}

func cccsMovement(transport string) string {
	if transport == MovementDelivery {
		return MovementOut
	}
	return MovementIn
}

// GroupScowTrips labels trips with TierAt(time_out) and aggregates them.
// Groups are ordered by date, then first appearance.
func GroupScowTrips(c generic.Cutoffs, trips []ScowTrip) []ScowGroup {
	index := make(map[scowKey]int)
	var groups []ScowGroup
	for _, t := range trips {
		tier := c.TierAt(t.DayType, t.TimeOut)
		k := scowKey{Date: t.Date, Customer: t.Customer, Movement: t.Movement, Tier: tier}
		i, ok := index[k]
		if !ok {
			index[k] = len(groups)
			groups = append(groups, ScowGroup{
				Activity: t.Activity,
				Movement: t.Movement,
				Tier:     tier,
				Start:    t.TimeOut,
				End:      t.TimeIn,
				Scows:    t.Scows,
			})
			continue
		}
		g := &groups[i]
		if generic.ClockAfter(g.Start, t.TimeOut) {
			g.Start = t.TimeOut
		}
		if generic.ClockAfter(t.TimeIn, g.End) {
			g.End = t.TimeIn
		}
		g.Scows += t.Scows
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Date.Before(groups[j].Date) })
	return groups
}

// =============================================================================
// BIN DISPATCH TONNAGE
// =============================================================================

// BinDispatch is the tonnage dispatched to or from IOT on one day.
type BinDispatch struct {
	Total    float64
	Overtime float64
}

// Normal returns the tonnage handled in normal hours.
func (b BinDispatch) Normal() float64 { return b.Total - b.Overtime }

type dispatchKey struct {
	Date     civil.Date
	Customer string
	Movement string
}

func loadBinDispatch(env *generic.Env, w *generic.Warnings) (map[dispatchKey]BinDispatch, error) {
	type row struct {
		key dispatchKey
		BinDispatch
	}
	rows, err := generic.Normalizer[row]{
		Source:  TableCCCSActivity,
		Columns: []string{"date", "movement_type", "customer", "operation_type", "total_tonnage", "overtime_tonnage"},
		Keep: func(r generic.Row) bool {
			return oneOf(r.String("operation_type"), BinDispatchServices)
		},
		Parse: func(r generic.Row) (row, error) {
			d, err := r.Date("date")
			if err != nil {
				return row{}, err
			}
			movement, err := r.OneOf("movement_type", MovementIn, MovementOut)
			if err != nil {
				return row{}, err
			}
			total, err := r.Float("total_tonnage")
			if err != nil {
				return row{}, err
			}
			ot, err := r.FloatOr("overtime_tonnage", 0)
			if err != nil {
				return row{}, err
			}
			return row{
				key:         dispatchKey{Date: d, Customer: r.Upper("customer"), Movement: movement},
				BinDispatch: BinDispatch{Total: math.Abs(total), Overtime: ot},
			}, nil
		},
	}.Normalize(env, w)
	if err != nil {
		return nil, err
	}

	out := make(map[dispatchKey]BinDispatch, len(rows))
	for _, r := range rows {
		acc := out[r.key]
		acc.Total += r.Total
		acc.Overtime += r.Overtime
		out[r.key] = acc
	}
	return out, nil
}

// =============================================================================
// FULL SCOWS
// =============================================================================

func FullScowsPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryFullScows,
		Description: "Full scow transfers priced on bin dispatch tonnage",
		Sources:     []string{TableScowTransfer, TableCCCSActivity},
		Build:       buildFullScows,
	}
}

// scowTonnage picks the bin dispatch share billed by a group.
func scowTonnage(g ScowGroup, b BinDispatch) float64 {
	if g.Tier == generic.TierNormal || (g.DayType.IsSpecial() && g.Tier == generic.Tier150) {
		return b.Normal()
	}
	return b.Overtime
}

func buildFullScows(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	trips, err := scowNormalizer(env, StatusFull).Normalize(env, w)
	if err != nil {
		return nil, err
	}
	dispatch, err := loadBinDispatch(env, w)
	if err != nil {
		return nil, err
	}

	groups := GroupScowTrips(env.Allocator.Cutoffs, trips)
	lines := make([]generic.PricedLine, 0, len(groups))
	for _, g := range groups {
		unit, err := env.Price(ServiceCCCSMovement, g.Date)
		if err != nil {
			return nil, err
		}
		b, ok := dispatch[dispatchKey{Date: g.Date, Customer: g.Customer, Movement: g.Movement}]
		if !ok {
			w.Add(fmt.Errorf("full scows %s %s %s: no bin dispatch tonnage", generic.FormatDate(g.Date), g.Customer, g.Movement))
		}
		tonnage := scowTonnage(g, b)
		lines = append(lines, scowLine(g, CategoryFullScows, scowLabel(g.Movement, StatusFull), unit, tonnage))
	}
	return lines, nil
}

// =============================================================================
// EMPTY SCOWS
// =============================================================================

func EmptyScowsPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryEmptyScows,
		Description: "Empty scow transfers priced per scow",
		Sources:     []string{TableScowTransfer},
		Build:       buildEmptyScows,
	}
}

func buildEmptyScows(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	trips, err := scowNormalizer(env, StatusEmpty).Normalize(env, w)
	if err != nil {
		return nil, err
	}

	groups := GroupScowTrips(env.Allocator.Cutoffs, trips)
	lines := make([]generic.PricedLine, 0, len(groups))
	for _, g := range groups {
		unit, err := env.Price(ServiceCCCSMovement, g.Date)
		if err != nil {
			return nil, err
		}
		lines = append(lines, scowLine(g, CategoryEmptyScows, scowLabel(g.Movement, StatusEmpty), unit, float64(g.Scows)))
	}
	return lines, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func scowLabel(movement, status string) string {
	if movement == MovementOut {
		return fmt.Sprintf("IPHS Delivery of %s Scows to IOT", status)
	}
	return fmt.Sprintf("IPHS Collection of %s Scows from IOT", status)
}

func scowLine(g ScowGroup, category, label string, unit decimal.Decimal, measure float64) generic.PricedLine {
	split := generic.SingleTier(g.Tier, measure)
	line := g.Line(category, label)
	line.Split = split
	line.UnitPrice = unit
	line.Total = split.Price(unit)
	line.Attrs = attrs(
		"movement_type", g.Movement,
		"overtime", g.Tier.Label(),
		"start_time", generic.FormatClock(g.Start),
		"end_time", generic.FormatClock(g.End),
		"num_of_scows", fmtInt(g.Scows),
		"quantity", fmtQty(measure),
	)
	return line
}
