/*
shore.go - Shore handling: salt loading, forklift salt, bin tipping

PURPOSE:
  Prices quay-side handling recorded on the shore handling workbook.

CATEGORIES:
  salt:          tonnage split by the Allocator over [start_time, end_time],
                 priced per operation ("Loading (Quay to Ship)" or
                 "Loading @ Zone 14").
  forklift_salt: the same rows without Zone 14, reported as forklift hours
                 per bucket. Forklift time is not billed separately, so
                 every line totals zero.
  bin_tipping:   flat rule over (Tonnage Tipped, Overtime) at
                 "CCCS Movement in/out". Rows with nothing tipped are dropped.

EXAMPLE:
  Tuesday 08:00-19:00, 100 t at 2.0:
    normal 81.818 t, 150% 18.182 t -> 163.636 + 54.545 = 218.18
*/
package services

import (
	"context"

	"github.com/warp/port-invoice/generic"
)

// =============================================================================
// SALT
// =============================================================================

// SaltActivity is one salt loading shift.
type SaltActivity struct {
	generic.Activity
	Interval      generic.Interval
	OperationType string
	Tonnage       float64
}

func saltNormalizer(env *generic.Env) generic.Normalizer[SaltActivity] {
	return generic.Normalizer[SaltActivity]{
		Source:  TableSalt,
		Columns: []string{"date", "vessel", "customer", "start_time", "end_time", "operation_type", "tonnage"},
		Parse: func(r generic.Row) (SaltActivity, error) {
			d, err := r.Date("date")
			if err != nil {
				return SaltActivity{}, err
			}
			start, err := r.Clock("start_time")
			if err != nil {
				return SaltActivity{}, err
			}
			end, err := r.Clock("end_time")
			if err != nil {
				return SaltActivity{}, err
			}
			tonnage, err := r.Float("tonnage")
			if err != nil {
				return SaltActivity{}, err
			}
			a := env.NewActivity(r.Index, d, r.Upper("customer"), r.Upper("vessel"))
			return SaltActivity{
				Activity:      a,
				Interval:      generic.Interval{Date: d, Start: start, End: end, DayType: a.DayType},
				OperationType: r.String("operation_type"),
				Tonnage:       tonnage,
			}, nil
		},
	}
}

// saltService maps the operation to its price list entry.
func saltService(operation string) string {
	if oneOf(operation, []string{ServiceSaltZone14}) {
		return ServiceSaltZone14
	}
	return ServiceSaltQuay
}

func SaltPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategorySalt,
		Description: "Salt loading, tonnage allocated over the loading shift",
		Sources:     []string{TableSalt},
		Build:       buildSalt,
	}
}

func buildSalt(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	rows, err := saltNormalizer(env).Normalize(env, w)
	if err != nil {
		return nil, err
	}

	lines := make([]generic.PricedLine, 0, len(rows))
	for _, s := range rows {
		service := saltService(s.OperationType)
		unit, err := env.Price(service, s.Date)
		if err != nil {
			return nil, err
		}
		split := env.Allocator.Allocate(s.Interval, s.Tonnage)
		w.Interval(s.Interval, split)

		line := s.Line(CategorySalt, service)
		line.Split = split
		line.UnitPrice = unit
		line.Total = split.Price(unit)
		line.Attrs = attrs(
			"operation_type", s.OperationType,
			"start_time", generic.FormatClock(s.Interval.Start),
			"end_time", generic.FormatClock(s.Interval.End),
			"tonnage", fmtQty(s.Tonnage),
		)
		lines = append(lines, line)
	}
	return lines, nil
}

// =============================================================================
// FORKLIFT SALT
// =============================================================================

func ForkliftSaltPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryForkliftSalt,
		Description: "Forklift hours on salt loading, per overtime bucket",
		Sources:     []string{TableSalt},
		Build:       buildForkliftSalt,
	}
}

func buildForkliftSalt(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	n := saltNormalizer(env)
	n.Keep = func(r generic.Row) bool {
		return !oneOf(r.String("operation_type"), []string{ServiceSaltZone14})
	}
	rows, err := n.Normalize(env, w)
	if err != nil {
		return nil, err
	}

	lines := make([]generic.PricedLine, 0, len(rows))
	for _, s := range rows {
		hours := env.Allocator.Hours(s.Interval)
		w.Interval(s.Interval, hours)

		line := s.Line(CategoryForkliftSalt, s.OperationType)
		line.Split = hours
		line.Attrs = attrs(
			"start_time", generic.FormatClock(s.Interval.Start),
			"end_time", generic.FormatClock(s.Interval.End),
			"total_hours", fmtQty(hours.Total()),
		)
		lines = append(lines, line)
	}
	return lines, nil
}

// =============================================================================
// BIN TIPPING
// =============================================================================

// BinTipping is one day of IOT bins tipped at CCCS.
type BinTipping struct {
	generic.Activity
	MovementType string
	Scows        int
	Tonnage      float64
	Overtime     float64
}

const serviceBinTippingLabel = "IPHS Bin Tipping"

func BinTippingPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryBinTipping,
		Description: "Bin tipping, flat overtime rule on tonnage tipped",
		Sources:     []string{TableBinTipping},
		Build:       buildBinTipping,
	}
}

func buildBinTipping(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	rows, err := generic.Normalizer[BinTipping]{
		Source:  TableBinTipping,
		Columns: []string{"Date", "Customer", "movement_type", "Tonnage Tipped", "Overtime"},
		Parse: func(r generic.Row) (BinTipping, error) {
			d, err := r.Date("Date")
			if err != nil {
				return BinTipping{}, err
			}
			movement, err := r.OneOf("movement_type", MovementIn, MovementOut)
			if err != nil {
				return BinTipping{}, err
			}
			tonnage, err := r.FloatOr("Tonnage Tipped", 0)
			if err != nil {
				return BinTipping{}, err
			}
			overtime, err := r.FloatOr("Overtime", 0)
			if err != nil {
				return BinTipping{}, err
			}
			scows, err := r.Int("IOT Scows (Tipping)")
			if err != nil {
				return BinTipping{}, err
			}
			return BinTipping{
				Activity:     env.NewActivity(r.Index, d, r.Upper("Customer"), ""),
				MovementType: movement,
				Scows:        scows,
				Tonnage:      tonnage,
				Overtime:     overtime,
			}, nil
		},
	}.Normalize(env, w)
	if err != nil {
		return nil, err
	}

	var lines []generic.PricedLine
	for _, b := range rows {
		if b.Tonnage <= 0 {
			continue
		}
		unit, err := env.Price(ServiceCCCSMovement, b.Date)
		if err != nil {
			return nil, err
		}
		line := flatLine(b.Activity, CategoryBinTipping, serviceBinTippingLabel, unit, b.Tonnage, b.Overtime)
		line.Attrs = attrs(
			"movement_type", b.MovementType,
			"number_of_scows_tipped", fmtInt(b.Scows),
			"tonnage_tipped", fmtQty(b.Tonnage),
			"overtime", fmtQty(b.Overtime),
		)
		lines = append(lines, line)
	}
	return lines, nil
}
