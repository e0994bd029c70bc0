/*
emr.go - Empty container yard (EMR): shifting, PTI, washing

CATEGORIES:
  shifting: one "Shifting" fee per move, x1.5 on Sundays and holidays.
  pti:      pre-trip inspections, three fees per inspection:
              plugin_price      "Plugin", always charged
              electricity_price set point price (-60 S Freezer, -35 Magnum,
                                -25 Standard), hours/24 + 1 units for IOT,
                                doubled past 8 hours
              shifting_price    "Shifting" on the container's first PTI, or
                                when the previous one ended more than 24h
                                earlier on the same generator
  washing:  one "Container Cleaning" fee per wash.

  Shifting and washing rows invoiced to INVALID are kept with a zero total.
*/
package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/warp/port-invoice/generic"
)

const (
	setPointStandard = "-25"
	setPointMagnum   = "-35"
	setPointSFreezer = "-60"

	// PTILongHours doubles the electricity fee when exceeded.
	PTILongHours = 8.0

	// PTIShiftingGap is the idle time after which a container is shifted again.
	PTIShiftingGap = 24 * time.Hour

	customerIOT = "IOT"
)

// EMRMove is one shifting or washing record.
type EMRMove struct {
	generic.Activity
	Container string
	InvoiceTo string
	Remarks   string
}

// Invalid reports whether the move must not be billed.
func (m EMRMove) Invalid() bool { return strings.EqualFold(m.InvoiceTo, Invalid) }

func emrNormalizer(env *generic.Env, source string) generic.Normalizer[EMRMove] {
	return generic.Normalizer[EMRMove]{
		Source:  source,
		Columns: []string{"date", "container_number", "invoice_to"},
		Parse: func(r generic.Row) (EMRMove, error) {
			d, err := r.Date("date")
			if err != nil {
				return EMRMove{}, err
			}
			invoiceTo := r.Upper("invoice_to")
			return EMRMove{
				Activity:  env.NewActivity(r.Index, d, invoiceTo, ""),
				Container: r.Upper("container_number"),
				InvoiceTo: invoiceTo,
				Remarks:   r.String("service_remarks"),
			}, nil
		},
	}
}

// =============================================================================
// SHIFTING
// =============================================================================

func ShiftingPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryShifting,
		Description: "EMR container shifting",
		Sources:     []string{TableEMRShifting},
		Build:       buildShifting,
	}
}

func buildShifting(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	rows, err := emrNormalizer(env, TableEMRShifting).Normalize(env, w)
	if err != nil {
		return nil, err
	}
	lines := make([]generic.PricedLine, 0, len(rows))
	for _, m := range rows {
		unit, err := env.Price(ServiceShifting, m.Date)
		if err != nil {
			return nil, err
		}
		lines = append(lines, emrLine(m, CategoryShifting, ServiceShifting, unit, generic.DayMultiplier(m.DayType)))
	}
	return lines, nil
}

// =============================================================================
// WASHING
// =============================================================================

func WashingPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryWashing,
		Description: "EMR container cleaning",
		Sources:     []string{TableWashing},
		Build:       buildWashing,
	}
}

func buildWashing(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	rows, err := emrNormalizer(env, TableWashing).Normalize(env, w)
	if err != nil {
		return nil, err
	}
	lines := make([]generic.PricedLine, 0, len(rows))
	for _, m := range rows {
		unit, err := env.Price(ServiceContainerCleaning, m.Date)
		if err != nil {
			return nil, err
		}
		lines = append(lines, emrLine(m, CategoryWashing, ServiceContainerCleaning, unit, generic.TierNormal))
	}
	return lines, nil
}

func emrLine(m EMRMove, category, service string, unit decimal.Decimal, tier generic.Tier) generic.PricedLine {
	line := m.Line(category, service)
	line.Attrs = attrs(
		"container_number", m.Container,
		"invoice_to", m.InvoiceTo,
		"service_remarks", m.Remarks,
	)
	if m.Invalid() {
		line.UnitPrice = decimal.Zero
		line.Total = decimal.Zero
		return line
	}
	line.Split = generic.SingleTier(tier, 1)
	line.UnitPrice = unit
	line.Total = line.Split.Price(unit)
	return line
}

// =============================================================================
// PTI
// =============================================================================

// PTI is one pre-trip inspection.
type PTI struct {
	generic.Activity
	Start        civil.DateTime
	End          civil.DateTime
	Container    string
	SetPoint     string
	Manufacturer string
	Status       string
	InvoiceTo    string
	Generator    string
}

// Hours is the inspection length.
func (p PTI) Hours() float64 { return generic.HoursBetween(p.Start, p.End) }

// ElectricityService maps the set point to its price list entry, empty for
// unknown set points.
func ElectricityService(setPoint string) string {
	switch strings.TrimSpace(setPoint) {
	case setPointSFreezer:
		return ServicePTISFreezer
	case setPointMagnum:
		return ServicePTIMagnum
	case setPointStandard:
		return ServicePTIStandard
	default:
		return ""
	}
}

// electricityQuantity is the number of electricity units billed.
func (p PTI) electricityQuantity() float64 {
	qty := 1.0
	if strings.EqualFold(p.InvoiceTo, customerIOT) {
		qty = p.Hours()/24 + 1
	}
	if p.Hours() > PTILongHours {
		qty *= 2
	}
	return qty
}

// ShiftingDue marks, per inspection, whether the shifting fee applies.
// ptis must be sorted by container then start.
func ShiftingDue(ptis []PTI) []bool {
	due := make([]bool, len(ptis))
	for i, p := range ptis {
		if i == 0 || ptis[i-1].Container != p.Container {
			due[i] = true
			continue
		}
		prev := ptis[i-1]
		gap := p.Start.In(time.UTC).Sub(prev.End.In(time.UTC))
		due[i] = gap > PTIShiftingGap && prev.Generator == p.Generator
	}
	return due
}

func PTIPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryPTI,
		Description: "Pre-trip inspections: plugin, electricity and shifting",
		Sources:     []string{TablePTI},
		Build:       buildPTI,
	}
}

func buildPTI(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	rows, err := generic.Normalizer[PTI]{
		Source: TablePTI,
		Columns: []string{"datetime_start", "datetime_end", "container_number", "set_point",
			"status", "invoice_to", "plugged_on"},
		Parse: func(r generic.Row) (PTI, error) {
			start, err := r.DateTime("datetime_start")
			if err != nil {
				return PTI{}, err
			}
			end, err := r.DateTime("datetime_end")
			if err != nil {
				return PTI{}, err
			}
			status, err := r.OneOf("status", "PASSED", "FAILED")
			if err != nil {
				return PTI{}, err
			}
			invoiceTo := r.Upper("invoice_to")
			return PTI{
				Activity:     env.NewActivity(r.Index, start.Date, invoiceTo, ""),
				Start:        start,
				End:          end,
				Container:    r.Upper("container_number"),
				SetPoint:     r.String("set_point"),
				Manufacturer: r.String("unit_manufacturer"),
				Status:       status,
				InvoiceTo:    invoiceTo,
				Generator:    r.String("plugged_on"),
			}, nil
		},
	}.Normalize(env, w)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Container != rows[j].Container {
			return rows[i].Container < rows[j].Container
		}
		return rows[i].Start.Before(rows[j].Start)
	})
	due := ShiftingDue(rows)

	lines := make([]generic.PricedLine, 0, len(rows))
	for i, p := range rows {
		prices, err := env.Catalog.PriceAsOfMulti([]string{ServicePlugin, ServiceShifting}, p.Date)
		if err != nil {
			return nil, err
		}

		plugin := generic.NewLeg("plugin_price", ServicePlugin, prices[ServicePlugin], generic.SingleTier(generic.TierNormal, 1))

		electricity := generic.FlatLeg("electricity_price", "", decimal.Zero)
		if service := ElectricityService(p.SetPoint); service != "" {
			unit, err := env.Price(service, p.Date)
			if err != nil {
				return nil, err
			}
			electricity = generic.NewLeg("electricity_price", service, unit, generic.SingleTier(generic.TierNormal, p.electricityQuantity()))
		}

		shifting := generic.FlatLeg("shifting_price", ServiceShifting, decimal.Zero)
		if due[i] {
			shifting = generic.NewLeg("shifting_price", ServiceShifting, prices[ServiceShifting], generic.SingleTier(generic.TierNormal, 1))
		}

		line := legLine(p.Activity, CategoryPTI, "PTI", generic.SingleTier(generic.TierNormal, 1), plugin, electricity, shifting)
		line.Attrs = attrs(
			"container_number", p.Container,
			"datetime_start", generic.FormatDateTime(p.Start),
			"datetime_end", generic.FormatDateTime(p.End),
			"hours", fmtQty(p.Hours()),
			"set_point", p.SetPoint,
			"status", p.Status,
			"generator", p.Generator,
		)
		lines = append(lines, line)
	}
	return lines, nil
}
