/*
misc.go - CCCS miscellaneous activity

PURPOSE:
  The CCCS activity sheet records every tonnage movement through the cold
  store with its total and overtime tonnage. All categories here use the
  flat two-tier rule (FlatSplit) on those two figures.

CATEGORIES:
  static_loader:     IOT operations with static loader tonnage, "Static Loader".
  dispatch_to_cargo: dispatch to/from cargo vessels. Three legs:
                       truck_price             "Tipping Truck"
                       stevedores_on_cargo_fee "Loading to Cargo"
                       cccs_movement_fee       "CCCS Movement in/out"
                     DARDANEL pays truck-1.0 and loading-3.0 with no CCCS fee.
  truck_to_cccs:     unloading for shore-cost clients (DARDANEL, IOT), summed
                     per (date, customer, vessel). Truck leg plus CCCS leg.
  cross_stuffing:    per-row service from the cross stuffing sheet.
  cccs_stuffing:     per-row service from the CCCS container stuffing sheet.

SEE ALSO:
  - bycatch.go: by-catch partition over the same sheet
  - bindispatch.go: bin dispatch tonnage over the same sheet
*/
package services

import (
	"context"
	"math"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/warp/port-invoice/generic"
)

// CCCSActivity is one row of the CCCS activity sheet.
type CCCSActivity struct {
	generic.Activity
	Movement     string
	Operation    string
	Storage      string
	Total        float64
	Overtime     float64
	StaticLoader float64
}

var cccsColumns = []string{"date", "movement_type", "customer", "vessel", "operation_type", "total_tonnage", "overtime_tonnage"}

func cccsNormalizer(env *generic.Env, keep func(generic.Row) bool) generic.Normalizer[CCCSActivity] {
	return generic.Normalizer[CCCSActivity]{
		Source:  TableCCCSActivity,
		Columns: cccsColumns,
		Keep:    keep,
		Parse: func(r generic.Row) (CCCSActivity, error) {
			d, err := r.Date("date")
			if err != nil {
				return CCCSActivity{}, err
			}
			total, err := r.FloatOr("total_tonnage", 0)
			if err != nil {
				return CCCSActivity{}, err
			}
			ot, err := r.FloatOr("overtime_tonnage", 0)
			if err != nil {
				return CCCSActivity{}, err
			}
			static, err := r.FloatOr("static_loader", 0)
			if err != nil {
				return CCCSActivity{}, err
			}
			return CCCSActivity{
				Activity:     env.NewActivity(r.Index, d, r.Upper("customer"), r.Upper("vessel")),
				Movement:     r.Upper("movement_type"),
				Operation:    r.String("operation_type"),
				Storage:      r.String("storage_type"),
				Total:        total,
				Overtime:     ot,
				StaticLoader: static,
			}, nil
		},
	}
}

func operationIn(set []string) func(generic.Row) bool {
	return func(r generic.Row) bool { return oneOf(r.String("operation_type"), set) }
}

// =============================================================================
// STATIC LOADER
// =============================================================================

func StaticLoaderPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryStaticLoader,
		Description: "Static loader on IOT bin dispatch",
		Sources:     []string{TableCCCSActivity},
		Build:       buildStaticLoader,
	}
}

func buildStaticLoader(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	rows, err := cccsNormalizer(env, func(r generic.Row) bool {
		return strings.Contains(r.String("operation_type"), "IOT")
	}).Normalize(env, w)
	if err != nil {
		return nil, err
	}

	var lines []generic.PricedLine
	for _, a := range rows {
		if a.StaticLoader <= 0 {
			continue
		}
		unit, err := env.Price(ServiceStaticLoader, a.Date)
		if err != nil {
			return nil, err
		}
		line := flatLine(a.Activity, CategoryStaticLoader, ServiceStaticLoader, unit, a.StaticLoader, a.Overtime)
		line.Attrs = attrs(
			"operation_type", a.Operation,
			"static_loader", fmtQty(a.StaticLoader),
			"overtime_tonnage", fmtQty(a.Overtime),
		)
		lines = append(lines, line)
	}
	return lines, nil
}

// =============================================================================
// DISPATCH TO CARGO
// =============================================================================

func DispatchToCargoPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryDispatchToCargo,
		Description: "Dispatch to and from cargo vessels: truck, stevedores, CCCS movement",
		Sources:     []string{TableCCCSActivity},
		Build:       buildDispatchToCargo,
	}
}

// DispatchLegs prices the three dispatch fees for one split.
func DispatchLegs(customer string, split generic.OvertimeSplit, truck, loading, cccs decimal.Decimal) []generic.Leg {
	if strings.EqualFold(customer, CustomerDardanel) {
		return []generic.Leg{
			generic.NewLeg("truck_price", ServiceTippingTruck, truck.Sub(dardanelTruckShown), split),
			generic.FlatLeg("cccs_movement_fee", ServiceCCCSMovement, decimal.Zero),
			generic.NewLeg("stevedores_on_cargo_fee", ServiceLoadingToCargo, loading.Sub(dardanelStevedoreShow), split),
		}
	}
	return []generic.Leg{
		generic.NewLeg("truck_price", ServiceTippingTruck, truck, split),
		generic.NewLeg("cccs_movement_fee", ServiceCCCSMovement, cccs, split),
		generic.NewLeg("stevedores_on_cargo_fee", ServiceLoadingToCargo, loading, split),
	}
}

func buildDispatchToCargo(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	rows, err := cccsNormalizer(env, operationIn(CargoDispatchServices)).Normalize(env, w)
	if err != nil {
		return nil, err
	}

	services := []string{ServiceTippingTruck, ServiceLoadingToCargo, ServiceCCCSMovement}
	lines := make([]generic.PricedLine, 0, len(rows))
	for _, a := range rows {
		prices, err := env.Catalog.PriceAsOfMulti(services, a.Date)
		if err != nil {
			return nil, err
		}
		total := math.Abs(a.Total)
		split := generic.FlatSplit(a.DayType, total, a.Overtime)
		legs := DispatchLegs(a.Customer, split, prices[ServiceTippingTruck], prices[ServiceLoadingToCargo], prices[ServiceCCCSMovement])

		line := legLine(a.Activity, CategoryDispatchToCargo, a.Operation, split, legs...)
		line.Attrs = attrs(
			"movement_type", a.Movement,
			"total_tonnage", fmtQty(total),
			"overtime_tonnage", fmtQty(a.Overtime),
		)
		lines = append(lines, line)
	}
	return lines, nil
}

// =============================================================================
// TRUCK TO CCCS
// =============================================================================

const serviceTruckToCCCS = "IPHS Truck to CCCS"

func TruckToCCCSPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryTruckToCCCS,
		Description: "IPHS truck transfers to CCCS for shore-cost clients",
		Sources:     []string{TableCCCSActivity},
		Build:       buildTruckToCCCS,
	}
}

type unloadKey struct {
	Date     civil.Date
	Customer string
	Vessel   string
}

// SumUnloading adds up tonnages per (date, customer, vessel), ordered by date.
func SumUnloading(rows []CCCSActivity) []CCCSActivity {
	index := make(map[unloadKey]int)
	var out []CCCSActivity
	for _, a := range rows {
		k := unloadKey{Date: a.Date, Customer: a.Customer, Vessel: a.Vessel}
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, a)
			continue
		}
		out[i].Total += a.Total
		out[i].Overtime += a.Overtime
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func buildTruckToCCCS(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	rows, err := cccsNormalizer(env, func(r generic.Row) bool {
		return oneOf(r.String("operation_type"), UnloadingServices) && env.Directory.Has(SetShoreCost, r.String("customer"))
	}).Normalize(env, w)
	if err != nil {
		return nil, err
	}

	services := []string{ServiceTippingTruck, ServiceCCCSMovement}
	groups := SumUnloading(rows)
	lines := make([]generic.PricedLine, 0, len(groups))
	for _, a := range groups {
		prices, err := env.Catalog.PriceAsOfMulti(services, a.Date)
		if err != nil {
			return nil, err
		}
		split := generic.FlatSplit(a.DayType, a.Total, a.Overtime)
		line := legLine(a.Activity, CategoryTruckToCCCS, serviceTruckToCCCS, split,
			generic.NewLeg("truck_price", ServiceTippingTruck, prices[ServiceTippingTruck], split),
			generic.NewLeg("cccs_incoming_fee", ServiceCCCSMovement, prices[ServiceCCCSMovement], split),
		)
		line.Attrs = attrs(
			"total_tonnage", fmtQty(a.Total),
			"overtime_tonnage", fmtQty(a.Overtime),
		)
		lines = append(lines, line)
	}
	return lines, nil
}

// =============================================================================
// CROSS STUFFING / CCCS STUFFING
// =============================================================================

// Services billed from the cross stuffing sheet.
var CrossStuffingServices = []string{"Cross Stuffing", "Unstuffing by Hand", "Unstuffing to Cargo", "Unstuffing to CCCS"}

// Services billed from the CCCS container stuffing sheet.
var CCCSStuffingServices = []string{
	"Shore Crane & Fishloader",
	"Shore Crane & Fishloader (by catch)",
	"Static Loader",
	"Container Stuffing by Hand",
	"Container Stuffing with Forklift",
}

// Stuffing is one row priced by its own service column.
type Stuffing struct {
	generic.Activity
	Service   string
	Container string
	Origin    string
	Dest      string
	Total     float64
	Overtime  float64
}

type stuffingSheet struct {
	source    string
	customer  string
	container string
	services  []string
}

func (s stuffingSheet) normalizer(env *generic.Env) generic.Normalizer[Stuffing] {
	columns := []string{"date", s.customer, "service", "total_tonnage", "overtime_tonnage"}
	return generic.Normalizer[Stuffing]{
		Source:  s.source,
		Columns: columns,
		Parse: func(r generic.Row) (Stuffing, error) {
			d, err := r.Date("date")
			if err != nil {
				return Stuffing{}, err
			}
			service, err := r.OneOf("service", s.services...)
			if err != nil {
				return Stuffing{}, err
			}
			total, err := r.FloatOr("total_tonnage", 0)
			if err != nil {
				return Stuffing{}, err
			}
			ot, err := r.FloatOr("overtime_tonnage", 0)
			if err != nil {
				return Stuffing{}, err
			}
			return Stuffing{
				Activity:  env.NewActivity(r.Index, d, r.Upper(s.customer), ""),
				Service:   service,
				Container: r.Upper(s.container),
				Origin:    r.String("origin"),
				Dest:      r.String("destination"),
				Total:     total,
				Overtime:  ot,
			}, nil
		},
	}
}

func (s stuffingSheet) build(category string) generic.BuildFunc {
	return func(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
		rows, err := s.normalizer(env).Normalize(env, w)
		if err != nil {
			return nil, err
		}
		lines := make([]generic.PricedLine, 0, len(rows))
		for _, st := range rows {
			unit, err := env.Price(st.Service, st.Date)
			if err != nil {
				return nil, err
			}
			line := flatLine(st.Activity, category, st.Service, unit, st.Total, st.Overtime)
			kv := []string{
				"total_tonnage", fmtQty(st.Total),
				"overtime_tonnage", fmtQty(st.Overtime),
			}
			if s.container != "" {
				kv = append(kv, "container_number", st.Container)
			} else {
				kv = append(kv, "origin", st.Origin, "destination", st.Dest)
			}
			line.Attrs = attrs(kv...)
			lines = append(lines, line)
		}
		return lines, nil
	}
}

var (
	crossStuffingSheet = stuffingSheet{
		source:   TableCrossStuffing,
		customer: "vessel_client",
		services: CrossStuffingServices,
	}
	cccsStuffingSheet = stuffingSheet{
		source:    TableCCCSStuffing,
		customer:  "customer",
		container: "container_number",
		services:  CCCSStuffingServices,
	}
)

func CrossStuffingPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryCrossStuffing,
		Description: "Cross stuffing and unstuffing",
		Sources:     []string{TableCrossStuffing},
		Build:       crossStuffingSheet.build(CategoryCrossStuffing),
	}
}

func CCCSStuffingPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryCCCSStuffing,
		Description: "Container stuffing at CCCS",
		Sources:     []string{TableCCCSStuffing},
		Build:       cccsStuffingSheet.build(CategoryCCCSStuffing),
	}
}
