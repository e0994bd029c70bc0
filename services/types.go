// Package services implements the port-logistics pricing pipelines.
// Each file holds one service family built on the generic pipeline template.
package services

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/port-invoice/generic"
)

// =============================================================================
// SOURCE TABLES
// =============================================================================

// Source table names, as exposed by the ingestion layer.
const (
	TableSalt              = "salt"
	TableBinTipping        = "bin_tipping"
	TableCCCSActivity      = "cccs_activity"
	TableScowTransfer      = "scow_transfer"
	TableContainerTransfer = "container_transfer"
	TableEMRShifting       = "emr_shifting"
	TablePTI               = "pti"
	TableWashing           = "container_washing"
	TableCrossStuffing     = "cross_stuffing"
	TableCCCSStuffing      = "cccs_container_stuffing"
	TableByCatchTransfer   = "by_catch_transfer"
	TableWellToWell        = "well_to_well"
	TableNetList           = "net_list"
	TableContainerPlugin   = "container_plugin"
	TableLinerPallet       = "liner_pallet"
	TablePrice             = "price"
	TableClient            = "client"
)

// =============================================================================
// CATEGORIES
// =============================================================================

const (
	CategorySalt            = "salt"
	CategoryForkliftSalt    = "forklift_salt"
	CategoryBinTipping      = "bin_tipping"
	CategoryFullScows       = "full_scows"
	CategoryEmptyScows      = "empty_scows"
	CategoryHaulage         = "haulage"
	CategoryShifting        = "shifting"
	CategoryPTI             = "pti"
	CategoryWashing         = "washing"
	CategoryStaticLoader    = "static_loader"
	CategoryDispatchToCargo = "dispatch_to_cargo"
	CategoryTruckToCCCS     = "truck_to_cccs"
	CategoryCrossStuffing   = "cross_stuffing"
	CategoryCCCSStuffing    = "cccs_stuffing"
	CategoryByCatch         = "by_catch"
	CategoryWellToWell      = "well_to_well"
	CategoryNetList         = "net_list"
	CategoryStuffingCOA     = "stuffing_coa"
	CategoryLinerPallet     = "liner_pallet"
)

// =============================================================================
// CATALOG SERVICES
// =============================================================================

const (
	ServiceSaltQuay          = "Loading (Quay to Ship)"
	ServiceSaltZone14        = "Loading @ Zone 14"
	ServiceCCCSMovement      = "CCCS Movement in/out"
	ServiceTippingTruck      = "Tipping Truck"
	ServiceLoadingToCargo    = "Loading to Cargo"
	ServiceStaticLoader      = "Static Loader"
	ServiceCCCSByCatch       = "CCCS (By-Catch)"
	ServiceByCatchTransfer   = "Transfer of by-catch"
	ServiceShifting          = "Shifting"
	ServiceHaulageFEU        = "Haulage FEU"
	ServiceHaulageTEU        = "Haulage TEU"
	ServicePlugin            = "Plugin"
	ServicePTIStandard       = "PTI Standard"
	ServicePTIMagnum         = "PTI Magnum"
	ServicePTISFreezer       = "PTI S Freezer"
	ServiceContainerCleaning = "Container Cleaning"
	ServiceWellToWell        = "Well to Well Transfer"
	ServiceMonitoring        = "Monitoring"
	ServiceElecStandard      = "Electricity Price Standard"
	ServiceElecMagnum        = "Electricity Price Magnum"
	ServiceElecSFreezer      = "Electricity Price S Freezer"
	ServicePallets           = "Pallets"
	ServicePalletsIOT        = "Pallets(+ Wedges) Usage"
	ServiceLiner             = "Plastic Liner Installation"
)

// =============================================================================
// CLOSED SETS
// =============================================================================

const (
	MovementIn  = "IN"
	MovementOut = "OUT"

	MovementCollection = "Collection"
	MovementDelivery   = "Delivery"
	MovementShifting   = "Shifting"

	StatusFull  = "Full"
	StatusEmpty = "Empty"

	StorageBrine = "Brine"
	StorageDry   = "Dry"

	// Invalid marks rows that must not be billed.
	Invalid = "INVALID"
)

// Operation types of the CCCS activity sheet.
var (
	UnloadingServices     = []string{"Sorting from Unloading", "Unsorted from Unloading"}
	BinDispatchServices   = []string{"Bin Dispatch to IOT", "Bin Dispatch from IOT"}
	CargoDispatchServices = []string{"Dispatch to Cargo Vessel", "Dispatch from Cargo Vessel"}
)

// Directory sets built from the client table.
const (
	SetPurseiner    = "purseiner"
	SetShipOwner    = "ship_owner"
	SetCargo        = "cargo"
	SetAgent        = "agent"
	SetByCatch      = "bycatch"
	SetShippingLine = "shipping_line"
	SetShoreCost    = "shore_cost"
)

// Customer that gets the dispatch-to-cargo discount and no CCCS fee.
const CustomerDardanel = "DARDANEL"

// DardanelDiscount is taken off the combined dispatch price. It is shown
// as 1.0 off the truck fee and 3.0 off the stevedore fee.
var (
	DardanelDiscount      = decimal.NewFromFloat(4.0)
	dardanelTruckShown    = decimal.NewFromFloat(1.0)
	dardanelStevedoreShow = decimal.NewFromFloat(3.0)
)

// =============================================================================
// REGISTRATION
// =============================================================================

// Pipelines returns every pipeline of the package.
func Pipelines() []generic.Pipeline {
	return []generic.Pipeline{
		SaltPipeline(),
		ForkliftSaltPipeline(),
		BinTippingPipeline(),
		FullScowsPipeline(),
		EmptyScowsPipeline(),
		HaulagePipeline(),
		ShiftingPipeline(),
		PTIPipeline(),
		WashingPipeline(),
		StaticLoaderPipeline(),
		DispatchToCargoPipeline(),
		TruckToCCCSPipeline(),
		CrossStuffingPipeline(),
		CCCSStuffingPipeline(),
		ByCatchPipeline(),
		WellToWellPipeline(),
		NetListPipeline(),
		StuffingCOAPipeline(),
		LinerPalletPipeline(),
	}
}

// Register all pipelines with the generic registry
func init() {
	for _, p := range Pipelines() {
		generic.RegisterPipeline(p)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}

// flatLine prices (total, overtime) with the two-tier rule.
func flatLine(a generic.Activity, category, service string, unit decimal.Decimal, total, overtime float64) generic.PricedLine {
	split := generic.FlatSplit(a.DayType, total, overtime)
	line := a.Line(category, service)
	line.Split = split
	line.UnitPrice = unit
	line.Total = split.Price(unit)
	return line
}

// legLine builds a multi-fee line whose total is the sum of its legs.
func legLine(a generic.Activity, category, service string, split generic.OvertimeSplit, legs ...generic.Leg) generic.PricedLine {
	line := a.Line(category, service)
	line.Split = split
	line.Legs = legs
	line.Total = generic.SumLegs(legs)
	if len(legs) > 0 {
		unit := decimal.Zero
		for _, l := range legs {
			unit = unit.Add(l.UnitPrice)
		}
		line.UnitPrice = unit
	}
	return line
}

func attrs(kv ...string) []generic.Attr {
	out := make([]generic.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, generic.Attr{Key: kv[i], Value: kv[i+1]})
	}
	return out
}

func fmtQty(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}

func fmtInt(n int) string { return strconv.Itoa(n) }
