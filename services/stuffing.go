/*
stuffing.go - Container stuffing activity (COA), pallets and liners

CATEGORIES:
  stuffing_coa: one line per container on the plugin sheet.
                  plugin_price      "Plugin", free for direct transfers and
                                    exchanges of hands
                  monitoring_price  "Monitoring", free for direct transfers
                                    and containers still on plug
                  electricity_price set point price x days on plug
  liner_pallet: "Pallets(+ Wedges) Usage" for IOT pallets, "Pallets" for
                other lines, "Plastic Liner Installation" for CMA CGM liners.

DAYS ON PLUG:
  Direct, On Plug, Plugin Only   0
  For Completion                 date_out - date_plugged
  otherwise                      date_out - date_plugged + 1
*/
package services

import (
	"context"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/warp/port-invoice/generic"
)

const (
	locationOnPlug        = "On Plug"
	locationForCompletion = "For Completion"
	locationPluginOnly    = "Plugin Only"

	shippingLineCMACGM = "CMA CGM"
)

// PluggedContainer is one row of the container plugin sheet.
type PluggedContainer struct {
	generic.Activity
	Client       string
	Container    string
	Operation    string
	ShippingLine string
	SetPoint     string
	Location     string
	DateOut      civil.Date
	HasDateOut   bool
}

// Direct reports a direct transfer: nothing stays plugged at the yard.
func (c PluggedContainer) Direct() bool { return strings.Contains(c.Operation, "Direct") }

// Exchange reports an exchange of hands.
func (c PluggedContainer) Exchange() bool { return strings.Contains(c.Operation, "Exchange") }

// DaysOnPlug returns the number of electricity days billed.
func (c PluggedContainer) DaysOnPlug() int {
	switch {
	case c.Direct(), c.Location == locationOnPlug, c.Location == locationPluginOnly:
		return 0
	case !c.HasDateOut:
		return 0
	case c.Location == locationForCompletion:
		return c.DateOut.DaysSince(c.Date)
	default:
		return c.DateOut.DaysSince(c.Date) + 1
	}
}

// FreePlugin reports whether the plugin fee is waived.
func (c PluggedContainer) FreePlugin() bool { return c.Direct() || c.Exchange() }

// FreeMonitoring reports whether the monitoring fee is waived.
func (c PluggedContainer) FreeMonitoring() bool {
	switch c.Location {
	case locationOnPlug, locationForCompletion, locationPluginOnly:
		return true
	}
	return c.Direct()
}

// ElectricityPlugService maps the set point to its daily electricity price.
func ElectricityPlugService(setPoint string) string {
	switch strings.TrimSpace(setPoint) {
	case setPointSFreezer:
		return ServiceElecSFreezer
	case setPointMagnum:
		return ServiceElecMagnum
	default:
		return ServiceElecStandard
	}
}

// StuffingKind names the net list service of a stuffing operation, empty
// when the operation is not a stuffing one.
func StuffingKind(operation string) string {
	switch {
	case strings.Contains(operation, "CCCS"):
		return ""
	case strings.Contains(operation, "Full"):
		return "Full OSS"
	case strings.Contains(operation, "Basic"):
		return "Basic OSS"
	case strings.Contains(operation, "Stuffing"):
		return kindContainerStuffing
	default:
		return ""
	}
}

func plugNormalizer(env *generic.Env) generic.Normalizer[PluggedContainer] {
	return generic.Normalizer[PluggedContainer]{
		Source:  TableContainerPlugin,
		Columns: []string{"vessel_client", "customer", "date_plugged", "container_number", "operation_type", "set_point", "location"},
		Parse: func(r generic.Row) (PluggedContainer, error) {
			plugged, err := r.Date("date_plugged")
			if err != nil {
				return PluggedContainer{}, err
			}
			c := PluggedContainer{
				Activity:     env.NewActivity(r.Index, plugged, r.Upper("customer"), r.Upper("vessel_client")),
				Client:       r.Upper("vessel_client"),
				Container:    r.Upper("container_number"),
				Operation:    r.String("operation_type"),
				ShippingLine: r.Upper("shipping_line"),
				SetPoint:     r.String("set_point"),
				Location:     r.String("location"),
			}
			if r.String("date_out") != "" {
				if c.DateOut, err = r.Date("date_out"); err != nil {
					return PluggedContainer{}, err
				}
				c.HasDateOut = true
			}
			return c, nil
		},
	}
}

// =============================================================================
// STUFFING COA
// =============================================================================

func StuffingCOAPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryStuffingCOA,
		Description: "Container plugin, monitoring and electricity",
		Sources:     []string{TableContainerPlugin},
		Build:       buildStuffingCOA,
	}
}

func buildStuffingCOA(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	rows, err := plugNormalizer(env).Normalize(env, w)
	if err != nil {
		return nil, err
	}

	lines := make([]generic.PricedLine, 0, len(rows))
	for _, c := range rows {
		elecService := ElectricityPlugService(c.SetPoint)
		prices, err := env.Catalog.PriceAsOfMulti([]string{ServicePlugin, ServiceMonitoring, elecService}, c.Date)
		if err != nil {
			return nil, err
		}
		one := generic.SingleTier(generic.TierNormal, 1)

		plugin := generic.NewLeg("plugin_price", ServicePlugin, prices[ServicePlugin], one)
		if c.FreePlugin() {
			plugin = generic.FlatLeg("plugin_price", ServicePlugin, decimal.Zero)
		}
		monitoring := generic.NewLeg("monitoring_price", ServiceMonitoring, prices[ServiceMonitoring], one)
		if c.FreeMonitoring() {
			monitoring = generic.FlatLeg("monitoring_price", ServiceMonitoring, decimal.Zero)
		}
		days := c.DaysOnPlug()
		electricity := generic.NewLeg("total_electricity", elecService, prices[elecService],
			generic.SingleTier(generic.TierNormal, float64(days)))
		if c.Location == locationPluginOnly {
			electricity = generic.FlatLeg("total_electricity", elecService, decimal.Zero)
		}

		line := legLine(c.Activity, CategoryStuffingCOA, c.Operation, one, plugin, monitoring, electricity)
		line.Attrs = attrs(
			"container_number", c.Container,
			"shipping_line", c.ShippingLine,
			"set_point", c.SetPoint,
			"location", c.Location,
			"days_on_plug", fmtInt(days),
		)
		lines = append(lines, line)
	}
	return lines, nil
}

// =============================================================================
// LINER & PALLET
// =============================================================================

// LinerPallet is one pallet and/or liner installation.
type LinerPallet struct {
	generic.Activity
	Container    string
	ShippingLine string
	AssignedTo   string
	Remarks      string
}

// PalletService returns the pallet price entry, empty when no pallet was used.
func (l LinerPallet) PalletService() string {
	if !strings.Contains(l.Remarks, "Pallet") {
		return ""
	}
	if strings.EqualFold(l.ShippingLine, customerIOT) {
		return ServicePalletsIOT
	}
	return ServicePallets
}

// LinerService returns the liner price entry, empty when the liner is not billed.
func (l LinerPallet) LinerService() string {
	if strings.Contains(l.Remarks, "Liner") && strings.EqualFold(l.ShippingLine, shippingLineCMACGM) {
		return ServiceLiner
	}
	return ""
}

func LinerPalletPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryLinerPallet,
		Description: "Pallet usage and plastic liner installation",
		Sources:     []string{TableLinerPallet},
		Build:       buildLinerPallet,
	}
}

func buildLinerPallet(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	rows, err := generic.Normalizer[LinerPallet]{
		Source:  TableLinerPallet,
		Columns: []string{"date", "container_number", "shipping_line", "remarks"},
		Parse: func(r generic.Row) (LinerPallet, error) {
			d, err := r.Date("date")
			if err != nil {
				return LinerPallet{}, err
			}
			remarks, err := r.OneOf("remarks", "Pallet", "Liner & Pallet", "Liner")
			if err != nil {
				return LinerPallet{}, err
			}
			line := r.Upper("shipping_line")
			return LinerPallet{
				Activity:     env.NewActivity(r.Index, d, line, ""),
				Container:    r.Upper("container_number"),
				ShippingLine: line,
				AssignedTo:   r.Upper("assigned_to"),
				Remarks:      remarks,
			}, nil
		},
	}.Normalize(env, w)
	if err != nil {
		return nil, err
	}

	lines := make([]generic.PricedLine, 0, len(rows))
	for _, l := range rows {
		pallet, err := optionalLeg(env, "pallet_price", l.PalletService(), l.Date)
		if err != nil {
			return nil, err
		}
		liner, err := optionalLeg(env, "liner_price", l.LinerService(), l.Date)
		if err != nil {
			return nil, err
		}
		line := legLine(l.Activity, CategoryLinerPallet, l.Remarks, generic.SingleTier(generic.TierNormal, 1), pallet, liner)
		line.Attrs = attrs(
			"container_number", l.Container,
			"assigned_to", l.AssignedTo,
		)
		lines = append(lines, line)
	}
	return lines, nil
}

// optionalLeg prices one unit of service, or a zero leg when service is empty.
func optionalLeg(env *generic.Env, name, service string, d civil.Date) (generic.Leg, error) {
	if service == "" {
		return generic.FlatLeg(name, "", decimal.Zero), nil
	}
	unit, err := env.Price(service, d)
	if err != nil {
		return generic.Leg{}, err
	}
	return generic.NewLeg(name, service, unit, generic.SingleTier(generic.TierNormal, 1)), nil
}
