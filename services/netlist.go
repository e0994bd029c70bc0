/*
netlist.go - Unloading net list and well-to-well transfers

CATEGORIES:
  net_list:     one line per unloading record. The service is
                "<kind> - <Brine|Dry>" where kind follows the destination:

                  contains IOT, DARDANEL or "Unload to Quay" -> Unload to Quay
                  a cargo vessel                              -> Transhipment
                  contains CCCS                               -> Unload to CCCS
                  a container                                 -> stuffing kind

                The stuffing kind (Full OSS, Basic OSS, Container Stuffing)
                comes from the container's plugin row for the same date and
                vessel, defaulting to Container Stuffing. The tier is the
                sheet's overtime label.
  well_to_well: "Well to Well Transfer" x tonnage, x1.5 on special days.
*/
package services

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/warp/port-invoice/generic"
)

const (
	kindUnloadToQuay      = "Unload to Quay"
	kindTranshipment      = "Transhipment"
	kindUnloadToCCCS      = "Unload to CCCS"
	kindContainerStuffing = "Container Stuffing"
)

// NetListRecord is one unloading record of the net list.
type NetListRecord struct {
	generic.Activity
	Destination string
	Storage     string
	Tier        generic.Tier
	Tonnage     float64
	Start       string
	End         string
}

type stuffingKey struct {
	Container string
	Date      civil.Date
	Vessel    string
}

// UnloadingKind classifies a destination. stuffing is used for containers.
func UnloadingKind(dir *generic.Directory, destination, stuffing string) string {
	switch {
	case strings.Contains(destination, "IOT"),
		strings.Contains(destination, CustomerDardanel),
		strings.Contains(destination, kindUnloadToQuay):
		return kindUnloadToQuay
	case dir.Has(SetCargo, destination):
		return kindTranshipment
	case strings.Contains(destination, "CCCS"):
		return kindUnloadToCCCS
	case stuffing != "":
		return stuffing
	default:
		return kindContainerStuffing
	}
}

func NetListPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryNetList,
		Description: "Unloading net list by destination and storage",
		Sources:     []string{TableNetList, TableContainerPlugin},
		Build:       buildNetList,
	}
}

// stuffingKinds indexes the plugin sheet. A missing plugin sheet leaves
// every container at the default kind.
func stuffingKinds(env *generic.Env, w *generic.Warnings) (map[stuffingKey]string, error) {
	rows, err := plugNormalizer(env).Normalize(env, w)
	if errors.Is(err, generic.ErrTableUnavailable) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make(map[stuffingKey]string, len(rows))
	for _, c := range rows {
		if kind := StuffingKind(c.Operation); kind != "" {
			out[stuffingKey{Container: c.Container, Date: c.Date, Vessel: c.Client}] = kind
		}
	}
	return out, nil
}

func buildNetList(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	rows, err := generic.Normalizer[NetListRecord]{
		Source:  TableNetList,
		Columns: []string{"Date", "Vessel", "Container (Destination)", "overtime", "Storage", "Total Tonnage"},
		Parse: func(r generic.Row) (NetListRecord, error) {
			d, err := r.Date("Date")
			if err != nil {
				return NetListRecord{}, err
			}
			storage, err := r.OneOf("Storage", StorageBrine, StorageDry)
			if err != nil {
				return NetListRecord{}, err
			}
			tier, err := generic.ParseTier(r.String("overtime"))
			if err != nil {
				return NetListRecord{}, &generic.ParseError{
					Table: TableNetList, Row: r.Index, Column: "overtime", Value: r.String("overtime"), Err: err,
				}
			}
			tonnage, err := r.Float("Total Tonnage")
			if err != nil {
				return NetListRecord{}, err
			}
			return NetListRecord{
				Activity:    env.NewActivity(r.Index, d, "", r.Upper("Vessel")),
				Destination: r.String("Container (Destination)"),
				Storage:     storage,
				Tier:        tier,
				Tonnage:     tonnage,
				Start:       r.String("startTime"),
				End:         r.String("endTime"),
			}, nil
		},
	}.Normalize(env, w)
	if err != nil {
		return nil, err
	}
	kinds, err := stuffingKinds(env, w)
	if err != nil {
		return nil, err
	}

	lines := make([]generic.PricedLine, 0, len(rows))
	for _, n := range rows {
		stuffing := kinds[stuffingKey{Container: strings.ToUpper(n.Destination), Date: n.Date, Vessel: n.Vessel}]
		kind := UnloadingKind(env.Directory, n.Destination, stuffing)
		service := kind + " - " + n.Storage
		unit, err := env.Price(service, n.Date)
		if err != nil {
			return nil, err
		}
		split := generic.SingleTier(n.Tier, n.Tonnage)
		line := n.Line(CategoryNetList, service)
		line.Split = split
		line.UnitPrice = unit
		line.Total = split.Price(unit)
		line.Attrs = attrs(
			"destination", n.Destination,
			"storage_type", n.Storage,
			"overtime", n.Tier.Label(),
			"start_time", n.Start,
			"end_time", n.End,
			"total_tonnage", fmtQty(n.Tonnage),
		)
		lines = append(lines, line)
	}
	return lines, nil
}

// =============================================================================
// WELL TO WELL
// =============================================================================

// WellTransfer is tonnage moved between two wells of the same vessel.
type WellTransfer struct {
	generic.Activity
	Tonnage float64
}

func WellToWellPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryWellToWell,
		Description: "Well to well transfers on board",
		Sources:     []string{TableWellToWell},
		Build:       buildWellToWell,
	}
}

func buildWellToWell(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	rows, err := generic.Normalizer[WellTransfer]{
		Source:  TableWellToWell,
		Columns: []string{"Date", "Vessel", "Tonnage"},
		Parse: func(r generic.Row) (WellTransfer, error) {
			d, err := r.Date("Date")
			if err != nil {
				return WellTransfer{}, err
			}
			tonnage, err := r.Float("Tonnage")
			if err != nil {
				return WellTransfer{}, err
			}
			return WellTransfer{
				Activity: env.NewActivity(r.Index, d, "", r.Upper("Vessel")),
				Tonnage:  tonnage,
			}, nil
		},
	}.Normalize(env, w)
	if err != nil {
		return nil, err
	}

	lines := make([]generic.PricedLine, 0, len(rows))
	for _, t := range rows {
		unit, err := env.Price(ServiceWellToWell, t.Date)
		if err != nil {
			return nil, err
		}
		split := generic.SingleTier(generic.DayMultiplier(t.DayType), t.Tonnage)
		line := t.Line(CategoryWellToWell, ServiceWellToWell)
		line.Split = split
		line.UnitPrice = unit
		line.Total = split.Price(unit)
		line.Attrs = attrs("tonnage", fmtQty(t.Tonnage))
		lines = append(lines, line)
	}
	return lines, nil
}
