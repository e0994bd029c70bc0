/*
transport.go - Container haulage

PURPOSE:
  Prices container movements from the transport workbook's transfer sheet.
  Every movement carries two fees, both labelled by one reference time:

    Collection -> time_in
    Delivery   -> time_out
    Shifting   -> 00:00 (always normal on a normal day)

FEES:
  shifting_price: "Shifting" x tier. Free for full reefers not billed to
                  IOT, and for CCCS remarks with no driver (NA).
  haulage_price:  "Haulage FEU" (40') or "Haulage TEU" (20') x tier.
                  Free unless an IPHS driver did the run.
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
	sizeTEU = "20'"
	sizeFEU = "40'"

	containerReefer = "Reefer"
	containerDry    = "Dry"

	driverNA = "NA"
)

// Haulage is one container movement.
type Haulage struct {
	generic.Activity
	Container   string
	Line        string
	Movement    string
	Driver      string
	Origin      string
	Destination string
	TimeOut     civil.Time
	TimeIn      civil.Time
	Status      string
	Type        string
	Size        string
	Remarks     string
}

// ReferenceTime is the time of day that sets the movement's tier.
func (h Haulage) ReferenceTime() civil.Time {
	switch h.Movement {
	case MovementCollection:
		return h.TimeIn
	case MovementDelivery:
		return h.TimeOut
	default:
		return civil.Time{}
	}
}

// Service returns the haulage price list entry for the container size.
func (h Haulage) Service() string {
	if h.Size == sizeFEU {
		return ServiceHaulageFEU
	}
	return ServiceHaulageTEU
}

// FreeShifting reports whether the shifting fee is waived.
func (h Haulage) FreeShifting() bool {
	reefer := h.Type == containerReefer && !strings.EqualFold(h.Remarks, "IOT") && h.Status == StatusFull
	cccs := strings.EqualFold(h.Remarks, "CCCS") && strings.EqualFold(h.Driver, driverNA)
	return reefer || cccs
}

// FreeHaulage reports whether the run was done by a third party.
func (h Haulage) FreeHaulage() bool {
	return !strings.Contains(strings.ToUpper(h.Driver), "IPHS")
}

func HaulagePipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryHaulage,
		Description: "Container haulage and shifting fees",
		Sources:     []string{TableContainerTransfer},
		Build:       buildHaulage,
	}
}

func buildHaulage(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	rows, err := generic.Normalizer[Haulage]{
		Source: TableContainerTransfer,
		Columns: []string{"date", "container_number", "line", "movement_type", "driver",
			"time_out", "time_in", "status", "type", "size", "remarks"},
		Parse: func(r generic.Row) (Haulage, error) {
			d, err := r.Date("date")
			if err != nil {
				return Haulage{}, err
			}
			movement, err := r.OneOf("movement_type", MovementCollection, MovementShifting, MovementDelivery)
			if err != nil {
				return Haulage{}, err
			}
			size, err := r.OneOf("size", sizeTEU, sizeFEU)
			if err != nil {
				return Haulage{}, err
			}
			status, err := r.OneOf("status", StatusFull, StatusEmpty)
			if err != nil {
				return Haulage{}, err
			}
			kind, err := r.OneOf("type", containerReefer, containerDry)
			if err != nil {
				return Haulage{}, err
			}
			h := Haulage{
				Activity:    env.NewActivity(r.Index, d, r.Upper("line"), ""),
				Container:   r.Upper("container_number"),
				Line:        r.Upper("line"),
				Movement:    movement,
				Driver:      r.String("driver"),
				Origin:      r.String("origin"),
				Destination: r.String("destination"),
				Status:      status,
				Type:        kind,
				Size:        size,
				Remarks:     r.String("remarks"),
			}
			// Shifting rows may leave both times blank.
			if r.String("time_out") != "" {
				if h.TimeOut, err = r.Clock("time_out"); err != nil {
					return Haulage{}, err
				}
			}
			if r.String("time_in") != "" {
				if h.TimeIn, err = r.Clock("time_in"); err != nil {
					return Haulage{}, err
				}
			}
			return h, nil
		},
	}.Normalize(env, w)
	if err != nil {
		return nil, err
	}

	lines := make([]generic.PricedLine, 0, len(rows))
	for _, h := range rows {
		prices, err := env.Catalog.PriceAsOfMulti([]string{ServiceShifting, h.Service()}, h.Date)
		if err != nil {
			return nil, err
		}
		tier := env.Allocator.Cutoffs.TierAt(h.DayType, h.ReferenceTime())
		split := generic.SingleTier(tier, 1)

		shifting := generic.NewLeg("shifting_price", ServiceShifting, prices[ServiceShifting], split)
		if h.FreeShifting() {
			shifting = generic.FlatLeg("shifting_price", ServiceShifting, decimal.Zero)
		}
		haulage := generic.NewLeg("haulage_price", h.Service(), prices[h.Service()], split)
		if h.FreeHaulage() {
			haulage = generic.FlatLeg("haulage_price", h.Service(), decimal.Zero)
		}

		line := legLine(h.Activity, CategoryHaulage, h.Service(), split, shifting, haulage)
		line.Attrs = attrs(
			"container_number", h.Container,
			"movement_type", h.Movement,
			"driver", h.Driver,
			"origin", h.Origin,
			"time_out", generic.FormatClock(h.TimeOut),
			"destination", h.Destination,
			"time_in", generic.FormatClock(h.TimeIn),
			"status", h.Status,
			"type", h.Type,
			"size", h.Size,
			"remarks", h.Remarks,
			"overtime", tier.Label(),
		)
		lines = append(lines, line)
	}
	return lines, nil
}
