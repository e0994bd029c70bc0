/*
bycatch.go - By-catch unloading and transfers

PURPOSE:
  By-catch landed at CCCS is billed as "CCCS (By-Catch)". Part of it may
  instead be transferred straight to the customer ("Transfer of by-catch"),
  in which case only the remainder is billed at the CCCS price.

PARTITION:
  By-catch rows (CCCS unloading for by-catch customers, summed per key) and
  transfer rows are matched on (date, customer, vessel, movement_type):

    ByCatchOnly   by-catch with no transfer      -> CCCS price
    TransferOnly  transfer with no by-catch      -> transfer price
    Both          by-catch with its transfers    -> transfer lines, plus a
                                                    netted CCCS line for
                                                    by-catch minus transfers

  Every row lands in exactly one partition. A netted line whose tonnage
  is zero is dropped.

EXAMPLE:
  by-catch 12 t (2 t overtime), transfer 5 t (1 t overtime), Monday:
    transfer line  4 t normal + 1 t at 150%
    netted line    6 t normal + 1 t at 150%
*/
package services

import (
	"context"
	"math"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/warp/port-invoice/generic"
)

// ByCatchRow is one by-catch or transfer quantity.
type ByCatchRow struct {
	generic.Activity
	Movement string
	Service  string
	Total    float64
	Overtime float64
}

// Key returns the join key of the row.
func (r ByCatchRow) Key() ByCatchKey {
	return ByCatchKey{Date: r.Date, Customer: r.Customer, Vessel: r.Vessel, Movement: r.Movement}
}

// ByCatchKey joins by-catch to transfers.
type ByCatchKey struct {
	Date     civil.Date
	Customer string
	Vessel   string
	Movement string
}

// ByCatchPair is a by-catch row with the transfers taken out of it.
type ByCatchPair struct {
	ByCatch   ByCatchRow
	Transfers []ByCatchRow
}

// Net returns the by-catch left at CCCS once transfers are removed.
func (p ByCatchPair) Net() ByCatchRow {
	net := p.ByCatch
	for _, t := range p.Transfers {
		net.Total -= t.Total
		net.Overtime -= t.Overtime
	}
	return net
}

// ByCatchPartition splits by-catch and transfers into disjoint groups.
type ByCatchPartition struct {
	ByCatchOnly  []ByCatchRow
	TransferOnly []ByCatchRow
	Both         []ByCatchPair
}

// PartitionByCatch matches by-catch rows to transfers. byCatch must hold one
// row per key (see SumByCatch). Input order is kept inside each partition.
func PartitionByCatch(byCatch, transfers []ByCatchRow) ByCatchPartition {
	byKey := make(map[ByCatchKey][]ByCatchRow)
	for _, t := range transfers {
		byKey[t.Key()] = append(byKey[t.Key()], t)
	}

	var p ByCatchPartition
	matched := make(map[ByCatchKey]bool)
	for _, b := range byCatch {
		ts, ok := byKey[b.Key()]
		if !ok {
			p.ByCatchOnly = append(p.ByCatchOnly, b)
			continue
		}
		matched[b.Key()] = true
		p.Both = append(p.Both, ByCatchPair{ByCatch: b, Transfers: ts})
	}
	for _, t := range transfers {
		if !matched[t.Key()] {
			p.TransferOnly = append(p.TransferOnly, t)
		}
	}
	return p
}

// SumByCatch merges by-catch rows sharing a key, keeping first-seen order.
func SumByCatch(rows []ByCatchRow) []ByCatchRow {
	index := make(map[ByCatchKey]int)
	var out []ByCatchRow
	for _, r := range rows {
		i, ok := index[r.Key()]
		if !ok {
			index[r.Key()] = len(out)
			out = append(out, r)
			continue
		}
		out[i].Total += r.Total
		out[i].Overtime += r.Overtime
	}
	return out
}

// =============================================================================
// PIPELINE
// =============================================================================

func ByCatchPipeline() generic.Pipeline {
	return generic.Pipeline{
		Category:    CategoryByCatch,
		Description: "By-catch at CCCS netted against direct transfers",
		Sources:     []string{TableCCCSActivity, TableByCatchTransfer},
		Build:       buildByCatch,
	}
}

func loadByCatch(env *generic.Env, w *generic.Warnings) ([]ByCatchRow, error) {
	rows, err := cccsNormalizer(env, func(r generic.Row) bool {
		return oneOf(r.String("operation_type"), UnloadingServices) && env.Directory.Has(SetByCatch, r.String("customer"))
	}).Normalize(env, w)
	if err != nil {
		return nil, err
	}
	out := make([]ByCatchRow, len(rows))
	for i, a := range rows {
		out[i] = ByCatchRow{
			Activity: a.Activity,
			Movement: a.Movement,
			Service:  ServiceCCCSByCatch,
			Total:    a.Total,
			Overtime: a.Overtime,
		}
	}
	return SumByCatch(out), nil
}

func loadByCatchTransfers(env *generic.Env, w *generic.Warnings) ([]ByCatchRow, error) {
	return generic.Normalizer[ByCatchRow]{
		Source:  TableByCatchTransfer,
		Columns: []string{"date", "movement_type", "customer", "vessel", "total_tonnage", "overtime_tonnage"},
		Parse: func(r generic.Row) (ByCatchRow, error) {
			d, err := r.Date("date")
			if err != nil {
				return ByCatchRow{}, err
			}
			movement, err := r.OneOf("movement_type", MovementIn, MovementOut)
			if err != nil {
				return ByCatchRow{}, err
			}
			total, err := r.Float("total_tonnage")
			if err != nil {
				return ByCatchRow{}, err
			}
			ot, err := r.FloatOr("overtime_tonnage", 0)
			if err != nil {
				return ByCatchRow{}, err
			}
			return ByCatchRow{
				Activity: env.NewActivity(r.Index, d, r.Upper("customer"), r.Upper("vessel")),
				Movement: movement,
				Service:  ServiceByCatchTransfer,
				Total:    total,
				Overtime: ot,
			}, nil
		},
	}.Normalize(env, w)
}

func buildByCatch(_ context.Context, env *generic.Env, w *generic.Warnings) ([]generic.PricedLine, error) {
	byCatch, err := loadByCatch(env, w)
	if err != nil {
		return nil, err
	}
	transfers, err := loadByCatchTransfers(env, w)
	if err != nil {
		return nil, err
	}

	type priced struct {
		row       ByCatchRow
		partition string
	}
	var todo []priced
	p := PartitionByCatch(byCatch, transfers)
	for _, b := range p.ByCatchOnly {
		todo = append(todo, priced{b, "by_catch_only"})
	}
	for _, t := range p.TransferOnly {
		todo = append(todo, priced{t, "transfer_only"})
	}
	for _, pair := range p.Both {
		for _, t := range pair.Transfers {
			todo = append(todo, priced{t, "transfer"})
		}
		if net := pair.Net(); math.Abs(net.Total) > generic.SplitTolerance {
			todo = append(todo, priced{net, "netted"})
		}
	}
	sort.SliceStable(todo, func(i, j int) bool { return todo[i].row.Date.Before(todo[j].row.Date) })

	lines := make([]generic.PricedLine, 0, len(todo))
	for _, t := range todo {
		unit, err := env.Price(t.row.Service, t.row.Date)
		if err != nil {
			return nil, err
		}
		line := flatLine(t.row.Activity, CategoryByCatch, t.row.Service, unit, t.row.Total, t.row.Overtime)
		line.Attrs = attrs(
			"partition", t.partition,
			"total_tonnage", fmtQty(t.row.Total),
			"overtime_tonnage", fmtQty(t.row.Overtime),
		)
		lines = append(lines, line)
	}
	return lines, nil
}
