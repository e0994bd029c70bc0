/*
Package export writes priced tables as CSV invoice sheets.

COLUMNS:
  category, date, day_name, customer, vessel, service,
  normal, overtime_150, overtime_200, unit_price, total,
  then one column per leg (its total), then the pipeline attributes.

  Leg and attribute columns are collected in first-seen order over the
  table's lines; a line missing one writes an empty cell (attrs) or 0.00
  (legs). Money is written with two decimals, dates as DD/MM/YYYY.

USAGE:
  err := export.WriteCSV(w, table)
  paths, err := export.WriteRun(dir, run)

SEE ALSO:
  - generic/types.go: PricedTable, PricedLine
  - reconcile/: reads these files back as invoices
*/
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/warp/port-invoice/generic"
)

// BaseColumns is the fixed header prefix of every export.
var BaseColumns = []string{
	"category", "date", "day_name", "customer", "vessel", "service",
	"normal", "overtime_150", "overtime_200", "unit_price", "total",
}

// Header returns the full header of a table.
func Header(t generic.PricedTable) []string {
	h := append([]string(nil), BaseColumns...)
	h = append(h, t.LegNames()...)
	return append(h, t.AttrKeys()...)
}

// WriteCSV writes t with a header row. A failed table writes the header only.
func WriteCSV(w io.Writer, t generic.PricedTable) error {
	legs := t.LegNames()
	attrs := t.AttrKeys()

	cw := csv.NewWriter(w)
	if err := cw.Write(Header(t)); err != nil {
		return err
	}
	for _, l := range t.Lines {
		rec := make([]string, 0, len(BaseColumns)+len(legs)+len(attrs))
		rec = append(rec,
			l.Category,
			generic.FormatDate(l.Date),
			l.DayName,
			l.Customer,
			l.Vessel,
			l.Service,
			formatMeasure(l.Split.Normal),
			formatMeasure(l.Split.OT150),
			formatMeasure(l.Split.OT200),
			l.UnitPrice.StringFixed(2),
			l.Total.StringFixed(2),
		)
		for _, name := range legs {
			rec = append(rec, l.LegTotal(name).StringFixed(2))
		}
		for _, key := range attrs {
			rec = append(rec, l.Attr(key))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatMeasure(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteRun writes every priced category of run to dir/<category>.csv and
// returns the paths written. Failed categories are skipped.
func WriteRun(dir string, run *generic.RunResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for _, t := range run.Tables {
		if t.Failed() {
			continue
		}
		path := filepath.Join(dir, t.Category+".csv")
		if err := writeFile(path, t); err != nil {
			return paths, fmt.Errorf("export %s: %w", t.Category, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, t generic.PricedTable) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
