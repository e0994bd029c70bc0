/*
Package reconcile diffs an operations log against an invoice export.

PURPOSE:
  Every logged operation should be invoiced, and every invoice line should
  match a logged operation. Both sides are tables; a Dataset names the date
  and reference columns joining them. Diff reports:

    NotInvoiced   log rows with no invoice row on the same (date, reference)
    NotLogged     invoice rows with no log row on the same (date, reference)

  Only rows dated inside the period are compared. Rows flagged by a skip
  value (e.g. invoice_to = INVALID) are ignored. References compare
  trimmed and upper-cased. Invoice date cells may carry a time of day
  ("09/01/2024 08:00:00"); only the date part is used.

USAGE:
  ds, _ := reconcile.Lookup("washing")
  report, err := reconcile.Diff(ds, logTable, invoiceTable, generic.MonthPeriod(2024, 1))

SEE ALSO:
  - export/csv.go: invoice file layout
*/
package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/warp/port-invoice/generic"
)

// Side names one table's join columns and its rows to ignore.
type Side struct {
	DateColumn string
	RefColumn  string
	// Skip drops rows whose column equals the value (case-insensitive).
	Skip map[string]string
}

// Dataset pairs the log and invoice sides of one activity.
type Dataset struct {
	Name    string
	Log     Side
	Invoice Side
}

// Datasets are the activities checked against the operations logs.
var Datasets = map[string]Dataset{
	"washing": {
		Name:    "washing",
		Log:     Side{DateColumn: "Cleaning Date", RefColumn: "Container Ref. No.", Skip: map[string]string{"Invoiced": "Invalid"}},
		Invoice: Side{DateColumn: "date", RefColumn: "container_number", Skip: map[string]string{"customer": "INVALID"}},
	},
	"pti": {
		Name:    "pti",
		Log:     Side{DateColumn: "Date Plug", RefColumn: "Container Ref. No."},
		Invoice: Side{DateColumn: "date", RefColumn: "container_number", Skip: map[string]string{"customer": "INVALID"}},
	},
	"cross_stuffing": {
		Name:    "cross_stuffing",
		Log:     Side{DateColumn: "Date", RefColumn: "From Container Ref . No."},
		Invoice: Side{DateColumn: "date", RefColumn: "origin", Skip: map[string]string{"customer": "INVALID"}},
	},
	"shifting": {
		Name:    "shifting",
		Log:     Side{DateColumn: "Date", RefColumn: "Container Ref. No."},
		Invoice: Side{DateColumn: "date", RefColumn: "container_number", Skip: map[string]string{"customer": "INVALID"}},
	},
	"haulage": {
		Name:    "haulage",
		Log:     Side{DateColumn: "Date", RefColumn: "Container Ref. No."},
		Invoice: Side{DateColumn: "date", RefColumn: "container_number"},
	},
}

// Lookup returns a named dataset.
func Lookup(name string) (Dataset, error) {
	ds, ok := Datasets[name]
	if !ok {
		return Dataset{}, fmt.Errorf("%w: %s", generic.ErrCategoryNotFound, name)
	}
	return ds, nil
}

// Names returns the dataset names, sorted.
func Names() []string {
	names := make([]string, 0, len(Datasets))
	for n := range Datasets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// DIFF
// =============================================================================

// Entry is one unmatched row. Row is the zero-based data row index.
type Entry struct {
	Row  int
	Date civil.Date
	Ref  string
}

// Report is the result of a Diff.
type Report struct {
	Dataset     string
	Period      generic.Period
	Logged      int // log rows compared
	Invoiced    int // invoice rows compared
	NotInvoiced []Entry
	NotLogged   []Entry
	Warnings    []string
}

// Clean reports whether both sides match exactly.
func (r *Report) Clean() bool {
	return len(r.NotInvoiced) == 0 && len(r.NotLogged) == 0
}

type joinKey struct {
	date civil.Date
	ref  string
}

// Diff full-joins log and invoice on (date, reference) inside period.
// A zero period compares every row.
func Diff(ds Dataset, log, invoice *generic.Table, period generic.Period) (*Report, error) {
	if err := log.Require(ds.Log.DateColumn, ds.Log.RefColumn); err != nil {
		return nil, err
	}
	if err := invoice.Require(ds.Invoice.DateColumn, ds.Invoice.RefColumn); err != nil {
		return nil, err
	}

	r := &Report{Dataset: ds.Name, Period: period}
	logRows := collect(log, ds.Log, period, r)
	invRows := collect(invoice, ds.Invoice, period, r)
	r.Logged = len(logRows)
	r.Invoiced = len(invRows)

	r.NotInvoiced = unmatched(logRows, keySet(invRows))
	r.NotLogged = unmatched(invRows, keySet(logRows))
	return r, nil
}

func collect(t *generic.Table, side Side, period generic.Period, r *Report) []Entry {
	var out []Entry
	t.Each(func(row generic.Row) {
		if skipped(row, side.Skip) {
			return
		}
		cell := row.String(side.DateColumn)
		datePart, _, _ := strings.Cut(strings.TrimSpace(cell), " ")
		d, err := generic.ParseDate(datePart)
		if err != nil {
			r.Warnings = append(r.Warnings, (&generic.ParseError{
				Table: t.Name, Row: row.Index, Column: side.DateColumn, Value: cell, Err: err,
			}).Error())
			return
		}
		if !period.IsZero() && !period.Contains(d) {
			return
		}
		out = append(out, Entry{Row: row.Index, Date: d, Ref: row.Upper(side.RefColumn)})
	})
	return out
}

func skipped(row generic.Row, skip map[string]string) bool {
	for col, val := range skip {
		if strings.EqualFold(row.String(col), val) {
			return true
		}
	}
	return false
}

func keySet(entries []Entry) map[joinKey]bool {
	set := make(map[joinKey]bool, len(entries))
	for _, e := range entries {
		set[joinKey{e.Date, e.Ref}] = true
	}
	return set
}

func unmatched(entries []Entry, other map[joinKey]bool) []Entry {
	var out []Entry
	for _, e := range entries {
		if !other[joinKey{e.Date, e.Ref}] {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
