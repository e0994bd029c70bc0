/*
table.go - Input table contract

PURPOSE:
  The ingestion layer hands the engine one named table per sheet. Cells
  are raw strings addressed by column name; the typed accessors on Row
  parse them and fail with ParseError naming the row and column.

  Required columns are checked once per table with Require, which fails
  with SchemaError naming the first missing column.

CELL FORMATS:
  Dates    DD/MM/YYYY (YYYY-MM-DD accepted)
  Times    HH:MM:SS or HH:MM
  Numbers  "1,234.5", "$12.00", "-3" (thousands separators and currency stripped)
*/
package generic

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Table is a named, column-addressed sheet of string cells.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string

	index map[string]int
}

// NewTable builds a table. Column names are trimmed; rows shorter than
// the header read as empty cells.
func NewTable(name string, columns []string, rows [][]string) *Table {
	t := &Table{Name: name, Columns: make([]string, len(columns)), Rows: rows}
	t.index = make(map[string]int, len(columns))
	for i, c := range columns {
		c = strings.TrimSpace(c)
		t.Columns[i] = c
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
	return t
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Has reports whether the column exists.
func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Require checks that every column exists.
func (t *Table) Require(columns ...string) error {
	for _, c := range columns {
		if !t.Has(c) {
			return &SchemaError{Table: t.Name, Column: c, Reason: "required column missing"}
		}
	}
	return nil
}

// Row returns row i.
func (t *Table) Row(i int) Row {
	return Row{table: t, Index: i, cells: t.Rows[i]}
}

// Each calls fn for every row.
func (t *Table) Each(fn func(Row)) {
	for i := range t.Rows {
		fn(t.Row(i))
	}
}

// =============================================================================
// ROW - Typed cell accessors
// =============================================================================

// Row is one data row. Index is zero-based, header excluded.
type Row struct {
	table *Table
	Index int
	cells []string
}

func (r Row) parseError(column, value string, err error) error {
	return &ParseError{Table: r.table.Name, Row: r.Index, Column: column, Value: value, Err: err}
}

// String returns the trimmed cell, empty when the column or cell is missing.
func (r Row) String(column string) string {
	i, ok := r.table.index[column]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

// Upper returns the trimmed, upper-cased cell.
func (r Row) Upper(column string) string {
	return strings.ToUpper(r.String(column))
}

// Date parses a DD/MM/YYYY cell.
func (r Row) Date(column string) (civil.Date, error) {
	v := r.String(column)
	d, err := ParseDate(v)
	if err != nil {
		return civil.Date{}, r.parseError(column, v, err)
	}
	return d, nil
}

// Clock parses an HH:MM[:SS] cell.
func (r Row) Clock(column string) (civil.Time, error) {
	v := r.String(column)
	t, err := ParseClock(v)
	if err != nil {
		return civil.Time{}, r.parseError(column, v, err)
	}
	return t, nil
}

// DateTime parses a "DD/MM/YYYY HH:MM:SS" cell.
func (r Row) DateTime(column string) (civil.DateTime, error) {
	v := r.String(column)
	dt, err := ParseDateTime(v)
	if err != nil {
		return civil.DateTime{}, r.parseError(column, v, err)
	}
	return dt, nil
}

// Float parses a numeric cell. Empty cells are an error.
func (r Row) Float(column string) (float64, error) {
	v := r.String(column)
	f, err := ParseNumber(v)
	if err != nil {
		return 0, r.parseError(column, v, err)
	}
	return f, nil
}

// FloatOr parses a numeric cell, returning def for empty cells.
func (r Row) FloatOr(column string, def float64) (float64, error) {
	if r.String(column) == "" {
		return def, nil
	}
	return r.Float(column)
}

// Int parses an integer cell, returning 0 for empty cells.
func (r Row) Int(column string) (int, error) {
	f, err := r.FloatOr(column, 0)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// OneOf returns the cell if it belongs to allowed, otherwise a ParseError.
func (r Row) OneOf(column string, allowed ...string) (string, error) {
	v := r.String(column)
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return a, nil
		}
	}
	return "", r.parseError(column, v, errNotInSet(allowed))
}

// Decimal parses a monetary cell without going through float64.
func (r Row) Decimal(column string) (decimal.Decimal, error) {
	v := r.String(column)
	d, err := decimal.NewFromString(cleanNumber(v))
	if err != nil {
		return decimal.Zero, r.parseError(column, v, err)
	}
	return d, nil
}

// Table returns the name of the row's table.
func (r Row) Table() string { return r.table.Name }

type errNotInSet []string

func (e errNotInSet) Error() string {
	return "want one of " + strings.Join(e, ", ")
}

var errNotFinite = errors.New("not a finite number")

// ParseNumber parses spreadsheet numbers: "1,234.5", "$12", " -3 ".
// NaN and infinities are rejected.
func ParseNumber(s string) (float64, error) {
	f, err := strconv.ParseFloat(cleanNumber(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

var numberNoise = strings.NewReplacer(",", "", "$", "", " ", "")

func cleanNumber(s string) string {
	return numberNoise.Replace(strings.TrimSpace(s))
}
