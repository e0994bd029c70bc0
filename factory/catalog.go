/*
Package factory builds engine inputs from raw tables and plan files.

PURPOSE:
  The price list, the customer directory and the run plan all live outside
  the code: the first two as sheets next to the activity logs, the last as
  a JSON or YAML file. The factory converts them into generic types so the
  engine never parses configuration itself.

TABLES:
  price   Service | StartingDate | EndingDate | Price
  client  Vessel/Client | Type | Customer

USAGE:
  entries, warnings, err := factory.CatalogEntries(tables["price"])
  catalog := generic.NewPriceCatalog(entries...)

  dir, err := factory.BuildDirectory(tables["client"])

  plan, err := factory.ParsePlan(data, factory.FormatYAML)

SEE ALSO:
  - generic/catalog.go: PriceCatalog
  - generic/directory.go: Directory
*/
package factory

import (
	"errors"
	"fmt"

	"github.com/warp/port-invoice/generic"
)

// Price table columns.
const (
	ColService      = "Service"
	ColStartingDate = "StartingDate"
	ColEndingDate   = "EndingDate"
	ColPrice        = "Price"
)

// ErrNoTable is returned when a factory input table is nil.
var ErrNoTable = errors.New("factory: table is nil")

// =============================================================================
// PRICE CATALOG
// =============================================================================

// CatalogEntries parses the price table. StartingDate becomes the effective
// date; EndingDate is informational. Rows that fail to parse are returned
// as warnings.
func CatalogEntries(t *generic.Table) ([]generic.PriceEntry, []error, error) {
	if t == nil {
		return nil, nil, ErrNoTable
	}
	env := &generic.Env{Tables: map[string]*generic.Table{t.Name: t}}
	w := &generic.Warnings{}

	entries, err := generic.Normalizer[generic.PriceEntry]{
		Source:  t.Name,
		Columns: []string{ColService, ColStartingDate, ColPrice},
		Parse:   parsePriceRow,
	}.Normalize(env, w)
	if err != nil {
		return nil, w.Errors(), fmt.Errorf("price table: %w", err)
	}
	return entries, w.Errors(), nil
}

func parsePriceRow(r generic.Row) (generic.PriceEntry, error) {
	service := r.String(ColService)
	if service == "" {
		return generic.PriceEntry{}, &generic.ParseError{
			Table: r.Table(), Row: r.Index, Column: ColService, Err: errors.New("empty service"),
		}
	}
	start, err := r.Date(ColStartingDate)
	if err != nil {
		return generic.PriceEntry{}, err
	}
	price, err := r.Decimal(ColPrice)
	if err != nil {
		return generic.PriceEntry{}, err
	}
	e := generic.PriceEntry{Service: service, Effective: start, Price: price}
	if r.String(ColEndingDate) != "" {
		end, err := r.Date(ColEndingDate)
		if err != nil {
			return generic.PriceEntry{}, err
		}
		e.Ending = &end
	}
	return e, nil
}
