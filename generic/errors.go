/*
errors.go - Centralized error types for the pricing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Service packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Table errors   - SchemaError (whole table rejected), ParseError (one row rejected)
  2. Pricing errors - PriceNotFoundError (no as-of entry for a service and date)
  3. Warnings       - DegenerateIntervalError (zero-length or inverted interval)
  4. Store errors   - Run lookups and persistence failures

FAILURE POLICY:
  SchemaError and PriceNotFoundError fail the category: the pipeline emits
  an empty table and sibling categories keep running. ParseError and
  DegenerateIntervalError are warnings: the row is skipped (ParseError) or
  priced as fully normal (DegenerateIntervalError) and the run continues.

USAGE:
    if errors.Is(err, generic.ErrPriceNotFound) {
        // category unavailable for this run
    }

    var perr *generic.ParseError
    if errors.As(err, &perr) {
        log.Warn("row rejected", "row", perr.Row, "column", perr.Column)
    }

SEE ALSO:
  - table.go: Produces SchemaError and ParseError
  - catalog.go: Produces PriceNotFoundError
  - overtime.go: Produces DegenerateIntervalError
*/
package generic

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSchema is returned when a table misses a required column or
	// too many of its rows fail to parse.
	ErrSchema = errors.New("schema error")

	// ErrParse is returned when a single cell cannot be parsed as its expected type.
	ErrParse = errors.New("parse error")

	// ErrPriceNotFound is returned when no price entry is effective on the query date.
	ErrPriceNotFound = errors.New("price not found")

	// ErrDegenerateInterval flags a zero-length or inverted interval.
	ErrDegenerateInterval = errors.New("degenerate interval")

	// ErrTableUnavailable is returned when a pipeline source table was not loaded.
	ErrTableUnavailable = errors.New("table unavailable")

	// ErrRunNotFound is returned when a referenced pricing run doesn't exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrDuplicateRun is returned when a run with the same ID was already saved.
	ErrDuplicateRun = errors.New("duplicate run")

	// ErrCategoryNotFound is returned when a pipeline category is not registered.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SchemaError names the table and column that made a table unusable.
type SchemaError struct {
	Table  string
	Column string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("schema error in table %q", e.Table)
	if e.Column != "" {
		msg += fmt.Sprintf(", column %q", e.Column)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrSchema, e.Err}
	}
	return []error{ErrSchema}
}

// ParseError names the row and column of a cell that could not be parsed.
// Row is the zero-based data row index, header excluded.
type ParseError struct {
	Table  string
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse error in table %q row %d column %q: value %q", e.Table, e.Row, e.Column, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrParse, e.Err}
	}
	return []error{ErrParse}
}

// PriceNotFoundError provides the service and date of a failed as-of lookup.
type PriceNotFoundError struct {
	Service string
	Date    civil.Date
}

func (e *PriceNotFoundError) Error() string {
	return fmt.Sprintf("no price for %q effective on or before %s", e.Service, e.Date)
}

func (e *PriceNotFoundError) Unwrap() error {
	return ErrPriceNotFound
}

// DegenerateIntervalError describes an interval the allocator priced as fully normal.
type DegenerateIntervalError struct {
	Date  civil.Date
	Start civil.Time
	End   civil.Time
}

func (e *DegenerateIntervalError) Error() string {
	return fmt.Sprintf("degenerate interval on %s: %s -> %s", e.Date, FormatClock(e.Start), FormatClock(e.End))
}

func (e *DegenerateIntervalError) Unwrap() error {
	return ErrDegenerateInterval
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsWarning returns true if the error is row-level and must not fail a category.
func IsWarning(err error) bool {
	return errors.Is(err, ErrParse) || errors.Is(err, ErrDegenerateInterval)
}

// IsClientError returns true if the error is due to invalid input data.
func IsClientError(err error) bool {
	return errors.Is(err, ErrSchema) ||
		errors.Is(err, ErrParse) ||
		errors.Is(err, ErrDuplicateRun) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPriceNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrTableUnavailable)
}
