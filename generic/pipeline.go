/*
pipeline.go - Service pricing pipeline template

PURPOSE:
  Every service family follows the same shape:

    1. Normalize  raw rows -> typed activities (Normalizer)
    2. Classify   day type / day name (Env.Calendar)
    3. Allocate   Allocator for timed services, FlatSplit for quantities
    4. Price      as-of lookup in Env.Catalog
    5. Aggregate  optional grouping before pricing
    6. Emit       []PricedLine

  Pipeline holds the steps a family customizes (Build). Run wraps Build
  with the failure policy shared by all families.

FAILURE POLICY (Run):
  - SchemaError, PriceNotFoundError, any other error, or a panic inside
    Build: the category yields an empty table with Err set and the
    failure is logged with the category name.
  - Row-level ParseError and DegenerateIntervalError: collected in
    Warnings, logged, the run continues.
  - Parse failures above Env.MaxParseFailureRatio escalate to SchemaError.

PURITY:
  Build reads Env and returns fresh lines. It must not mutate Env, so any
  pipeline can be re-run from scratch and pipelines can run in parallel.

SEE ALSO:
  - engine.go: Runs every registered pipeline
  - resource.go: Pipeline registry
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// DefaultMaxParseFailureRatio is the share of rejected rows that fails a table.
const DefaultMaxParseFailureRatio = 0.5

// =============================================================================
// ENV - Read-only inputs shared by every pipeline of a run
// =============================================================================

type Env struct {
	Tables    map[string]*Table
	Catalog   *PriceCatalog
	Calendar  *Calendar
	Allocator Allocator
	Directory *Directory
	Logger    *slog.Logger

	// MaxParseFailureRatio: <= 0 uses the default, >= 1 never escalates.
	MaxParseFailureRatio float64
}

// Table returns a loaded source table.
func (e *Env) Table(name string) (*Table, error) {
	t, ok := e.Tables[name]
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: %s", ErrTableUnavailable, name)
	}
	return t, nil
}

// Price is a shortcut for Catalog.PriceAsOf.
func (e *Env) Price(service string, d civil.Date) (decimal.Decimal, error) {
	return e.Catalog.PriceAsOf(service, d)
}

// Classify is a shortcut for Calendar.Classify.
func (e *Env) Classify(d civil.Date) (DayType, string) {
	return e.Calendar.Classify(d)
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Env) parseFailureRatio() float64 {
	if e.MaxParseFailureRatio <= 0 {
		return DefaultMaxParseFailureRatio
	}
	return e.MaxParseFailureRatio
}

// =============================================================================
// WARNINGS
// =============================================================================

// Warnings collects row-level problems of one pipeline run.
type Warnings struct {
	errs []error
}

// Add records a warning. Nil errors are ignored.
func (w *Warnings) Add(err error) {
	if err != nil {
		w.errs = append(w.errs, err)
	}
}

// Interval records a DegenerateIntervalError when the split fell back to normal.
func (w *Warnings) Interval(iv Interval, split OvertimeSplit) {
	if split.Degenerate {
		w.Add(&DegenerateIntervalError{Date: iv.Date, Start: iv.Start, End: iv.End})
	}
}

// Errors returns the recorded warnings.
func (w *Warnings) Errors() []error { return w.errs }

func (w *Warnings) strings() []string {
	out := make([]string, len(w.errs))
	for i, err := range w.errs {
		out[i] = err.Error()
	}
	return out
}

// =============================================================================
// ACTIVITY - Fields every normalized row carries
// =============================================================================

// Activity is embedded by every family's typed row.
type Activity struct {
	Row      int
	Date     civil.Date
	DayType  DayType
	DayName  string
	Customer string
	Vessel   string
}

// NewActivity classifies d and fills the common fields.
func (e *Env) NewActivity(row int, d civil.Date, customer, vessel string) Activity {
	dt, name := e.Classify(d)
	return Activity{Row: row, Date: d, DayType: dt, DayName: name, Customer: customer, Vessel: vessel}
}

// Line starts a PricedLine from the activity.
func (a Activity) Line(category, service string) PricedLine {
	return PricedLine{
		Category: category,
		Date:     a.Date,
		DayName:  a.DayName,
		DayType:  a.DayType,
		Customer: a.Customer,
		Vessel:   a.Vessel,
		Service:  service,
	}
}

// =============================================================================
// NORMALIZER
// =============================================================================

// Normalizer turns one source table into typed activities.
type Normalizer[A any] struct {
	Source  string
	Columns []string
	Keep    func(Row) bool // optional row filter applied before Parse
	Parse   func(Row) (A, error)
}

// Normalize validates the schema and parses every kept row. Rows failing with
// ParseError are skipped and recorded; other errors fail the table.
func (n Normalizer[A]) Normalize(env *Env, w *Warnings) ([]A, error) {
	t, err := env.Table(n.Source)
	if err != nil {
		return nil, err
	}
	if err := t.Require(n.Columns...); err != nil {
		return nil, err
	}

	var (
		out    []A
		kept   int
		failed int
	)
	for i := range t.Rows {
		row := t.Row(i)
		if n.Keep != nil && !n.Keep(row) {
			continue
		}
		kept++
		a, err := n.Parse(row)
		if err != nil {
			if !errors.Is(err, ErrParse) {
				return nil, err
			}
			failed++
			w.Add(err)
			continue
		}
		out = append(out, a)
	}

	if kept > 0 && float64(failed)/float64(kept) > env.parseFailureRatio() {
		return nil, &SchemaError{
			Table:  t.Name,
			Reason: fmt.Sprintf("%d of %d rows failed to parse", failed, kept),
		}
	}
	return out, nil
}

// =============================================================================
// PIPELINE
// =============================================================================

// BuildFunc produces the lines of one category.
type BuildFunc func(ctx context.Context, env *Env, w *Warnings) ([]PricedLine, error)

// Pipeline is one service family.
type Pipeline struct {
	Category    string
	Description string
	Sources     []string
	Build       BuildFunc
}

// Run executes Build under the shared failure policy. It never returns an
// error: failures are reported through PricedTable.Err.
func (p Pipeline) Run(ctx context.Context, env *Env) (out PricedTable) {
	log := env.logger().With("category", p.Category)
	out.Category = p.Category
	w := &Warnings{}

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panicked", "panic", r, "stack", string(debug.Stack()))
			out = PricedTable{
				Category: p.Category,
				Warnings: w.strings(),
				Err:      fmt.Errorf("pipeline %s panicked: %v", p.Category, r),
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	lines, err := p.Build(ctx, env, w)
	for _, werr := range w.Errors() {
		log.Warn("row warning", "error", werr)
	}
	out.Warnings = w.strings()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		log.Warn("category unavailable", "error", err)
		out.Err = err
		return out
	}

	out.Lines = lines
	log.Info("category priced", "lines", len(lines), "total", out.Total().StringFixed(2))
	return out
}
