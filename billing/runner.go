/*
Package billing orchestrates a pricing run end to end.

RUN SEQUENCE:
  1. Load the tables the planned pipelines need, plus the price and client
     master tables (ingest.Loader, bounded concurrency)
  2. Build the price catalog: stored entries first, then the price sheet
     (same service and effective date: the sheet wins)
  3. Build the customer directory from the client sheet
  4. Run the pipelines (generic.Engine)
  5. Persist the run (generic.RunStore)

  A missing table only fails the categories reading it. A missing price
  sheet with an empty price store fails every category with
  ErrPriceNotFound, which is reported per category like any other.

USAGE:
  r := billing.NewRunner(loader, store, store, logger)
  result, err := r.Run(ctx, plan)

SEE ALSO:
  - factory/plan.go: Plan
  - billing/scheduler.go: monthly automatic runs
*/
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/warp/port-invoice/factory"
	"github.com/warp/port-invoice/generic"
	"github.com/warp/port-invoice/ingest"
	"github.com/warp/port-invoice/services"
)

// Runner holds the dependencies of a run.
type Runner struct {
	Loader   *ingest.Loader
	Prices   generic.PriceStore // optional
	Runs     generic.RunStore   // optional; nil skips persistence
	Calendar *generic.Calendar
	Engine   *generic.Engine
	Logger   *slog.Logger

	MaxParseFailureRatio float64
}

// NewRunner creates a runner with the default calendar and an engine
// sharing the loader's concurrency.
func NewRunner(loader *ingest.Loader, prices generic.PriceStore, runs generic.RunStore, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Loader:   loader,
		Prices:   prices,
		Runs:     runs,
		Calendar: generic.NewCalendar(),
		Engine:   generic.NewEngine(loader.Concurrency, logger),
		Logger:   logger,
	}
}

// Outcome is a finished run and the tables that failed to load.
type Outcome struct {
	Result    *generic.RunResult
	Unloaded  map[string]error
	Catalog   int // price entries in the catalog
	Directory *generic.Directory
}

// Run executes plan. The error is non-nil only for cancellation or a
// persistence failure; category failures live in the result.
func (r *Runner) Run(ctx context.Context, plan *factory.Plan) (*Outcome, error) {
	names := generic.RequiredSources(plan.Pipelines)
	for _, master := range []string{services.TablePrice, services.TableClient} {
		if !slices.Contains(names, master) {
			names = append(names, master)
		}
	}
	tables, unloaded := r.Loader.LoadAll(ctx, names)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	catalog, err := r.catalog(ctx, tables[services.TablePrice])
	if err != nil {
		return nil, err
	}
	dir := r.directory(tables[services.TableClient])

	env := &generic.Env{
		Tables:               tables,
		Catalog:              catalog,
		Calendar:             r.Calendar,
		Allocator:            generic.NewAllocator(plan.Cutoffs),
		Directory:            dir,
		Logger:               r.Logger,
		MaxParseFailureRatio: r.MaxParseFailureRatio,
	}
	result, err := r.Engine.Run(ctx, env, plan.Pipelines, plan.Period)
	if err != nil {
		return nil, err
	}

	if r.Runs != nil {
		if err := r.Runs.SaveRun(ctx, result); err != nil {
			return nil, fmt.Errorf("save run %s: %w", result.ID, err)
		}
	}
	return &Outcome{Result: result, Unloaded: unloaded, Catalog: catalog.Len(), Directory: dir}, nil
}

func (r *Runner) catalog(ctx context.Context, sheet *generic.Table) (*generic.PriceCatalog, error) {
	var entries []generic.PriceEntry
	if r.Prices != nil {
		stored, err := r.Prices.LoadPrices(ctx)
		if err != nil {
			return nil, fmt.Errorf("load stored prices: %w", err)
		}
		entries = stored
	}
	if sheet != nil {
		fromSheet, warnings, err := factory.CatalogEntries(sheet)
		for _, w := range warnings {
			r.Logger.Warn("price row skipped", "error", w)
		}
		if err != nil {
			r.Logger.Warn("price sheet rejected", "error", err)
		}
		entries = append(entries, fromSheet...)
	}
	return generic.NewPriceCatalog(entries...), nil
}

func (r *Runner) directory(sheet *generic.Table) *generic.Directory {
	if sheet != nil {
		dir, err := factory.BuildDirectory(sheet)
		if err == nil {
			return dir
		}
		r.Logger.Warn("client sheet rejected", "error", err)
	}
	// Fixed memberships only.
	empty := generic.NewTable(services.TableClient, []string{factory.ColClient, factory.ColType}, nil)
	dir, _ := factory.BuildDirectory(empty)
	return dir
}
