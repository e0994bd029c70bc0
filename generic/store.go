/*
store.go - Persistence interfaces for prices and pricing runs

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations use SQLite or in-memory storage.

KEY INTERFACES:
  PriceStore: The price list (bootstrap source for PriceCatalog)
  RunStore:   Completed pricing runs and their lines

APPEND-ONLY CONTRACT:
  Runs are immutable once saved:
  - SaveRun(): writes a run and all of its lines atomically
  - NO Update() or Delete() methods exist
  - Re-pricing a period creates a new run

  Only completed runs are saved. A cancelled run never reaches the store.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - engine.go: Produces RunResult
*/
package generic

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRICE STORE
// =============================================================================

// PriceStore persists the price list.
type PriceStore interface {
	// SavePrices appends entries. Entries with the same service and
	// effective date replace each other at catalog load time (last wins).
	SavePrices(ctx context.Context, entries []PriceEntry) error

	// LoadPrices returns every entry ordered by service, then effective date.
	LoadPrices(ctx context.Context) ([]PriceEntry, error)
}

// =============================================================================
// RUN STORE - Append-only history of pricing runs
// =============================================================================

// CategorySummary describes one category of a saved run.
type CategorySummary struct {
	Category string
	Lines    int
	Total    decimal.Decimal
	Warnings int
	Error    string // empty when the category succeeded
}

// RunSummary describes a saved run without its lines.
type RunSummary struct {
	ID         RunID
	Period     Period
	StartedAt  time.Time
	FinishedAt time.Time
	Total      decimal.Decimal
	Categories []CategorySummary
}

// Summarize builds the summary of a run.
func Summarize(r *RunResult) RunSummary {
	s := RunSummary{
		ID:         r.ID,
		Period:     r.Period,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Total:      r.Total(),
	}
	for _, t := range r.Tables {
		cs := CategorySummary{
			Category: t.Category,
			Lines:    len(t.Lines),
			Total:    t.Total(),
			Warnings: len(t.Warnings),
		}
		if t.Err != nil {
			cs.Error = t.Err.Error()
		}
		s.Categories = append(s.Categories, cs)
	}
	return s
}

// RunStore persists completed runs.
type RunStore interface {
	// SaveRun persists a run and its lines atomically.
	// Returns ErrDuplicateRun if the ID already exists.
	SaveRun(ctx context.Context, r *RunResult) error

	// GetRun returns a run summary or ErrRunNotFound.
	GetRun(ctx context.Context, id RunID) (RunSummary, error)

	// ListRuns returns the most recent runs first. limit <= 0 returns all.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// LoadLines returns the lines of one category of a run, in emit order.
	LoadLines(ctx context.Context, id RunID, category string) ([]PricedLine, error)
}
