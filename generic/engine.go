/*
engine.go - Pricing run orchestrator

PURPOSE:
  Runs a set of pipelines over one Env and fans their tables in.

CONCURRENCY MODEL:
  Pipelines are pure over the read-only Env, so they run in parallel on an
  errgroup bounded by Concurrency. A pipeline never returns an error to the
  group (Pipeline.Run converts failures into PricedTable.Err), so one
  failed category never cancels its siblings.

CANCELLATION:
  If ctx is cancelled the run is abandoned and Run returns ctx.Err().
  Partial results are discarded; a run is only final once Run returns nil.

USAGE:
  engine := generic.NewEngine(10, logger)
  result, err := engine.Run(ctx, env, generic.ListPipelines())
*/
package generic

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel pipelines and table loads.
const DefaultConcurrency = 10

// Engine runs pipelines.
type Engine struct {
	Concurrency int
	Logger      *slog.Logger
}

// NewEngine creates an engine. concurrency <= 0 uses DefaultConcurrency.
func NewEngine(concurrency int, logger *slog.Logger) *Engine {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Concurrency: concurrency, Logger: logger}
}

// RunResult is the fan-in of one pricing run.
type RunResult struct {
	ID         RunID
	Period     Period
	StartedAt  time.Time
	FinishedAt time.Time
	Tables     []PricedTable // sorted by category
}

// NewRunID returns a fresh run identifier.
func NewRunID() RunID {
	return RunID(uuid.NewString())
}

// Table returns the table of a category.
func (r *RunResult) Table(category string) (PricedTable, bool) {
	for _, t := range r.Tables {
		if t.Category == category {
			return t, true
		}
	}
	return PricedTable{}, false
}

// Failed returns the categories that produced no output.
func (r *RunResult) Failed() []string {
	var out []string
	for _, t := range r.Tables {
		if t.Failed() {
			out = append(out, t.Category)
		}
	}
	return out
}

// Total sums every category.
func (r *RunResult) Total() decimal.Decimal {
	total := decimal.Zero
	for _, t := range r.Tables {
		total = total.Add(t.Total())
	}
	return total
}

// LineCount counts the lines of every category.
func (r *RunResult) LineCount() int {
	n := 0
	for _, t := range r.Tables {
		n += len(t.Lines)
	}
	return n
}

// Run executes pipelines in parallel. A non-zero period keeps only lines
// dated inside it.
func (e *Engine) Run(ctx context.Context, env *Env, pipelines []Pipeline, period Period) (*RunResult, error) {
	if env.Logger == nil {
		withLogger := *env
		withLogger.Logger = e.Logger
		env = &withLogger
	}
	result := &RunResult{ID: NewRunID(), Period: period, StartedAt: time.Now().UTC()}
	log := e.Logger.With("run_id", result.ID)
	log.Info("run started", "pipelines", len(pipelines), "period", period.String())

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.Concurrency)
	for _, p := range pipelines {
		g.Go(func() error {
			table := p.Run(ctx, env)
			table.Lines = period.FilterLines(table.Lines)
			mu.Lock()
			result.Tables = append(result.Tables, table)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.Warn("run cancelled", "error", err)
		return nil, err
	}

	sort.Slice(result.Tables, func(i, j int) bool {
		return result.Tables[i].Category < result.Tables[j].Category
	})
	result.FinishedAt = time.Now().UTC()
	log.Info("run finished",
		"lines", result.LineCount(),
		"failed", len(result.Failed()),
		"total", result.Total().StringFixed(2),
		"elapsed", result.FinishedAt.Sub(result.StartedAt))
	return result, nil
}
