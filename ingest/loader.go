package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/port-invoice/generic"
)

// Loader fetches many tables in parallel.
type Loader struct {
	Source      Source
	Concurrency int
	Logger      *slog.Logger
}

// NewLoader creates a loader. concurrency <= 0 uses generic.DefaultConcurrency.
func NewLoader(src Source, concurrency int, logger *slog.Logger) *Loader {
	if concurrency <= 0 {
		concurrency = generic.DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{Source: src, Concurrency: concurrency, Logger: logger}
}

// LoadAll fetches names. A failed table never cancels the others: it is
// logged, left out of tables and reported in failed.
func (l *Loader) LoadAll(ctx context.Context, names []string) (tables map[string]*generic.Table, failed map[string]error) {
	tables = make(map[string]*generic.Table, len(names))
	failed = make(map[string]error)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(l.Concurrency)
	start := time.Now()
	for _, name := range names {
		g.Go(func() error {
			t, err := l.Source.Fetch(ctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				l.Logger.Warn("table unavailable", "table", name, "error", err)
				failed[name] = err
				return nil
			}
			tables[name] = t
			return nil
		})
	}
	_ = g.Wait()

	l.Logger.Info("tables loaded", "loaded", len(tables), "failed", len(failed), "elapsed", time.Since(start))
	return tables, failed
}
