/*
scheduler.go - Automated month-end runs

PURPOSE:
  Periodically checks whether the previous calendar month has been priced
  and, if no stored run covers it, runs every registered pipeline for it.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - "Covered" means a stored run whose period equals the month exactly
  - Runs immediately on start, then on every tick

USAGE:
  s := billing.NewScheduler(runner, cutoffs, logger)
  s.Start()
  defer s.Stop()
*/
package billing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/port-invoice/factory"
	"github.com/warp/port-invoice/generic"
)

// Scheduler prices each finished month once.
type Scheduler struct {
	Runner        *Runner
	Cutoffs       generic.Cutoffs
	CheckInterval time.Duration
	Logger        *slog.Logger

	Now func() time.Time // clock, replaceable in tests

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a scheduler checking every hour.
func NewScheduler(runner *Runner, cutoffs generic.Cutoffs, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Runner:        runner,
		Cutoffs:       cutoffs,
		CheckInterval: time.Hour,
		Logger:        logger.With("component", "scheduler"),
		Now:           time.Now,
	}
}

// Start begins the check loop. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx)
	s.Logger.Info("scheduler started", "interval", s.CheckInterval)
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil
	s.Logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.CheckInterval)
	defer ticker.Stop()

	for {
		if _, err := s.CheckAndRun(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.Logger.Error("scheduled run failed", "error", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// PreviousMonth returns the calendar month before now.
func PreviousMonth(now time.Time) generic.Period {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return generic.MonthPeriod(first.Year(), first.Month())
}

// CheckAndRun prices the previous month unless a stored run covers it.
// It returns the new run, or nil when nothing was due.
func (s *Scheduler) CheckAndRun(ctx context.Context) (*generic.RunResult, error) {
	period := PreviousMonth(s.Now())
	if s.Runner.Runs == nil {
		return nil, errors.New("scheduler needs a run store")
	}
	runs, err := s.Runner.Runs.ListRuns(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		if r.Period == period {
			s.Logger.Debug("month already priced", "period", period.String(), "run_id", r.ID)
			return nil, nil
		}
	}

	plan := &factory.Plan{
		Name:      "scheduled " + period.String(),
		Period:    period,
		Pipelines: generic.ListPipelines(),
		Cutoffs:   s.Cutoffs,
	}
	s.Logger.Info("pricing month", "period", period.String())
	out, err := s.Runner.Run(ctx, plan)
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}
