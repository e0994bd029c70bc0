/*
main.go - HTTP server entry point

PURPOSE:
  Starts the pricing API. Handles configuration, dependency injection, and
  graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config (YAML, .env, PORTINV_*)
  2. Initialize SQLite store
  3. Wire table source, cache and loader
  4. Create runner, handler and router
  5. Optionally start the month-end scheduler
  6. Serve with graceful shutdown

COMMAND-LINE FLAGS:
  -config    YAML config file (optional)
  -port      HTTP port, overrides config
  -db        SQLite path, overrides config (":memory:" for in-memory)
  -schedule  Price the previous month automatically

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close cache and database connections

SEE ALSO:
  - config/config.go: Settings and environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/port-invoice/api"
	"github.com/warp/port-invoice/billing"
	"github.com/warp/port-invoice/config"
	"github.com/warp/port-invoice/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	schedule := flag.Bool("schedule", false, "Price the previous month automatically")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Server.DB = *dbPath
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	store, err := sqlite.New(cfg.Server.DB)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	loader, closeCache, err := cfg.NewLoader(logger)
	if err != nil {
		return err
	}
	defer closeCache()

	runner := billing.NewRunner(loader, store, store, logger)
	runner.MaxParseFailureRatio = cfg.Engine.MaxParseFailureRatio

	handler := api.NewHandler(store, runner, logger)
	handler.Cutoffs = cfg.Cutoffs()

	if *schedule {
		s := billing.NewScheduler(runner, cfg.Cutoffs(), logger)
		s.Start()
		defer s.Stop()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // POST /api/runs loads every sheet first
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "source", cfg.Source.Mode, "cache", cfg.Cache.Type)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
