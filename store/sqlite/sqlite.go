/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists the price list and the history of pricing runs so that an
  invoice can be re-read, exported or audited after the activity sheets
  have moved on.

INTERFACES IMPLEMENTED:
  generic.PriceStore: Price list entries
  generic.RunStore:   Completed runs and their priced lines

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on runs or priced_lines
  - A run and all of its lines are written in one transaction
  - Re-pricing a period creates a new run

KEY TABLES:
  price_entries: Service prices with their effective dates
  runs:          One row per completed run, category summaries as JSON
  priced_lines:  Every line of every run, legs and attrs as JSON

MONEY:
  Prices and totals are stored as decimal strings, never REAL, so a
  reloaded line totals to the cent it was saved with.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/invoice.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  err = store.SaveRun(ctx, result)

SEE ALSO:
  - generic/store.go: Interfaces
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/port-invoice/generic"
)

// timeLayout has a fixed width so started_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements generic.PriceStore and generic.RunStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ generic.PriceStore = (*Store)(nil)
	_ generic.RunStore   = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Price list
	CREATE TABLE IF NOT EXISTS price_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		service TEXT NOT NULL,
		effective TEXT NOT NULL,
		ending TEXT,
		price TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_price_entries_service_effective
		ON price_entries(service, effective);

	-- Pricing runs (append-only)
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		period_start TEXT NOT NULL DEFAULT '',
		period_end TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		total TEXT NOT NULL,
		categories_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at
		ON runs(started_at DESC);

	-- Priced lines (append-only)
	CREATE TABLE IF NOT EXISTS priced_lines (
		run_id TEXT NOT NULL REFERENCES runs(id),
		category TEXT NOT NULL,
		seq INTEGER NOT NULL,
		date TEXT NOT NULL,
		day_name TEXT NOT NULL,
		day_type INTEGER NOT NULL,
		customer TEXT NOT NULL,
		vessel TEXT NOT NULL,
		service TEXT NOT NULL,
		normal REAL NOT NULL,
		overtime_150 REAL NOT NULL,
		overtime_200 REAL NOT NULL,
		degenerate BOOLEAN NOT NULL DEFAULT FALSE,
		unit_price TEXT NOT NULL,
		total TEXT NOT NULL,
		legs_json TEXT,
		attrs_json TEXT,
		PRIMARY KEY (run_id, category, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_priced_lines_date
		ON priced_lines(date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PRICE STORE (generic.PriceStore interface)
// =============================================================================

// SavePrices appends entries atomically.
func (s *Store) SavePrices(ctx context.Context, entries []generic.PriceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO price_entries (service, effective, ending, price, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now().UTC().Format(time.RFC3339)
	for _, e := range entries {
		var ending sql.NullString
		if e.Ending != nil {
			ending = nullString(e.Ending.String())
		}
		if _, err := tx.ExecContext(ctx, query,
			e.Service, e.Effective.String(), ending, e.Price.String(), now,
		); err != nil {
			return fmt.Errorf("failed to save price %q: %w", e.Service, err)
		}
	}
	return tx.Commit()
}

// LoadPrices returns every entry ordered by service, then effective date.
// Entries saved later come after earlier ones with the same key.
func (s *Store) LoadPrices(ctx context.Context) ([]generic.PriceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT service, effective, ending, price
		FROM price_entries
		ORDER BY service ASC, effective ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var entries []generic.PriceEntry
	for rows.Next() {
		var (
			e         generic.PriceEntry
			effective string
			ending    sql.NullString
			price     string
		)
		if err := rows.Scan(&e.Service, &effective, &ending, &price); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		if e.Effective, err = civil.ParseDate(effective); err != nil {
			return nil, fmt.Errorf("price %q: %w", e.Service, err)
		}
		if ending.Valid {
			end, err := civil.ParseDate(ending.String)
			if err != nil {
				return nil, fmt.Errorf("price %q: %w", e.Service, err)
			}
			e.Ending = &end
		}
		if e.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("price %q: %w", e.Service, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// RUN STORE (generic.RunStore interface)
// =============================================================================

// SaveRun persists a run and its lines atomically.
func (s *Store) SaveRun(ctx context.Context, r *generic.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := generic.Summarize(r)
	categoriesJSON, err := json.Marshal(summary.Categories)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	start, end := periodStrings(summary.Period)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, period_start, period_end, started_at, finished_at, total, categories_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		string(summary.ID),
		start, end,
		summary.StartedAt.UTC().Format(timeLayout),
		summary.FinishedAt.UTC().Format(timeLayout),
		summary.Total.String(),
		string(categoriesJSON),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateRun
		}
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO priced_lines
		(run_id, category, seq, date, day_name, day_type, customer, vessel, service,
		 normal, overtime_150, overtime_200, degenerate, unit_price, total, legs_json, attrs_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare line insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range r.Tables {
		for i, l := range t.Lines {
			legsJSON, err := marshalOptional(l.Legs, len(l.Legs))
			if err != nil {
				return fmt.Errorf("failed to encode legs: %w", err)
			}
			attrsJSON, err := marshalOptional(l.Attrs, len(l.Attrs))
			if err != nil {
				return fmt.Errorf("failed to encode attrs: %w", err)
			}
			if _, err := stmt.ExecContext(ctx,
				string(r.ID), t.Category, i,
				l.Date.String(), l.DayName, int(l.DayType), l.Customer, l.Vessel, l.Service,
				l.Split.Normal, l.Split.OT150, l.Split.OT200, l.Split.Degenerate,
				l.UnitPrice.String(), l.Total.String(),
				legsJSON, attrsJSON,
			); err != nil {
				return fmt.Errorf("failed to save line %s/%d: %w", t.Category, i, err)
			}
		}
	}

	return tx.Commit()
}

// GetRun returns a run summary.
func (s *Store) GetRun(ctx context.Context, id generic.RunID) (generic.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, period_start, period_end, started_at, finished_at, total, categories_json
		FROM runs WHERE id = ?
	`, string(id))
	summary, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.RunSummary{}, generic.ErrRunNotFound
	}
	return summary, err
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]generic.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, period_start, period_end, started_at, finished_at, total, categories_json
		FROM runs
		ORDER BY started_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var result []generic.RunSummary
	for rows.Next() {
		summary, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, summary)
	}
	return result, rows.Err()
}

// LoadLines returns the lines of one category of a run, in emit order.
func (s *Store) LoadLines(ctx context.Context, id generic.RunID, category string) ([]generic.PricedLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE id = ?", string(id)).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to check run: %w", err)
	}
	if count == 0 {
		return nil, generic.ErrRunNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, day_name, day_type, customer, vessel, service,
		       normal, overtime_150, overtime_200, degenerate, unit_price, total, legs_json, attrs_json
		FROM priced_lines
		WHERE run_id = ? AND category = ?
		ORDER BY seq ASC
	`, string(id), category)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	var lines []generic.PricedLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		l.Category = category
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (generic.RunSummary, error) {
	var (
		summary        generic.RunSummary
		id             string
		periodStart    string
		periodEnd      string
		startedAt      string
		finishedAt     string
		total          string
		categoriesJSON string
	)
	if err := row.Scan(&id, &periodStart, &periodEnd, &startedAt, &finishedAt, &total, &categoriesJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return summary, err
		}
		return summary, fmt.Errorf("failed to scan run: %w", err)
	}

	summary.ID = generic.RunID(id)
	period, err := parsePeriod(periodStart, periodEnd)
	if err != nil {
		return summary, fmt.Errorf("run %s: %w", id, err)
	}
	summary.Period = period
	summary.StartedAt, _ = time.Parse(timeLayout, startedAt)
	summary.FinishedAt, _ = time.Parse(timeLayout, finishedAt)
	if summary.Total, err = decimal.NewFromString(total); err != nil {
		return summary, fmt.Errorf("run %s total: %w", id, err)
	}
	if err := json.Unmarshal([]byte(categoriesJSON), &summary.Categories); err != nil {
		return summary, fmt.Errorf("run %s categories: %w", id, err)
	}
	return summary, nil
}

func scanLine(rows *sql.Rows) (generic.PricedLine, error) {
	var (
		l         generic.PricedLine
		date      string
		dayType   int
		unitPrice string
		total     string
		legsJSON  sql.NullString
		attrsJSON sql.NullString
	)
	err := rows.Scan(
		&date, &l.DayName, &dayType, &l.Customer, &l.Vessel, &l.Service,
		&l.Split.Normal, &l.Split.OT150, &l.Split.OT200, &l.Split.Degenerate,
		&unitPrice, &total, &legsJSON, &attrsJSON,
	)
	if err != nil {
		return l, fmt.Errorf("failed to scan line: %w", err)
	}

	if l.Date, err = civil.ParseDate(date); err != nil {
		return l, fmt.Errorf("line date: %w", err)
	}
	l.DayType = generic.DayType(dayType)
	if l.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return l, fmt.Errorf("line unit price: %w", err)
	}
	if l.Total, err = decimal.NewFromString(total); err != nil {
		return l, fmt.Errorf("line total: %w", err)
	}
	if legsJSON.Valid && legsJSON.String != "" {
		if err := json.Unmarshal([]byte(legsJSON.String), &l.Legs); err != nil {
			return l, fmt.Errorf("line legs: %w", err)
		}
	}
	if attrsJSON.Valid && attrsJSON.String != "" {
		if err := json.Unmarshal([]byte(attrsJSON.String), &l.Attrs); err != nil {
			return l, fmt.Errorf("line attrs: %w", err)
		}
	}
	return l, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func periodStrings(p generic.Period) (string, string) {
	if p.IsZero() {
		return "", ""
	}
	return p.Start.String(), p.End.String()
}

func parsePeriod(start, end string) (generic.Period, error) {
	if start == "" && end == "" {
		return generic.Period{}, nil
	}
	s, err := civil.ParseDate(start)
	if err != nil {
		return generic.Period{}, err
	}
	e, err := civil.ParseDate(end)
	if err != nil {
		return generic.Period{}, err
	}
	return generic.Period{Start: s, End: e}, nil
}

func marshalOptional(v any, n int) (sql.NullString, error) {
	if n == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return nullString(string(b)), nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
