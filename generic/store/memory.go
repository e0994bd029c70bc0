// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/port-invoice/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	prices []generic.PriceEntry
	runs   []generic.RunSummary // ordered by StartedAt
	lines  map[key][]generic.PricedLine
}

type key struct {
	RunID    generic.RunID
	Category string
}

func NewMemory() *Memory {
	return &Memory{lines: make(map[key][]generic.PricedLine)}
}

// SavePrices appends price entries.
func (m *Memory) SavePrices(_ context.Context, entries []generic.PriceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = append(m.prices, entries...)
	return nil
}

// LoadPrices returns entries ordered by service, then effective date.
func (m *Memory) LoadPrices(_ context.Context) ([]generic.PriceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]generic.PriceEntry, len(m.prices))
	copy(result, m.prices)
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Service != result[j].Service {
			return result[i].Service < result[j].Service
		}
		return result[i].Effective.Before(result[j].Effective)
	})
	return result, nil
}

// SaveRun adds a run atomically. Append-only.
func (m *Memory) SaveRun(_ context.Context, r *generic.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.runs {
		if s.ID == r.ID {
			return generic.ErrDuplicateRun
		}
	}

	summary := generic.Summarize(r)

	// Binary search for insertion point keeps runs ordered by start time
	i := sort.Search(len(m.runs), func(i int) bool {
		return m.runs[i].StartedAt.After(summary.StartedAt)
	})
	m.runs = append(m.runs, generic.RunSummary{})
	copy(m.runs[i+1:], m.runs[i:])
	m.runs[i] = summary

	for _, t := range r.Tables {
		lines := make([]generic.PricedLine, len(t.Lines))
		copy(lines, t.Lines)
		m.lines[key{RunID: r.ID, Category: t.Category}] = lines
	}
	return nil
}

func (m *Memory) GetRun(_ context.Context, id generic.RunID) (generic.RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.runs {
		if s.ID == id {
			return s, nil
		}
	}
	return generic.RunSummary{}, generic.ErrRunNotFound
}

// ListRuns returns the most recent runs first.
func (m *Memory) ListRuns(_ context.Context, limit int) ([]generic.RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.RunSummary
	for i := len(m.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		result = append(result, m.runs[i])
	}
	return result, nil
}

func (m *Memory) LoadLines(_ context.Context, id generic.RunID, category string) ([]generic.PricedLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := false
	for _, s := range m.runs {
		if s.ID == id {
			found = true
			break
		}
	}
	if !found {
		return nil, generic.ErrRunNotFound
	}
	lines := m.lines[key{RunID: id, Category: category}]
	result := make([]generic.PricedLine, len(lines))
	copy(result, lines)
	return result, nil
}
